package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/config"
)

// EngineAPIError is the closed enumeration of engine API error codes a
// payload submission may be expected to produce. The zero member means the
// submission must succeed.
type EngineAPIError int64

const (
	EngineAPIErrorNone                     EngineAPIError = 0
	EngineAPIErrorParse                    EngineAPIError = -32700
	EngineAPIErrorInvalidRequest           EngineAPIError = -32600
	EngineAPIErrorMethodNotFound           EngineAPIError = -32601
	EngineAPIErrorInvalidParams            EngineAPIError = -32602
	EngineAPIErrorInternal                 EngineAPIError = -32603
	EngineAPIErrorServer                   EngineAPIError = -32000
	EngineAPIErrorUnknownPayload           EngineAPIError = -38001
	EngineAPIErrorInvalidForkchoiceState   EngineAPIError = -38002
	EngineAPIErrorInvalidPayloadAttributes EngineAPIError = -38003
)

// FixtureExecutionPayload is the engine API projection of a block: the header
// fields in payload shape plus the binary-encoded transactions.
type FixtureExecutionPayload struct {
	ParentHash    common.Hash             `json:"parentHash"`
	FeeRecipient  common.Address          `json:"feeRecipient"`
	StateRoot     common.Hash             `json:"stateRoot"`
	ReceiptsRoot  common.Hash             `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes           `json:"logsBloom"`
	PrevRandao    common.Hash             `json:"prevRandao"`
	Number        hexutil.Uint64          `json:"blockNumber"`
	GasLimit      hexutil.Uint64          `json:"gasLimit"`
	GasUsed       hexutil.Uint64          `json:"gasUsed"`
	Timestamp     hexutil.Uint64          `json:"timestamp"`
	ExtraData     hexutil.Bytes           `json:"extraData"`
	BaseFeePerGas *hexutil.Big            `json:"baseFeePerGas"`
	DataGasUsed   *hexutil.Uint64         `json:"dataGasUsed,omitempty"`
	ExcessDataGas *hexutil.Uint64         `json:"excessDataGas,omitempty"`
	BlockHash     common.Hash             `json:"blockHash"`
	Transactions  []hexutil.Bytes         `json:"transactions"`
	Withdrawals   []*gethtypes.Withdrawal `json:"withdrawals,omitempty"`
}

// FixtureEngineNewPayload is the expected engine API submission for one
// block: the payload, the version to submit it under, and the error code the
// submission must produce (none by default).
type FixtureEngineNewPayload struct {
	Payload   *FixtureExecutionPayload `json:"executionPayload"`
	Version   hexutil.Uint64           `json:"version"`
	ErrorCode EngineAPIError           `json:"errorCode,string,omitempty"`
}

// NewFixtureEngineNewPayload projects a built header and its transactions
// into the engine API submission shape. Purely field projection; the header
// must already carry its hash.
func NewFixtureEngineNewPayload(
	fork config.Fork,
	header *FixtureHeader,
	txs []*Transaction,
	withdrawals []*gethtypes.Withdrawal,
	errorCode EngineAPIError,
) (*FixtureEngineNewPayload, error) {
	payload := &FixtureExecutionPayload{
		ParentHash:   header.ParentHash,
		FeeRecipient: header.Coinbase,
		StateRoot:    header.StateRoot,
		ReceiptsRoot: header.ReceiptsRoot,
		LogsBloom:    header.Bloom.Bytes(),
		PrevRandao:   header.MixDigest,
		Number:       hexutil.Uint64(header.Number.Uint64()),
		GasLimit:     hexutil.Uint64(header.GasLimit.Uint64()),
		GasUsed:      hexutil.Uint64(header.GasUsed.Uint64()),
		Timestamp:    hexutil.Uint64(header.Timestamp.Uint64()),
		ExtraData:    header.ExtraData,
		BlockHash:    header.Hash,
		Withdrawals:  withdrawals,
	}
	if header.BaseFee != nil {
		payload.BaseFeePerGas = (*hexutil.Big)(header.BaseFee.ToInt())
	}
	if header.DataGasUsed != nil {
		used := hexutil.Uint64(header.DataGasUsed.Uint64())
		payload.DataGasUsed = &used
	}
	if header.ExcessDataGas != nil {
		excess := hexutil.Uint64(header.ExcessDataGas.Uint64())
		payload.ExcessDataGas = &excess
	}
	payload.Transactions = make([]hexutil.Bytes, len(txs))
	for i, tx := range txs {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %d has no binary encoding", i)
		}
		payload.Transactions[i] = enc
	}
	return &FixtureEngineNewPayload{
		Payload:   payload,
		Version:   hexutil.Uint64(fork.EngineNewPayloadVersion()),
		ErrorCode: errorCode,
	}, nil
}

// FixtureBlock is one block of a filled fixture: the canonical encoding, the
// decoded header, the included transactions, and the optional engine API
// submission derived from them. Built once, never mutated.
type FixtureBlock struct {
	RLP             hexutil.Bytes            `json:"rlp"`
	Header          *FixtureHeader           `json:"blockHeader,omitempty"`
	Txs             []*Transaction           `json:"transactions,omitempty"`
	Ommers          []*FixtureHeader         `json:"uncleHeaders,omitempty"`
	Withdrawals     []*gethtypes.Withdrawal  `json:"withdrawals,omitempty"`
	NewPayload      *FixtureEngineNewPayload `json:"engineNewPayload,omitempty"`
	ExpectException string                   `json:"expectException,omitempty"`
}

// Fixture is the portable test artifact: genesis, blocks and expected
// results, serialized for consumption by independent client implementations.
type Fixture struct {
	Info          map[string]string `json:"_info,omitempty"`
	Network       string            `json:"network"`
	Genesis       *FixtureHeader    `json:"genesisBlockHeader"`
	GenesisRLP    hexutil.Bytes     `json:"genesisRLP"`
	Blocks        []*FixtureBlock   `json:"blocks"`
	LastBlockHash common.Hash       `json:"lastblockhash"`
	Pre           Alloc             `json:"pre"`
	Post          Alloc             `json:"postState"`
	SealEngine    string            `json:"sealEngine"`
}
