package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/globals"
)

// FixtureHeader is a fully-resolved block header as it appears in a fixture.
// The hash is computed once by Build and is the canonical identity used as
// parentHash of the following block.
type FixtureHeader struct {
	ParentHash       common.Hash          `json:"parentHash"`
	OmmersHash       common.Hash          `json:"uncleHash"`
	Coinbase         common.Address       `json:"coinbase"`
	StateRoot        common.Hash          `json:"stateRoot"`
	TransactionsRoot common.Hash          `json:"transactionsTrie"`
	ReceiptsRoot     common.Hash          `json:"receiptTrie"`
	Bloom            gethtypes.Bloom      `json:"bloom"`
	Difficulty       *Big                 `json:"difficulty"`
	Number           Uint64               `json:"number"`
	GasLimit         Uint64               `json:"gasLimit"`
	GasUsed          Uint64               `json:"gasUsed"`
	Timestamp        Uint64               `json:"timestamp"`
	ExtraData        hexutil.Bytes        `json:"extraData"`
	MixDigest        common.Hash          `json:"mixHash"`
	Nonce            gethtypes.BlockNonce `json:"nonce"`
	BaseFee          *Big                 `json:"baseFeePerGas,omitempty"`
	WithdrawalsRoot  *common.Hash         `json:"withdrawalsRoot,omitempty"`
	DataGasUsed      *Uint64              `json:"dataGasUsed,omitempty"`
	ExcessDataGas    *Uint64              `json:"excessDataGas,omitempty"`

	Hash common.Hash `json:"hash"`
}

// headerRLP is the canonical header field list. Optional fields appear in
// activation order at the tail.
type headerRLP struct {
	ParentHash       common.Hash
	OmmersHash       common.Hash
	Coinbase         common.Address
	StateRoot        common.Hash
	TransactionsRoot common.Hash
	ReceiptsRoot     common.Hash
	Bloom            gethtypes.Bloom
	Difficulty       *big.Int
	Number           uint64
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	MixDigest        common.Hash
	Nonce            gethtypes.BlockNonce
	BaseFee          *big.Int     `rlp:"optional"`
	WithdrawalsRoot  *common.Hash `rlp:"optional"`
	DataGasUsed      *uint64      `rlp:"optional"`
	ExcessDataGas    *uint64      `rlp:"optional"`
}

type blockRLP struct {
	Header      *headerRLP
	Txs         []*Transaction
	Ommers      []*headerRLP
	Withdrawals []*gethtypes.Withdrawal `rlp:"optional"`
}

func (h *FixtureHeader) rlpFields() *headerRLP {
	enc := &headerRLP{
		ParentHash:       h.ParentHash,
		OmmersHash:       h.OmmersHash,
		Coinbase:         h.Coinbase,
		StateRoot:        h.StateRoot,
		TransactionsRoot: h.TransactionsRoot,
		ReceiptsRoot:     h.ReceiptsRoot,
		Bloom:            h.Bloom,
		Difficulty:       h.Difficulty.ToInt(),
		Number:           h.Number.Uint64(),
		GasLimit:         h.GasLimit.Uint64(),
		GasUsed:          h.GasUsed.Uint64(),
		Timestamp:        h.Timestamp.Uint64(),
		ExtraData:        h.ExtraData,
		MixDigest:        h.MixDigest,
		Nonce:            h.Nonce,
		BaseFee:          h.BaseFee.ToInt(),
		WithdrawalsRoot:  h.WithdrawalsRoot,
	}
	if h.Difficulty == nil {
		enc.Difficulty = new(big.Int)
	}
	if h.DataGasUsed != nil {
		used := h.DataGasUsed.Uint64()
		enc.DataGasUsed = &used
	}
	if h.ExcessDataGas != nil {
		excess := h.ExcessDataGas.Uint64()
		enc.ExcessDataGas = &excess
	}
	return enc
}

// Build encodes the canonical block carrying this header together with the
// given transactions, ommers and withdrawals, computes the header hash over
// the encoded header fields only, and freezes it on the receiver. Identical
// header content always yields identical encoding and hash.
func (h *FixtureHeader) Build(txs []*Transaction, ommers []*FixtureHeader, withdrawals []*gethtypes.Withdrawal) (hexutil.Bytes, common.Hash, error) {
	fields := h.rlpFields()
	headerEnc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, common.Hash{}, errors.Wrap(err, "header encoding failed")
	}
	hash := crypto.Keccak256Hash(headerEnc)

	block := blockRLP{
		Header: fields,
		Txs:    txs,
		Ommers: make([]*headerRLP, len(ommers)),
	}
	if block.Txs == nil {
		block.Txs = []*Transaction{}
	}
	for i, ommer := range ommers {
		block.Ommers[i] = ommer.rlpFields()
	}
	if withdrawals != nil {
		block.Withdrawals = withdrawals
		if len(withdrawals) == 0 {
			block.Withdrawals = []*gethtypes.Withdrawal{}
		}
	}
	blockEnc, err := rlp.EncodeToBytes(&block)
	if err != nil {
		return nil, common.Hash{}, errors.Wrap(err, "block encoding failed")
	}
	h.Hash = hash
	return blockEnc, hash, nil
}

// ToolOutput is the set of header fields the transition tool owns. It is
// merged with the caller's environment by HeaderFromToolOutput.
type ToolOutput struct {
	StateRoot       common.Hash
	TxRoot          common.Hash
	ReceiptsRoot    common.Hash
	Bloom           gethtypes.Bloom
	GasUsed         uint64
	Difficulty      *big.Int
	BaseFee         *big.Int
	DataGasUsed     *uint64
	ExcessDataGas   *uint64
	WithdrawalsRoot *common.Hash
}

// HeaderFromToolOutput merges tool-computed fields with caller-supplied
// environment values into a header. Precedence is explicit: the tool owns the
// roots, bloom, gas used and fee market outputs; the environment owns
// coinbase, number, gas limit and timestamp; difficulty is the environment's
// when set, otherwise the tool's computed value.
func HeaderFromToolOutput(out ToolOutput, env *Environment, parentHash common.Hash) *FixtureHeader {
	difficulty := env.Difficulty
	if difficulty == nil {
		difficulty = out.Difficulty
	}
	header := &FixtureHeader{
		ParentHash:       parentHash,
		OmmersHash:       globals.EmptyOmmersRoot,
		Coinbase:         env.Coinbase,
		StateRoot:        out.StateRoot,
		TransactionsRoot: out.TxRoot,
		ReceiptsRoot:     out.ReceiptsRoot,
		Bloom:            out.Bloom,
		Difficulty:       NewBig(difficulty),
		Number:           Uint64(env.Number),
		GasLimit:         Uint64(env.GasLimit),
		GasUsed:          Uint64(out.GasUsed),
		Timestamp:        Uint64(env.Timestamp),
		ExtraData:        hexutil.Bytes{0x00},
		BaseFee:          NewBig(out.BaseFee),
		WithdrawalsRoot:  out.WithdrawalsRoot,
	}
	if out.DataGasUsed != nil {
		header.DataGasUsed = Uint64Ptr(*out.DataGasUsed)
	}
	if out.ExcessDataGas != nil {
		header.ExcessDataGas = Uint64Ptr(*out.ExcessDataGas)
	}
	return header
}
