package types

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/globals"
)

// Environment is the per-block execution context handed to the transition
// tool. A scenario constructs one and refines it per block: SetForkRequirements
// fills fork-conditional defaults, ApplyNewParent propagates the previous
// header. Both return copies; environments are never shared mutable state.
type Environment struct {
	Coinbase   common.Address
	Difficulty *big.Int
	GasLimit   uint64
	Number     uint64
	Timestamp  uint64
	BaseFee    *big.Int

	// Blob fee market fields.
	DataGasUsed   *uint64
	ExcessDataGas *uint64

	Withdrawals []*gethtypes.Withdrawal

	// Parent header context, filled by ApplyNewParent.
	ParentDifficulty    *big.Int
	ParentTimestamp     uint64
	ParentBaseFee       *big.Int
	ParentGasUsed       *uint64
	ParentGasLimit      *uint64
	ParentDataGasUsed   *uint64
	ParentExcessDataGas *uint64
	ParentOmmersHash    common.Hash

	// Ancestor hashes visible to BLOCKHASH, keyed by block number.
	BlockHashes map[uint64]common.Hash
}

// DefaultEnvironment returns the environment used by scenarios that do not
// override it: single test block at number 1 with a generous gas limit.
func DefaultEnvironment() *Environment {
	return &Environment{
		Coinbase:  globals.DefaultCoinbase,
		GasLimit:  100_000_000_000_000_000,
		Number:    1,
		Timestamp: 1000,
	}
}

// Copy deep-copies the environment.
func (env *Environment) Copy() *Environment {
	cpy := *env
	cpy.Difficulty = bigCopy(env.Difficulty)
	cpy.BaseFee = bigCopy(env.BaseFee)
	cpy.ParentDifficulty = bigCopy(env.ParentDifficulty)
	cpy.ParentBaseFee = bigCopy(env.ParentBaseFee)
	cpy.DataGasUsed = u64Copy(env.DataGasUsed)
	cpy.ExcessDataGas = u64Copy(env.ExcessDataGas)
	cpy.ParentGasUsed = u64Copy(env.ParentGasUsed)
	cpy.ParentGasLimit = u64Copy(env.ParentGasLimit)
	cpy.ParentDataGasUsed = u64Copy(env.ParentDataGasUsed)
	cpy.ParentExcessDataGas = u64Copy(env.ParentExcessDataGas)
	cpy.Withdrawals = append([]*gethtypes.Withdrawal(nil), env.Withdrawals...)
	if env.BlockHashes != nil {
		cpy.BlockHashes = make(map[uint64]common.Hash, len(env.BlockHashes))
		for n, h := range env.BlockHashes {
			cpy.BlockHashes[n] = h
		}
	}
	return &cpy
}

// SetForkRequirements returns a copy with the fork-conditional fields filled
// in: a zero-valued base fee before London blocks would reject it, zeroed blob
// gas accounting from the blob fork on, empty withdrawals from Shanghai on.
func (env *Environment) SetForkRequirements(fork config.Fork) *Environment {
	cpy := env.Copy()
	if fork.HeaderBaseFeeRequired() && cpy.BaseFee == nil && cpy.ParentBaseFee == nil {
		cpy.BaseFee = new(big.Int).Set(globals.DefaultBaseFee)
	}
	if fork.HeaderWithdrawalsRequired() && cpy.Withdrawals == nil {
		cpy.Withdrawals = []*gethtypes.Withdrawal{}
	}
	if fork.HeaderExcessDataGasRequired() {
		if cpy.ExcessDataGas == nil && cpy.ParentExcessDataGas == nil {
			zero := uint64(0)
			cpy.ExcessDataGas = &zero
		}
		if cpy.DataGasUsed == nil && cpy.ParentDataGasUsed == nil {
			zero := uint64(0)
			cpy.DataGasUsed = &zero
		}
	}
	return cpy
}

// ApplyNewParent returns a copy whose parent context is taken from the given
// header, and records the parent's hash for BLOCKHASH visibility.
func (env *Environment) ApplyNewParent(parent *FixtureHeader) *Environment {
	cpy := env.Copy()
	cpy.ParentDifficulty = bigCopy(parent.Difficulty.ToInt())
	cpy.ParentTimestamp = parent.Timestamp.Uint64()
	cpy.ParentBaseFee = nil
	if parent.BaseFee != nil {
		cpy.ParentBaseFee = parent.BaseFee.ToInt()
	}
	gasUsed := parent.GasUsed.Uint64()
	gasLimit := parent.GasLimit.Uint64()
	cpy.ParentGasUsed = &gasUsed
	cpy.ParentGasLimit = &gasLimit
	cpy.ParentDataGasUsed = nil
	if parent.DataGasUsed != nil {
		used := parent.DataGasUsed.Uint64()
		cpy.ParentDataGasUsed = &used
	}
	cpy.ParentExcessDataGas = nil
	if parent.ExcessDataGas != nil {
		excess := parent.ExcessDataGas.Uint64()
		cpy.ParentExcessDataGas = &excess
	}
	cpy.ParentOmmersHash = parent.OmmersHash
	if cpy.BlockHashes == nil {
		cpy.BlockHashes = make(map[uint64]common.Hash)
	}
	cpy.BlockHashes[parent.Number.Uint64()] = parent.Hash
	return cpy
}

type environmentJSON struct {
	Coinbase            common.Address              `json:"currentCoinbase"`
	Difficulty          *math.HexOrDecimal256       `json:"currentDifficulty,omitempty"`
	GasLimit            math.HexOrDecimal64         `json:"currentGasLimit"`
	Number              math.HexOrDecimal64         `json:"currentNumber"`
	Timestamp           math.HexOrDecimal64         `json:"currentTimestamp"`
	BaseFee             *math.HexOrDecimal256       `json:"currentBaseFee,omitempty"`
	DataGasUsed         *math.HexOrDecimal64        `json:"currentDataGasUsed,omitempty"`
	ExcessDataGas       *math.HexOrDecimal64        `json:"currentExcessDataGas,omitempty"`
	Withdrawals         []*gethtypes.Withdrawal     `json:"withdrawals,omitempty"`
	ParentDifficulty    *math.HexOrDecimal256       `json:"parentDifficulty,omitempty"`
	ParentTimestamp     *math.HexOrDecimal64        `json:"parentTimestamp,omitempty"`
	ParentBaseFee       *math.HexOrDecimal256       `json:"parentBaseFee,omitempty"`
	ParentGasUsed       *math.HexOrDecimal64        `json:"parentGasUsed,omitempty"`
	ParentGasLimit      *math.HexOrDecimal64        `json:"parentGasLimit,omitempty"`
	ParentDataGasUsed   *math.HexOrDecimal64        `json:"parentDataGasUsed,omitempty"`
	ParentExcessDataGas *math.HexOrDecimal64        `json:"parentExcessDataGas,omitempty"`
	ParentOmmersHash    *common.Hash                `json:"parentUncleHash,omitempty"`
	BlockHashes         map[hexutil.Uint64]common.Hash `json:"blockHashes,omitempty"`
}

// MarshalJSON encodes the environment in the transition tool's env shape.
func (env *Environment) MarshalJSON() ([]byte, error) {
	enc := environmentJSON{
		Coinbase:         env.Coinbase,
		Difficulty:       (*math.HexOrDecimal256)(env.Difficulty),
		GasLimit:         math.HexOrDecimal64(env.GasLimit),
		Number:           math.HexOrDecimal64(env.Number),
		Timestamp:        math.HexOrDecimal64(env.Timestamp),
		BaseFee:          (*math.HexOrDecimal256)(env.BaseFee),
		ParentDifficulty: (*math.HexOrDecimal256)(env.ParentDifficulty),
		ParentBaseFee:    (*math.HexOrDecimal256)(env.ParentBaseFee),
		Withdrawals:      env.Withdrawals,
	}
	enc.DataGasUsed = hexOrDecimalPtr(env.DataGasUsed)
	enc.ExcessDataGas = hexOrDecimalPtr(env.ExcessDataGas)
	enc.ParentGasUsed = hexOrDecimalPtr(env.ParentGasUsed)
	enc.ParentGasLimit = hexOrDecimalPtr(env.ParentGasLimit)
	enc.ParentDataGasUsed = hexOrDecimalPtr(env.ParentDataGasUsed)
	enc.ParentExcessDataGas = hexOrDecimalPtr(env.ParentExcessDataGas)
	if env.ParentTimestamp != 0 || env.ParentDifficulty != nil || env.ParentBaseFee != nil {
		ts := math.HexOrDecimal64(env.ParentTimestamp)
		enc.ParentTimestamp = &ts
	}
	if env.ParentOmmersHash != (common.Hash{}) {
		h := env.ParentOmmersHash
		enc.ParentOmmersHash = &h
	}
	if len(env.BlockHashes) > 0 {
		enc.BlockHashes = make(map[hexutil.Uint64]common.Hash, len(env.BlockHashes))
		for n, h := range env.BlockHashes {
			enc.BlockHashes[hexutil.Uint64(n)] = h
		}
	}
	return json.Marshal(&enc)
}

func u64Copy(x *uint64) *uint64 {
	if x == nil {
		return nil
	}
	v := *x
	return &v
}

func hexOrDecimalPtr(x *uint64) *math.HexOrDecimal64 {
	if x == nil {
		return nil
	}
	v := math.HexOrDecimal64(*x)
	return &v
}
