package types

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Account is the full state of a single address: balance, nonce, code and
// storage. Accounts are treated as immutable templates, cloned per scenario.
type Account struct {
	Nonce   uint64
	Balance *big.Int
	Code    []byte
	Storage map[common.Hash]*uint256.Int
}

// Alloc maps addresses to accounts. It is both the pre-state handed to the
// transition tool and the resulting post-state handed back.
type Alloc map[common.Address]*Account

type accountJSON struct {
	Nonce   hexutil.Uint64              `json:"nonce"`
	Balance *hexutil.Big                `json:"balance"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// MarshalJSON encodes the account in the JSON shape the transition tool
// expects: hex quantities and 32-byte padded storage slots.
func (a *Account) MarshalJSON() ([]byte, error) {
	enc := accountJSON{
		Nonce: hexutil.Uint64(a.Nonce),
	}
	balance := a.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	enc.Balance = (*hexutil.Big)(balance)
	if len(a.Code) > 0 {
		enc.Code = a.Code
	}
	if len(a.Storage) > 0 {
		enc.Storage = make(map[common.Hash]common.Hash, len(a.Storage))
		for key, value := range a.Storage {
			enc.Storage[key] = value.Bytes32()
		}
	}
	return json.Marshal(&enc)
}

func (a *Account) UnmarshalJSON(input []byte) error {
	var dec accountJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	a.Nonce = uint64(dec.Nonce)
	a.Balance = new(big.Int)
	if dec.Balance != nil {
		a.Balance = dec.Balance.ToInt()
	}
	a.Code = dec.Code
	a.Storage = nil
	if len(dec.Storage) > 0 {
		a.Storage = make(map[common.Hash]*uint256.Int, len(dec.Storage))
		for key, value := range dec.Storage {
			a.Storage[key] = new(uint256.Int).SetBytes(value.Bytes())
		}
	}
	return nil
}

// Copy deep-copies the account, so templates can be fanned out across
// scenarios without sharing mutable state.
func (a *Account) Copy() *Account {
	cpy := &Account{Nonce: a.Nonce}
	if a.Balance != nil {
		cpy.Balance = new(big.Int).Set(a.Balance)
	}
	if a.Code != nil {
		cpy.Code = append([]byte(nil), a.Code...)
	}
	if a.Storage != nil {
		cpy.Storage = make(map[common.Hash]*uint256.Int, len(a.Storage))
		for key, value := range a.Storage {
			cpy.Storage[key] = value.Clone()
		}
	}
	return cpy
}

// Copy deep-copies the allocation.
func (al Alloc) Copy() Alloc {
	cpy := make(Alloc, len(al))
	for addr, acct := range al {
		cpy[addr] = acct.Copy()
	}
	return cpy
}

// ExpectedAccount is a partial account constraint used in post-state
// verification. Nil fields are unconstrained. A storage entry with value zero
// asserts the slot is zero or absent.
type ExpectedAccount struct {
	Nonce   *uint64
	Balance *big.Int
	Code    []byte
	Storage map[common.Hash]*uint256.Int
}

// ExpectedAlloc maps addresses to partial account constraints. A nil entry
// asserts the account must not exist. Addresses absent from the map are
// unconstrained.
type ExpectedAlloc map[common.Address]*ExpectedAccount
