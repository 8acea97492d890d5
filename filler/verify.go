package filler

import (
	"bytes"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

// VerifyPostAlloc checks a partial expected state against the full resulting
// allocation. Addresses absent from the expected mapping are unconstrained; a
// nil expected entry asserts the account must not exist; a storage entry with
// value zero asserts the slot is zero or absent. The first mismatch is
// reported with address, attribute, expected and actual values.
func VerifyPostAlloc(expected types.ExpectedAlloc, actual types.Alloc) error {
	for addr, want := range expected {
		got, ok := actual[addr]
		if want == nil {
			if ok {
				return errors.Errorf("post-state account %v: expected absent, got %s", addr, spewAccount(got))
			}
			continue
		}
		if !ok {
			return errors.Errorf("post-state account %v: expected present, got absent", addr)
		}
		if want.Nonce != nil && got.Nonce != *want.Nonce {
			return errors.Errorf("post-state account %v: nonce mismatch: want %d, got %d", addr, *want.Nonce, got.Nonce)
		}
		if want.Balance != nil {
			balance := got.Balance
			if balance == nil || balance.Cmp(want.Balance) != 0 {
				return errors.Errorf("post-state account %v: balance mismatch: want %v, got %v", addr, want.Balance, balance)
			}
		}
		if want.Code != nil && !bytes.Equal(want.Code, got.Code) {
			return errors.Errorf("post-state account %v: code mismatch: want %#x, got %#x", addr, want.Code, got.Code)
		}
		for key, value := range want.Storage {
			slot := got.Storage[key]
			if slot == nil {
				slot = uint256.NewInt(0)
			}
			if !slot.Eq(value) {
				return errors.Errorf("post-state account %v: storage slot %v mismatch: want %v, got %v", addr, key, value.Hex(), slot.Hex())
			}
		}
	}
	return nil
}

// VerifyTransactions checks the tool's per-transaction rejections against the
// expectations carried by the transactions, and returns the rejected indices.
// A rejection of a transaction not marked invalid, or an acceptance of one
// that is, fails the scenario.
func VerifyTransactions(txs []*types.Transaction, result *t8n.Result) ([]int, error) {
	rejectedErrs := make(map[int]string, len(result.Rejected))
	for _, rejected := range result.Rejected {
		rejectedErrs[rejected.Index] = rejected.Error
	}
	indices := make([]int, 0, len(result.Rejected))
	for i, tx := range txs {
		toolErr, rejected := rejectedErrs[i]
		if rejected {
			indices = append(indices, i)
		}
		if rejected && tx.ExpectedError == "" {
			return nil, errors.Errorf("transaction %d unexpectedly rejected: %s", i, toolErr)
		}
		if !rejected && tx.ExpectedError != "" {
			return nil, errors.Errorf("transaction %d unexpectedly accepted, want rejection: %s", i, tx.ExpectedError)
		}
	}
	return indices, nil
}
