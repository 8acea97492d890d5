package filler

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

var (
	addrA = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	addrB = common.HexToAddress("0x0000000000000000000000000000000000000b00")
)

func uintPtr(v uint64) *uint64 { return &v }

func TestVerifyPostAllocPartiality(t *testing.T) {
	actual := types.Alloc{
		addrA: &types.Account{
			Nonce:   1,
			Balance: big.NewInt(100),
			Storage: map[common.Hash]*uint256.Int{
				common.BigToHash(big.NewInt(1)): uint256.NewInt(42),
			},
		},
		addrB: &types.Account{Balance: big.NewInt(7)},
	}

	// A strict subset of the actual state always verifies; extra accounts and
	// slots are unconstrained.
	expected := types.ExpectedAlloc{
		addrA: &types.ExpectedAccount{Balance: big.NewInt(100)},
	}
	if err := VerifyPostAlloc(expected, actual); err != nil {
		t.Fatalf("subset expectation failed: %v", err)
	}

	// An empty expectation constrains nothing.
	if err := VerifyPostAlloc(types.ExpectedAlloc{}, actual); err != nil {
		t.Fatalf("empty expectation failed: %v", err)
	}
}

func TestVerifyPostAllocMismatches(t *testing.T) {
	actual := types.Alloc{
		addrA: &types.Account{
			Nonce:   1,
			Balance: big.NewInt(100),
			Code:    []byte{0x60, 0x00},
			Storage: map[common.Hash]*uint256.Int{
				common.BigToHash(big.NewInt(1)): uint256.NewInt(42),
			},
		},
	}
	tests := []struct {
		name     string
		expected types.ExpectedAlloc
		detail   string
	}{
		{
			name:     "balance",
			expected: types.ExpectedAlloc{addrA: &types.ExpectedAccount{Balance: big.NewInt(99)}},
			detail:   "balance",
		},
		{
			name:     "nonce",
			expected: types.ExpectedAlloc{addrA: &types.ExpectedAccount{Nonce: uintPtr(2)}},
			detail:   "nonce",
		},
		{
			name:     "code",
			expected: types.ExpectedAlloc{addrA: &types.ExpectedAccount{Code: []byte{0x60, 0x01}}},
			detail:   "code",
		},
		{
			name: "storage",
			expected: types.ExpectedAlloc{addrA: &types.ExpectedAccount{
				Storage: map[common.Hash]*uint256.Int{
					common.BigToHash(big.NewInt(1)): uint256.NewInt(43),
				},
			}},
			detail: "storage",
		},
		{
			name:     "missing account",
			expected: types.ExpectedAlloc{addrB: &types.ExpectedAccount{}},
			detail:   "absent",
		},
		{
			name:     "unexpected account",
			expected: types.ExpectedAlloc{addrA: nil},
			detail:   "expected absent",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := VerifyPostAlloc(test.expected, actual)
			if err == nil {
				t.Fatal("mismatch not reported")
			}
			if !strings.Contains(err.Error(), test.detail) {
				t.Fatalf("error %q does not mention %q", err, test.detail)
			}
		})
	}
}

func TestVerifyPostAllocStorageZero(t *testing.T) {
	// Expecting zero asserts the slot is zero or absent.
	expected := types.ExpectedAlloc{
		addrA: &types.ExpectedAccount{
			Storage: map[common.Hash]*uint256.Int{
				common.BigToHash(big.NewInt(5)): uint256.NewInt(0),
			},
		},
	}
	actual := types.Alloc{addrA: &types.Account{Balance: big.NewInt(1)}}
	if err := VerifyPostAlloc(expected, actual); err != nil {
		t.Fatalf("zero expectation on absent slot failed: %v", err)
	}

	actual[addrA].Storage = map[common.Hash]*uint256.Int{
		common.BigToHash(big.NewInt(5)): uint256.NewInt(1),
	}
	if err := VerifyPostAlloc(expected, actual); err == nil {
		t.Fatal("non-zero slot accepted against zero expectation")
	}
}

func TestVerifyTransactions(t *testing.T) {
	txs := []*types.Transaction{
		{Type: types.LegacyTxType, GasPrice: big.NewInt(10)},
		{Type: types.LegacyTxType, GasPrice: big.NewInt(10), ExpectedError: "nonce too high"},
	}

	// Expected rejection present: passes and reports the index.
	rejected, err := VerifyTransactions(txs, &t8n.Result{
		Rejected: []*t8n.RejectedTx{{Index: 1, Error: "nonce too high"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 1 || rejected[0] != 1 {
		t.Fatalf("rejected indices %v, want [1]", rejected)
	}

	// Unexpected rejection fails.
	if _, err := VerifyTransactions(txs, &t8n.Result{
		Rejected: []*t8n.RejectedTx{{Index: 0, Error: "intrinsic gas too low"}},
	}); err == nil {
		t.Fatal("unexpected rejection accepted")
	}

	// Missing expected rejection fails.
	if _, err := VerifyTransactions(txs, &t8n.Result{}); err == nil {
		t.Fatal("expected rejection did not occur but verification passed")
	}
}
