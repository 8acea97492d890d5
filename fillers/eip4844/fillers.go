package eip4844

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/filler"
	"github.com/ethereum/fixturefill/globals"
	"github.com/ethereum/fixturefill/types"
)

func init() {
	filler.Register(filler.Registration{
		Name:     "value_transfer",
		From:     config.Merge,
		Generate: valueTransfer,
	})
	filler.Register(filler.Registration{
		Name:     "blob_tx_transfer",
		From:     config.Sharding,
		Generate: blobTransfer,
	})
	filler.Register(filler.Registration{
		Name:     "blob_tx_invalid_nonce",
		From:     config.Sharding,
		Generate: blobInvalidNonce,
	})
}

// testEnv is the shared scenario environment: block 1 of a fresh chain with a
// fixed difficulty and a generous gas limit.
func testEnv() *types.Environment {
	env := types.DefaultEnvironment()
	env.Difficulty = big.NewInt(0x20000)
	env.GasLimit = 300_000_000
	return env
}

func toAddress(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

// blobHashes returns n distinct well-formed blob versioned hashes.
func blobHashes(n int) []common.Hash {
	hashes := make([]common.Hash, n)
	for i := range hashes {
		hashes[i] = common.BigToHash(new(big.Int).Lsh(big.NewInt(1), uint(i)))
	}
	return types.WithKZGVersion(hashes)
}

// valueTransfer is the canonical smoke scenario: a single legacy transaction
// moving 100 wei to a fresh account.
func valueTransfer(config.Fork) []filler.Spec {
	recipient := toAddress(0x100)
	return []filler.Spec{
		&filler.StateTest{
			Env: testEnv(),
			Pre: types.Alloc{
				globals.TestAddress: &types.Account{
					Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
				},
			},
			Txs: []*types.Transaction{{
				Type:     types.LegacyTxType,
				GasPrice: big.NewInt(10),
				GasLimit: 21_000,
				To:       &recipient,
				Value:    big.NewInt(100),
			}},
			Post: types.ExpectedAlloc{
				recipient: &types.ExpectedAccount{Balance: big.NewInt(100)},
			},
		},
	}
}

// blobTransfer sends blob transactions across two blocks, a full block's
// worth of blobs each, and checks the transferred value arrives.
func blobTransfer(config.Fork) []filler.Spec {
	template := &types.Transaction{
		Type:                 types.BlobTxType,
		GasLimit:             3_000_000,
		MaxFeePerGas:         big.NewInt(10),
		MaxPriorityFeePerGas: big.NewInt(10),
		MaxFeePerDataGas:     uint256.NewInt(10),
	}
	hashes := blobHashes(MaxBlobsPerBlock)

	var (
		blocks []*filler.Block
		post   = types.ExpectedAlloc{}
		nonce  = uint64(0)
	)
	for b := 0; b < 2; b++ {
		var txs []*types.Transaction
		for i := 0; i < MaxBlobsPerBlock; i++ {
			recipient := toAddress(0x100 + int64(nonce)*0x100)
			txs = append(txs, template.WithFields(types.CustomTransactionData{
				Nonce:               &nonce,
				To:                  &recipient,
				Value:               big.NewInt(100),
				BlobVersionedHashes: &[]common.Hash{hashes[i]},
			}))
			post[recipient] = &types.ExpectedAccount{Balance: big.NewInt(100)}
			nonce++
		}
		blocks = append(blocks, &filler.Block{Txs: txs})
	}

	return []filler.Spec{
		&filler.BlockchainTest{
			Env: testEnv(),
			Pre: types.Alloc{
				globals.TestAddress: &types.Account{
					Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
				},
			},
			Blocks: blocks,
			Post:   post,
		},
	}
}

// blobInvalidNonce exercises per-block rejection: a blob transaction with a
// future nonce makes its block invalid, and the chain continues past it
// untouched.
func blobInvalidNonce(config.Fork) []filler.Spec {
	recipient := toAddress(0x100)
	template := &types.Transaction{
		Type:                 types.BlobTxType,
		GasLimit:             3_000_000,
		To:                   &recipient,
		Value:                big.NewInt(100),
		MaxFeePerGas:         big.NewInt(10),
		MaxPriorityFeePerGas: big.NewInt(10),
		MaxFeePerDataGas:     uint256.NewInt(10),
		BlobVersionedHashes:  blobHashes(1),
	}

	badNonce := uint64(10)
	goodNonce := uint64(0)
	rejection := "TR_NonceTooHigh"
	invalidTx := template.WithFields(types.CustomTransactionData{
		Nonce:         &badNonce,
		ExpectedError: &rejection,
	})
	validTx := template.WithFields(types.CustomTransactionData{
		Nonce: &goodNonce,
	})

	return []filler.Spec{
		&filler.BlockchainTest{
			Env: testEnv(),
			Pre: types.Alloc{
				globals.TestAddress: &types.Account{
					Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
				},
			},
			Blocks: []*filler.Block{
				{Txs: []*types.Transaction{invalidTx}, ExpectException: rejection},
				{Txs: []*types.Transaction{validTx}},
			},
			Post: types.ExpectedAlloc{
				recipient: &types.ExpectedAccount{Balance: big.NewInt(100)},
			},
		},
	}
}
