package filler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

// Block is one block specification of a blockchain test. Nil override fields
// inherit from the running environment: the number always increments, the
// timestamp advances by twelve seconds unless set.
type Block struct {
	Txs         []*types.Transaction
	Withdrawals []*gethtypes.Withdrawal

	Coinbase  *common.Address
	Timestamp *uint64
	GasLimit  *uint64
	ExtraData []byte

	// ExpectException marks the whole block as invalid: it is included in
	// the fixture with the expected client error and does not advance the
	// chain. Transactions expected to be rejected (ExpectedError set) are
	// only allowed inside such blocks.
	ExpectException string

	// EngineAPIErrorCode is the expected engine payload submission outcome
	// for this block.
	EngineAPIErrorCode types.EngineAPIError
}

// BlockchainTest tests a sequence of blocks applied to a running chain,
// tolerating and verifying per-block invalidity where the scenario declares
// it. This is the only scenario shape in which transaction rejection is a
// legitimate expected outcome.
type BlockchainTest struct {
	Env    *types.Environment
	Pre    types.Alloc
	Post   types.ExpectedAlloc
	Blocks []*Block
	Tag    string
}

func (bt *BlockchainTest) SpecName() string { return bt.Tag }

// MakeGenesis creates the genesis block preceding the first test block.
func (bt *BlockchainTest) MakeGenesis(ctx context.Context, tool t8n.Tool, fork config.Fork) (hexutil.Bytes, *types.FixtureHeader, error) {
	return makeGenesis(ctx, tool, fork, bt.Env, bt.Pre)
}

// MakeBlocks applies every block specification in sequence. Valid blocks feed
// their resulting state and hash into the next block; invalid blocks are
// recorded with their expected exception and leave the chain untouched. The
// final allocation is checked against the expected post-state.
func (bt *BlockchainTest) MakeBlocks(ctx context.Context, tool t8n.Tool, genesis *types.FixtureHeader, fork config.Fork, opts FillOptions) ([]*types.FixtureBlock, common.Hash, types.Alloc, error) {
	var (
		blocks   = make([]*types.FixtureBlock, 0, len(bt.Blocks))
		parent   = genesis
		alloc    = bt.Pre.Copy()
		lastHash = genesis.Hash
	)
	for i, block := range bt.Blocks {
		env := bt.Env.ApplyNewParent(parent)
		env.Number = parent.Number.Uint64() + 1
		env.Timestamp = parent.Timestamp.Uint64() + 12
		if block.Timestamp != nil {
			env.Timestamp = *block.Timestamp
		}
		if block.Coinbase != nil {
			env.Coinbase = *block.Coinbase
		}
		if block.GasLimit != nil {
			env.GasLimit = *block.GasLimit
		}
		if block.Withdrawals != nil {
			env.Withdrawals = block.Withdrawals
		}
		env = env.SetForkRequirements(fork)

		txs, err := signAll(block.Txs)
		if err != nil {
			return nil, common.Hash{}, nil, errors.Wrapf(err, "block %d", i)
		}

		nextAlloc, result, err := tool.Evaluate(ctx, &t8n.Request{
			Alloc:   alloc,
			Txs:     txs,
			Env:     env,
			Fork:    fork,
			ChainID: opts.chainID(),
			Reward:  fork.BlockReward(),
			EIPs:    opts.EIPs,
		})
		if err != nil {
			return nil, common.Hash{}, nil, errors.Wrapf(err, "block %d", i)
		}

		rejected, err := VerifyTransactions(txs, result)
		if err != nil {
			return nil, common.Hash{}, nil, errors.Wrapf(err, "block %d", i)
		}
		if len(rejected) > 0 && block.ExpectException == "" {
			return nil, common.Hash{}, nil, errors.Errorf(
				"block %d carries rejected transactions but no expected exception", i)
		}

		header := types.HeaderFromToolOutput(result.HeaderOutput(), env, parent.Hash)
		if block.ExtraData != nil {
			header.ExtraData = block.ExtraData
		}
		blockRLP, hash, err := header.Build(txs, nil, env.Withdrawals)
		if err != nil {
			return nil, common.Hash{}, nil, errors.Wrapf(err, "block %d", i)
		}

		var newPayload *types.FixtureEngineNewPayload
		if opts.EnginePayloads {
			newPayload, err = types.NewFixtureEngineNewPayload(fork, header, txs, env.Withdrawals, block.EngineAPIErrorCode)
			if err != nil {
				return nil, common.Hash{}, nil, errors.Wrapf(err, "block %d", i)
			}
		}

		if block.ExpectException != "" {
			// Invalid block: record the encoding and the expected error,
			// keep the chain state where it was.
			blocks = append(blocks, &types.FixtureBlock{
				RLP:             blockRLP,
				NewPayload:      newPayload,
				ExpectException: block.ExpectException,
			})
			continue
		}

		blocks = append(blocks, &types.FixtureBlock{
			RLP:         blockRLP,
			Header:      header,
			Txs:         txs,
			Withdrawals: env.Withdrawals,
			NewPayload:  newPayload,
		})
		parent = header
		alloc = nextAlloc
		lastHash = hash
	}

	if err := VerifyPostAlloc(bt.Post, alloc); err != nil {
		dumpDiagnostics(tool, alloc)
		return nil, common.Hash{}, nil, err
	}
	return blocks, lastHash, alloc, nil
}

// Fill compiles the scenario into a fixture for the given fork.
func (bt *BlockchainTest) Fill(ctx context.Context, tool t8n.Tool, fork config.Fork, opts FillOptions) (*types.Fixture, error) {
	genesisRLP, genesis, err := bt.MakeGenesis(ctx, tool, fork)
	if err != nil {
		return nil, err
	}
	blocks, lastHash, alloc, err := bt.MakeBlocks(ctx, tool, genesis, fork, opts)
	if err != nil {
		return nil, err
	}
	return &types.Fixture{
		Network:       fork.String(),
		Genesis:       genesis,
		GenesisRLP:    genesisRLP,
		Blocks:        blocks,
		LastBlockHash: lastHash,
		Pre:           bt.Pre,
		Post:          alloc,
		SealEngine:    "NoProof",
	}, nil
}
