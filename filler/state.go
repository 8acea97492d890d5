package filler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

// ErrRejectedInStateTest marks the hard failure of a state test whose
// transaction set was not accepted in full.
var ErrRejectedInStateTest = errors.New(
	"one or more transactions are intrinsically invalid; state tests require every " +
		"transaction to be valid and included, use a blockchain test to exercise rejection")

// StateTest tests transactions over the period of a single block: the
// supplied transactions are executed against the pre-state and every one of
// them must be accepted. The result is a one-block fixture.
type StateTest struct {
	Env  *types.Environment
	Pre  types.Alloc
	Post types.ExpectedAlloc
	Txs  []*types.Transaction

	// EngineAPIErrorCode is the error the engine payload submission for the
	// produced block is expected to yield. Zero means the submission must
	// succeed.
	EngineAPIErrorCode types.EngineAPIError
	Tag                string
}

func (st *StateTest) SpecName() string { return st.Tag }

// MakeGenesis creates the genesis block preceding the test block.
func (st *StateTest) MakeGenesis(ctx context.Context, tool t8n.Tool, fork config.Fork) (hexutil.Bytes, *types.FixtureHeader, error) {
	return makeGenesis(ctx, tool, fork, st.Env, st.Pre)
}

// MakeBlocks produces the single test block: signs the transactions, runs
// them through the transition tool, enforces that none were rejected,
// verifies the expected post-state, and assembles the fixture block. Returns
// the block, its hash and the resulting allocation.
func (st *StateTest) MakeBlocks(ctx context.Context, tool t8n.Tool, genesis *types.FixtureHeader, fork config.Fork, opts FillOptions) ([]*types.FixtureBlock, common.Hash, types.Alloc, error) {
	env := st.Env.ApplyNewParent(genesis).SetForkRequirements(fork)

	txs, err := signAll(st.Txs)
	if err != nil {
		return nil, common.Hash{}, nil, err
	}

	alloc, result, err := tool.Evaluate(ctx, &t8n.Request{
		Alloc:   st.Pre,
		Txs:     txs,
		Env:     env,
		Fork:    fork,
		ChainID: opts.chainID(),
		Reward:  fork.BlockReward(),
		EIPs:    opts.EIPs,
	})
	if err != nil {
		return nil, common.Hash{}, nil, err
	}

	rejected, err := VerifyTransactions(txs, result)
	if err != nil {
		return nil, common.Hash{}, nil, err
	}
	if len(rejected) > 0 {
		return nil, common.Hash{}, nil, ErrRejectedInStateTest
	}

	if err := VerifyPostAlloc(st.Post, alloc); err != nil {
		dumpDiagnostics(tool, alloc)
		return nil, common.Hash{}, nil, err
	}

	header := types.HeaderFromToolOutput(result.HeaderOutput(), env, genesis.Hash)
	blockRLP, hash, err := header.Build(txs, nil, env.Withdrawals)
	if err != nil {
		return nil, common.Hash{}, nil, err
	}

	var newPayload *types.FixtureEngineNewPayload
	if opts.EnginePayloads {
		newPayload, err = types.NewFixtureEngineNewPayload(fork, header, txs, env.Withdrawals, st.EngineAPIErrorCode)
		if err != nil {
			return nil, common.Hash{}, nil, err
		}
	}

	block := &types.FixtureBlock{
		RLP:         blockRLP,
		Header:      header,
		Txs:         txs,
		Withdrawals: env.Withdrawals,
		NewPayload:  newPayload,
	}
	return []*types.FixtureBlock{block}, hash, alloc, nil
}

// Fill compiles the scenario into a fixture for the given fork.
func (st *StateTest) Fill(ctx context.Context, tool t8n.Tool, fork config.Fork, opts FillOptions) (*types.Fixture, error) {
	genesisRLP, genesis, err := st.MakeGenesis(ctx, tool, fork)
	if err != nil {
		return nil, err
	}
	blocks, lastHash, alloc, err := st.MakeBlocks(ctx, tool, genesis, fork, opts)
	if err != nil {
		return nil, err
	}
	return &types.Fixture{
		Network:       fork.String(),
		Genesis:       genesis,
		GenesisRLP:    genesisRLP,
		Blocks:        blocks,
		LastBlockHash: lastHash,
		Pre:           st.Pre,
		Post:          alloc,
		SealEngine:    "NoProof",
	}, nil
}
