// Package filler compiles declarative test scenarios into portable block
// fixtures by driving an external state transition tool and verifying its
// output against the scenario's expectations.
package filler

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/globals"
	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

var log = log15.New("module", "filler")

// FillOptions tunes one fill run.
type FillOptions struct {
	ChainID        *big.Int
	EIPs           []int
	EnginePayloads bool
}

func (o FillOptions) chainID() *big.Int {
	if o.ChainID != nil {
		return o.ChainID
	}
	return globals.ChainID
}

// Spec is a single fillable scenario. StateTest and BlockchainTest implement
// it.
type Spec interface {
	SpecName() string
	Fill(ctx context.Context, tool t8n.Tool, fork config.Fork, opts FillOptions) (*types.Fixture, error)
}

// Registration binds a named generator to the fork range it supports.
// Generators are pure: each call yields fresh scenario values, so the same
// registration can be filled for many forks without shared state.
type Registration struct {
	Name     string
	From     config.Fork
	Generate func(fork config.Fork) []Spec
}

var (
	registryMu sync.Mutex
	registry   []Registration
)

// Register adds a filler to the registry. Typically called from init.
func Register(r Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, r)
}

// Registrations returns all registered fillers.
func Registrations() []Registration {
	registryMu.Lock()
	defer registryMu.Unlock()
	return append([]Registration(nil), registry...)
}

// FillRegistration fills every scenario the registration generates, for every
// given fork it supports, and returns the resulting fixtures keyed by
// "<name>_<fork>[_<index>][_<tag>]".
func FillRegistration(ctx context.Context, tool t8n.Tool, r Registration, forks []config.Fork, opts FillOptions) (map[string]*types.Fixture, error) {
	fixtures := make(map[string]*types.Fixture)
	for _, fork := range forks {
		if !fork.AtLeast(r.From) {
			continue
		}
		specs := r.Generate(fork)
		for i, spec := range specs {
			name := fmt.Sprintf("%s_%s", r.Name, fork)
			if len(specs) > 1 {
				name = fmt.Sprintf("%s_%d", name, i)
			}
			if tag := spec.SpecName(); tag != "" {
				name = fmt.Sprintf("%s_%s", name, tag)
			}
			log.Info("filling", "fixture", name)
			fixture, err := spec.Fill(ctx, tool, fork, opts)
			if err != nil {
				return nil, errors.Wrapf(err, "filling %s failed", name)
			}
			fixture.Info = map[string]string{
				"filler": r.Name,
				"fork":   fork.String(),
			}
			fixtures[name] = fixture
		}
	}
	return fixtures, nil
}

// makeGenesis builds the genesis block shared by both scenario shapes. The
// state root comes from the tool; everything else is protocol defaults plus
// the fork-refined environment. The genesis number is the first test block's
// number minus one, and its gas used is always zero.
func makeGenesis(ctx context.Context, tool t8n.Tool, fork config.Fork, env *types.Environment, pre types.Alloc) ([]byte, *types.FixtureHeader, error) {
	env = env.SetForkRequirements(fork)

	stateRoot, err := tool.CalcStateRoot(ctx, pre, fork)
	if err != nil {
		return nil, nil, errors.Wrap(err, "genesis state root computation failed")
	}
	var withdrawalsRoot *common.Hash
	if env.Withdrawals != nil {
		root, err := tool.CalcWithdrawalsRoot(ctx, env.Withdrawals, fork)
		if err != nil {
			return nil, nil, errors.Wrap(err, "genesis withdrawals root computation failed")
		}
		withdrawalsRoot = &root
	}
	difficulty := env.Difficulty
	if difficulty == nil {
		difficulty = globals.GenesisDifficulty
	}
	genesis := &types.FixtureHeader{
		OmmersHash:       globals.EmptyOmmersRoot,
		StateRoot:        stateRoot,
		TransactionsRoot: globals.EmptyTrieRoot,
		ReceiptsRoot:     globals.EmptyTrieRoot,
		Difficulty:       types.NewBig(difficulty),
		Number:           types.Uint64(env.Number - 1),
		GasLimit:         types.Uint64(env.GasLimit),
		ExtraData:        []byte{0x00},
		BaseFee:          types.NewBig(env.BaseFee),
		WithdrawalsRoot:  withdrawalsRoot,
	}
	if env.DataGasUsed != nil {
		genesis.DataGasUsed = types.Uint64Ptr(*env.DataGasUsed)
	}
	if env.ExcessDataGas != nil {
		genesis.ExcessDataGas = types.Uint64Ptr(*env.ExcessDataGas)
	}
	genesisRLP, _, err := genesis.Build(nil, nil, env.Withdrawals)
	if err != nil {
		return nil, nil, err
	}
	return genesisRLP, genesis, nil
}

// signAll signs every transaction of a block, so the tool receives explicit
// senders. The templates themselves stay untouched.
func signAll(txs []*types.Transaction) ([]*types.Transaction, error) {
	signed := make([]*types.Transaction, len(txs))
	for i, tx := range txs {
		stx, err := tx.WithSignatureAndSender()
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %d", i)
		}
		signed[i] = stx
	}
	return signed, nil
}

// dumpDiagnostics logs the tool's execution traces and the resulting
// allocation after a verification failure.
func dumpDiagnostics(tool t8n.Tool, alloc types.Alloc) {
	for _, trace := range tool.GetTraces() {
		log.Debug("execution trace", "file", trace.Name, "data", string(trace.Data))
	}
	log.Debug("resulting allocation", "alloc", spew.Sdump(alloc))
}

func spewAccount(account *types.Account) string {
	return spew.Sdump(account)
}
