// Package t8n drives the external state transition tool. The tool is an
// opaque collaborator: it owns state root computation and transaction
// execution, and is assumed deterministic, so any invocation failure is fatal
// for the scenario under fill and is never retried.
package t8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/globals"
	"github.com/ethereum/fixturefill/types"
)

// Request carries one block's worth of work for the tool.
type Request struct {
	Alloc   types.Alloc
	Txs     []*types.Transaction
	Env     *types.Environment
	Fork    config.Fork
	ChainID *big.Int
	Reward  *big.Int
	EIPs    []int
}

// RejectedTx reports a transaction the tool refused to include.
type RejectedTx struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Result is the tool's execution result object.
type Result struct {
	StateRoot       common.Hash           `json:"stateRoot"`
	TxRoot          common.Hash           `json:"txRoot"`
	ReceiptsRoot    common.Hash           `json:"receiptsRoot"`
	LogsHash        common.Hash           `json:"logsHash"`
	Bloom           gethtypes.Bloom       `json:"logsBloom"`
	Receipts        json.RawMessage       `json:"receipts,omitempty"`
	Rejected        []*RejectedTx         `json:"rejected,omitempty"`
	Difficulty      *math.HexOrDecimal256 `json:"currentDifficulty"`
	GasUsed         math.HexOrDecimal64   `json:"gasUsed"`
	BaseFee         *math.HexOrDecimal256 `json:"currentBaseFee,omitempty"`
	WithdrawalsRoot *common.Hash          `json:"withdrawalsRoot,omitempty"`
	DataGasUsed     *math.HexOrDecimal64  `json:"currentDataGasUsed,omitempty"`
	ExcessDataGas   *math.HexOrDecimal64  `json:"currentExcessDataGas,omitempty"`
}

// HeaderOutput projects the result onto the header fields the tool owns.
func (r *Result) HeaderOutput() types.ToolOutput {
	out := types.ToolOutput{
		StateRoot:       r.StateRoot,
		TxRoot:          r.TxRoot,
		ReceiptsRoot:    r.ReceiptsRoot,
		Bloom:           r.Bloom,
		GasUsed:         uint64(r.GasUsed),
		Difficulty:      (*big.Int)(r.Difficulty),
		BaseFee:         (*big.Int)(r.BaseFee),
		WithdrawalsRoot: r.WithdrawalsRoot,
	}
	if r.DataGasUsed != nil {
		used := uint64(*r.DataGasUsed)
		out.DataGasUsed = &used
	}
	if r.ExcessDataGas != nil {
		excess := uint64(*r.ExcessDataGas)
		out.ExcessDataGas = &excess
	}
	return out
}

// Trace is one execution trace file emitted by the tool.
type Trace struct {
	Name string
	Data []byte
}

// Tool is the narrow interface the fill pipeline needs from a transition
// tool implementation.
type Tool interface {
	Evaluate(ctx context.Context, req *Request) (types.Alloc, *Result, error)
	CalcStateRoot(ctx context.Context, alloc types.Alloc, fork config.Fork) (common.Hash, error)
	CalcWithdrawalsRoot(ctx context.Context, withdrawals []*gethtypes.Withdrawal, fork config.Fork) (common.Hash, error)
	// GetTraces returns the traces collected by the most recent Evaluate,
	// consulted only on verification failure.
	GetTraces() []Trace
}

// Evm invokes a geth-style `evm t8n` binary, speaking JSON over
// stdin/stdout.
type Evm struct {
	binary string
	trace  bool
	traces []Trace
	log    log15.Logger
}

// NewEvm returns a tool driver for the given binary path. With trace enabled
// every Evaluate collects the tool's per-transaction trace files.
func NewEvm(binary string, trace bool) *Evm {
	return &Evm{
		binary: binary,
		trace:  trace,
		log:    log15.New("module", "t8n"),
	}
}

type stdinJSON struct {
	Alloc types.Alloc          `json:"alloc"`
	Txs   []*types.Transaction `json:"txs"`
	Env   *types.Environment   `json:"env"`
}

type stdoutJSON struct {
	Alloc  types.Alloc `json:"alloc"`
	Result *Result     `json:"result"`
}

// forkArg builds the tool's fork identifier: the fork name with any
// additionally activated EIPs appended.
func forkArg(fork config.Fork, eips []int) string {
	name := fork.String()
	for _, eip := range eips {
		name += fmt.Sprintf("+%d", eip)
	}
	return name
}

func (e *Evm) run(ctx context.Context, args []string, input *stdinJSON) (*stdoutJSON, error) {
	stdin, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "tool input encoding failed")
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	e.log.Debug("invoking transition tool", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "transition tool failed: %s", stderr.String())
	}
	var output stdoutJSON
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, errors.Wrap(err, "malformed transition tool output")
	}
	if output.Result == nil {
		return nil, errors.New("transition tool returned no result object")
	}
	return &output, nil
}

// Evaluate executes the request's transactions against its pre-state and
// returns the resulting allocation and execution result.
func (e *Evm) Evaluate(ctx context.Context, req *Request) (types.Alloc, *Result, error) {
	args := []string{
		"t8n",
		"--input.alloc=stdin",
		"--input.txs=stdin",
		"--input.env=stdin",
		"--output.result=stdout",
		"--output.alloc=stdout",
		"--state.fork=" + forkArg(req.Fork, req.EIPs),
	}
	if req.ChainID != nil {
		args = append(args, "--state.chainid="+req.ChainID.String())
	}
	reward := req.Reward
	if reward == nil {
		reward = new(big.Int)
	}
	args = append(args, "--state.reward="+reward.String())

	var traceDir string
	if e.trace {
		dir, err := os.MkdirTemp("", "fixturefill-traces-*")
		if err != nil {
			return nil, nil, errors.Wrap(err, "trace directory creation failed")
		}
		defer os.RemoveAll(dir)
		traceDir = dir
		args = append(args, "--trace", "--output.basedir="+dir)
	}

	txs := req.Txs
	if txs == nil {
		txs = []*types.Transaction{}
	}
	output, err := e.run(ctx, args, &stdinJSON{Alloc: req.Alloc, Txs: txs, Env: req.Env})
	if err != nil {
		return nil, nil, err
	}
	if e.trace {
		e.traces = collectTraces(traceDir, e.log)
	}
	return output.Alloc, output.Result, nil
}

// CalcStateRoot computes the state root of an allocation under the fork's
// rules by running the tool with no transactions over a zeroed environment.
func (e *Evm) CalcStateRoot(ctx context.Context, alloc types.Alloc, fork config.Fork) (common.Hash, error) {
	env := &types.Environment{GasLimit: 0, Number: 0, Timestamp: 0}
	if fork.HeaderBaseFeeRequired() {
		env.BaseFee = new(big.Int).Set(globals.DefaultBaseFee)
	}
	if fork.HeaderExcessDataGasRequired() {
		zero := uint64(0)
		env.ExcessDataGas = &zero
	}
	_, result, err := e.Evaluate(ctx, &Request{Alloc: alloc, Env: env, Fork: fork})
	if err != nil {
		return common.Hash{}, err
	}
	return result.StateRoot, nil
}

// CalcWithdrawalsRoot computes the withdrawals root for a withdrawal list
// by running the tool over an empty state.
func (e *Evm) CalcWithdrawalsRoot(ctx context.Context, withdrawals []*gethtypes.Withdrawal, fork config.Fork) (common.Hash, error) {
	env := &types.Environment{Withdrawals: withdrawals}
	if fork.HeaderBaseFeeRequired() {
		env.BaseFee = new(big.Int).Set(globals.DefaultBaseFee)
	}
	_, result, err := e.Evaluate(ctx, &Request{Alloc: types.Alloc{}, Env: env, Fork: fork})
	if err != nil {
		return common.Hash{}, err
	}
	if result.WithdrawalsRoot == nil {
		return common.Hash{}, errors.New("transition tool returned no withdrawals root")
	}
	return *result.WithdrawalsRoot, nil
}

// GetTraces returns the traces collected by the most recent Evaluate.
func (e *Evm) GetTraces() []Trace {
	return e.traces
}

func collectTraces(dir string, log log15.Logger) []Trace {
	var traces []Trace
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("trace collection failed", "dir", dir, "error", err)
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "trace-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn("trace file unreadable", "file", entry.Name(), "error", err)
			continue
		}
		traces = append(traces, Trace{Name: entry.Name(), Data: data})
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].Name < traces[j].Name })
	return traces
}
