package filler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/globals"
	"github.com/ethereum/fixturefill/t8n"
	"github.com/ethereum/fixturefill/types"
)

// fakeTool scripts the transition tool: each Evaluate call is answered by the
// next response in the queue. The genesis state root is a fixed marker value.
type fakeTool struct {
	responses []fakeResponse
	calls     int
	requests  []*t8n.Request
}

type fakeResponse struct {
	alloc  types.Alloc
	result *t8n.Result
}

var fakeStateRoot = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000feedbeef")

func (f *fakeTool) Evaluate(_ context.Context, req *t8n.Request) (types.Alloc, *t8n.Result, error) {
	if f.calls >= len(f.responses) {
		return nil, nil, errors.New("fake tool: no scripted response left")
	}
	resp := f.responses[f.calls]
	f.calls++
	f.requests = append(f.requests, req)
	return resp.alloc, resp.result, nil
}

func (f *fakeTool) CalcStateRoot(context.Context, types.Alloc, config.Fork) (common.Hash, error) {
	return fakeStateRoot, nil
}

func (f *fakeTool) CalcWithdrawalsRoot(context.Context, []*gethtypes.Withdrawal, config.Fork) (common.Hash, error) {
	return globals.EmptyTrieRoot, nil
}

func (f *fakeTool) GetTraces() []t8n.Trace { return nil }

func okResult(gasUsed uint64) *t8n.Result {
	return &t8n.Result{
		StateRoot:    common.HexToHash("0x0a"),
		TxRoot:       common.HexToHash("0x0b"),
		ReceiptsRoot: common.HexToHash("0x0c"),
		GasUsed:      math.HexOrDecimal64(gasUsed),
		Difficulty:   (*math.HexOrDecimal256)(big.NewInt(0)),
		BaseFee:      (*math.HexOrDecimal256)(big.NewInt(7)),
	}
}

func transferScenario() *StateTest {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	return &StateTest{
		Env: types.DefaultEnvironment(),
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
	}
}

func transferResultAlloc() types.Alloc {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	return types.Alloc{
		globals.TestAddress: &types.Account{Nonce: 1, Balance: big.NewInt(1)},
		recipient:           &types.Account{Balance: big.NewInt(100)},
	}
}

func TestStateTestFill(t *testing.T) {
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: transferResultAlloc(), result: okResult(21_000)},
	}}
	st := transferScenario()

	fixture, err := st.Fill(context.Background(), tool, config.Merge, FillOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(fixture.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(fixture.Blocks))
	}
	block := fixture.Blocks[0]

	// Genesis precedes the test block and carries the tool's state root.
	if got, want := fixture.Genesis.Number.Uint64(), st.Env.Number-1; got != want {
		t.Fatalf("genesis number %d, want %d", got, want)
	}
	if fixture.Genesis.GasUsed != 0 {
		t.Fatal("genesis gas used must be zero")
	}
	if fixture.Genesis.StateRoot != fakeStateRoot {
		t.Fatal("genesis state root not taken from the tool")
	}

	// Chain linkage.
	if block.Header.ParentHash != fixture.Genesis.Hash {
		t.Fatal("block parent hash does not match the genesis hash")
	}
	if fixture.LastBlockHash != block.Header.Hash {
		t.Fatal("lastblockhash does not match the only block")
	}

	// The transaction reached the tool signed, with an explicit sender.
	sent := tool.requests[0].Txs
	if len(sent) != 1 || sent[0].Sender == nil || *sent[0].Sender != globals.TestAddress {
		t.Fatal("transaction not signed with the default test key before evaluation")
	}

	// Resulting allocation becomes the fixture post-state.
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	if fixture.Post[recipient].Balance.Int64() != 100 {
		t.Fatal("post-state not taken from the tool's resulting allocation")
	}
	if fixture.SealEngine != "NoProof" {
		t.Fatalf("seal engine %q, want NoProof", fixture.SealEngine)
	}
}

func TestStateTestRejectionIsFatal(t *testing.T) {
	tool := &fakeTool{responses: []fakeResponse{
		{
			alloc: transferResultAlloc(),
			result: func() *t8n.Result {
				r := okResult(0)
				r.Rejected = []*t8n.RejectedTx{{Index: 0, Error: "nonce too high"}}
				return r
			}(),
		},
	}}
	st := transferScenario()
	st.Txs[0].ExpectedError = "nonce too high"

	_, err := st.Fill(context.Background(), tool, config.Merge, FillOptions{})
	if !errors.Is(err, ErrRejectedInStateTest) {
		t.Fatalf("got %v, want ErrRejectedInStateTest", err)
	}
}

func TestStateTestPostMismatch(t *testing.T) {
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: transferResultAlloc(), result: okResult(21_000)},
	}}
	st := transferScenario()
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	st.Post = types.ExpectedAlloc{
		recipient: &types.ExpectedAccount{Balance: big.NewInt(999)},
	}
	if _, err := st.Fill(context.Background(), tool, config.Merge, FillOptions{}); err == nil {
		t.Fatal("post-state mismatch not reported")
	}
}

func TestBlockchainTestChainLinkage(t *testing.T) {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	tx := func(nonce uint64) *types.Transaction {
		return &types.Transaction{
			Type:     types.LegacyTxType,
			Nonce:    nonce,
			GasPrice: big.NewInt(10),
			GasLimit: 21_000,
			To:       &recipient,
			Value:    big.NewInt(100),
		}
	}
	endState := types.Alloc{
		globals.TestAddress: &types.Account{Nonce: 2, Balance: big.NewInt(1)},
		recipient:           &types.Account{Balance: big.NewInt(200)},
	}
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: transferResultAlloc(), result: okResult(21_000)},
		{alloc: endState, result: okResult(21_000)},
	}}

	bt := &BlockchainTest{
		Env: types.DefaultEnvironment(),
		Pre: types.Alloc{
			globals.TestAddress: &types.Account{
				Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
			},
		},
		Blocks: []*Block{
			{Txs: []*types.Transaction{tx(0)}},
			{Txs: []*types.Transaction{tx(1)}},
		},
		Post: types.ExpectedAlloc{
			recipient: &types.ExpectedAccount{Balance: big.NewInt(200)},
		},
	}

	fixture, err := bt.Fill(context.Background(), tool, config.Merge, FillOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(fixture.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(fixture.Blocks))
	}
	first, second := fixture.Blocks[0], fixture.Blocks[1]
	if first.Header.ParentHash != fixture.Genesis.Hash {
		t.Fatal("first block not linked to genesis")
	}
	if second.Header.ParentHash != first.Header.Hash {
		t.Fatal("second block not linked to the first")
	}
	if second.Header.Number.Uint64() != first.Header.Number.Uint64()+1 {
		t.Fatal("block numbers do not increment")
	}
	if second.Header.Timestamp.Uint64() != first.Header.Timestamp.Uint64()+12 {
		t.Fatal("default timestamp step not applied")
	}
	if fixture.LastBlockHash != second.Header.Hash {
		t.Fatal("lastblockhash does not match the chain head")
	}
}

func TestBlockchainTestInvalidBlock(t *testing.T) {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	valid := &types.Transaction{
		Type:     types.LegacyTxType,
		GasPrice: big.NewInt(10),
		GasLimit: 21_000,
		To:       &recipient,
		Value:    big.NewInt(100),
	}
	invalid := valid.WithFields(types.CustomTransactionData{})
	invalid.Nonce = 10
	invalid.ExpectedError = "nonce too high"

	rejectedResult := okResult(0)
	rejectedResult.Rejected = []*t8n.RejectedTx{{Index: 0, Error: "nonce too high"}}

	pre := types.Alloc{
		globals.TestAddress: &types.Account{
			Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
		},
	}
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: pre.Copy(), result: rejectedResult},
		{alloc: transferResultAlloc(), result: okResult(21_000)},
	}}

	bt := &BlockchainTest{
		Env: types.DefaultEnvironment(),
		Pre: pre,
		Blocks: []*Block{
			{Txs: []*types.Transaction{invalid}, ExpectException: "nonce too high"},
			{Txs: []*types.Transaction{valid}},
		},
		Post: types.ExpectedAlloc{
			recipient: &types.ExpectedAccount{Balance: big.NewInt(100)},
		},
	}

	fixture, err := bt.Fill(context.Background(), tool, config.Merge, FillOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(fixture.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(fixture.Blocks))
	}
	bad, good := fixture.Blocks[0], fixture.Blocks[1]
	if bad.ExpectException == "" || bad.Header != nil {
		t.Fatal("invalid block must carry only its encoding and expected exception")
	}
	if len(bad.RLP) == 0 {
		t.Fatal("invalid block encoding missing")
	}
	// The invalid block does not advance the chain.
	if good.Header.ParentHash != fixture.Genesis.Hash {
		t.Fatal("invalid block advanced the chain")
	}
	if good.Header.Number.Uint64() != 1 {
		t.Fatalf("valid block number %d, want 1", good.Header.Number.Uint64())
	}
}

func TestBlockchainTestRejectionNeedsException(t *testing.T) {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000b00")
	tx := &types.Transaction{
		Type:          types.LegacyTxType,
		Nonce:         10,
		GasPrice:      big.NewInt(10),
		GasLimit:      21_000,
		To:            &recipient,
		ExpectedError: "nonce too high",
	}
	rejectedResult := okResult(0)
	rejectedResult.Rejected = []*t8n.RejectedTx{{Index: 0, Error: "nonce too high"}}

	pre := types.Alloc{
		globals.TestAddress: &types.Account{Balance: big.NewInt(1_000_000)},
	}
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: pre.Copy(), result: rejectedResult},
	}}
	bt := &BlockchainTest{
		Env:    types.DefaultEnvironment(),
		Pre:    pre,
		Blocks: []*Block{{Txs: []*types.Transaction{tx}}},
		Post:   types.ExpectedAlloc{},
	}
	if _, err := bt.Fill(context.Background(), tool, config.Merge, FillOptions{}); err == nil {
		t.Fatal("rejected transaction in a block without expected exception accepted")
	}
}

func TestFillRegistrationForkRange(t *testing.T) {
	tool := &fakeTool{responses: []fakeResponse{
		{alloc: transferResultAlloc(), result: okResult(21_000)},
		{alloc: transferResultAlloc(), result: okResult(21_000)},
	}}
	reg := Registration{
		Name: "transfer",
		From: config.Merge,
		Generate: func(config.Fork) []Spec {
			return []Spec{transferScenario()}
		},
	}
	filled, err := FillRegistration(context.Background(), tool, reg, []config.Fork{config.London, config.Merge}, FillOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(filled) != 1 {
		t.Fatalf("got %d fixtures, want 1 (London is below the filler's fork range)", len(filled))
	}
	fixture, ok := filled["transfer_Merge"]
	if !ok {
		t.Fatalf("fixture name missing, got %v", keys(filled))
	}
	if fixture.Network != "Merge" {
		t.Fatalf("network %q, want Merge", fixture.Network)
	}
	if fixture.Info["filler"] != "transfer" || fixture.Info["fork"] != "Merge" {
		t.Fatalf("info metadata %v incomplete", fixture.Info)
	}
}

func keys(m map[string]*types.Fixture) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
