package t8n

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/types"
)

func TestForkArg(t *testing.T) {
	tests := []struct {
		fork config.Fork
		eips []int
		want string
	}{
		{config.Merge, nil, "Merge"},
		{config.Sharding, nil, "ShardingFork"},
		{config.Shanghai, []int{3855}, "Shanghai+3855"},
		{config.Merge, []int{3651, 3855}, "Merge+3651+3855"},
	}
	for _, test := range tests {
		if got := forkArg(test.fork, test.eips); got != test.want {
			t.Errorf("forkArg(%s, %v) = %q, want %q", test.fork, test.eips, got, test.want)
		}
	}
}

func TestResultDecoding(t *testing.T) {
	// Trimmed real-world tool output: hex and decimal number forms mixed.
	input := `{
		"stateRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"txRoot": "0x0000000000000000000000000000000000000000000000000000000000000002",
		"receiptsRoot": "0x0000000000000000000000000000000000000000000000000000000000000003",
		"logsHash": "0x0000000000000000000000000000000000000000000000000000000000000004",
		"logsBloom": "0x` + zeroes(512) + `",
		"rejected": [{"index": 1, "error": "nonce too high"}],
		"currentDifficulty": null,
		"gasUsed": "0x5208",
		"currentBaseFee": "0x7",
		"currentDataGasUsed": "0x20000",
		"currentExcessDataGas": "0x40000"
	}`
	var result Result
	if err := json.Unmarshal([]byte(input), &result); err != nil {
		t.Fatal(err)
	}
	if uint64(result.GasUsed) != 21000 {
		t.Fatalf("gas used %d, want 21000", result.GasUsed)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Index != 1 {
		t.Fatalf("rejected list %v not decoded", result.Rejected)
	}

	out := result.HeaderOutput()
	if out.BaseFee.Int64() != 7 {
		t.Fatalf("base fee %v, want 7", out.BaseFee)
	}
	if out.Difficulty != nil {
		t.Fatal("null difficulty must stay nil")
	}
	if out.DataGasUsed == nil || *out.DataGasUsed != 0x20000 {
		t.Fatal("data gas used not carried over")
	}
	if out.ExcessDataGas == nil || *out.ExcessDataGas != 0x40000 {
		t.Fatal("excess data gas not carried over")
	}
}

func TestStdinEncoding(t *testing.T) {
	env := types.DefaultEnvironment()
	env.BaseFee = big.NewInt(7)
	input := &stdinJSON{
		Alloc: types.Alloc{},
		Txs:   []*types.Transaction{},
		Env:   env,
	}
	data, err := json.Marshal(input)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"alloc", "txs", "env"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("stdin document missing %q", key)
		}
	}
	var envKeys map[string]json.RawMessage
	if err := json.Unmarshal(decoded["env"], &envKeys); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"currentCoinbase", "currentGasLimit", "currentNumber", "currentTimestamp", "currentBaseFee"} {
		if _, ok := envKeys[key]; !ok {
			t.Errorf("env document missing %q", key)
		}
	}
}

func zeroes(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = '0'
	}
	return string(buf)
}
