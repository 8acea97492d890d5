package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/globals"
)

func TestSetForkRequirements(t *testing.T) {
	env := DefaultEnvironment()

	berlin := env.SetForkRequirements(config.Berlin)
	if berlin.BaseFee != nil || berlin.Withdrawals != nil || berlin.ExcessDataGas != nil {
		t.Fatal("pre-London environment must not carry fork-conditional fields")
	}

	london := env.SetForkRequirements(config.London)
	if london.BaseFee == nil || london.BaseFee.Cmp(globals.DefaultBaseFee) != 0 {
		t.Fatalf("London default base fee: got %v, want %v", london.BaseFee, globals.DefaultBaseFee)
	}

	shanghai := env.SetForkRequirements(config.Shanghai)
	if shanghai.Withdrawals == nil || len(shanghai.Withdrawals) != 0 {
		t.Fatal("Shanghai environment must carry an empty withdrawals list")
	}

	sharding := env.SetForkRequirements(config.Sharding)
	if sharding.ExcessDataGas == nil || *sharding.ExcessDataGas != 0 {
		t.Fatal("blob fork environment must carry zero excess data gas")
	}
	if sharding.DataGasUsed == nil || *sharding.DataGasUsed != 0 {
		t.Fatal("blob fork environment must carry zero data gas used")
	}

	// Explicit values survive.
	env2 := DefaultEnvironment()
	env2.BaseFee = big.NewInt(1000)
	if got := env2.SetForkRequirements(config.London).BaseFee; got.Int64() != 1000 {
		t.Fatalf("explicit base fee overwritten: got %v", got)
	}

	// The receiver is never mutated.
	if env.BaseFee != nil || env.Withdrawals != nil {
		t.Fatal("SetForkRequirements mutated its receiver")
	}
}

func TestSetForkRequirementsParentValues(t *testing.T) {
	// When parent context supplies the fee fields, no defaults are injected:
	// the transition tool derives the current values from the parent.
	env := DefaultEnvironment()
	parentBaseFee := big.NewInt(100)
	parentExcess := uint64(1 << 18)
	parentUsed := uint64(1 << 17)
	env.ParentBaseFee = parentBaseFee
	env.ParentExcessDataGas = &parentExcess
	env.ParentDataGasUsed = &parentUsed

	refined := env.SetForkRequirements(config.Sharding)
	if refined.BaseFee != nil {
		t.Fatal("base fee default injected despite parent base fee")
	}
	if refined.ExcessDataGas != nil || refined.DataGasUsed != nil {
		t.Fatal("blob gas defaults injected despite parent values")
	}
}

func TestApplyNewParent(t *testing.T) {
	used, excess := Uint64(1<<17), Uint64(1<<18)
	parent := testHeader()
	parent.DataGasUsed = &used
	parent.ExcessDataGas = &excess
	if _, _, err := parent.Build(nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	env := DefaultEnvironment().ApplyNewParent(parent)
	if env.ParentTimestamp != parent.Timestamp.Uint64() {
		t.Fatal("parent timestamp not propagated")
	}
	if env.ParentBaseFee == nil || env.ParentBaseFee.Cmp(parent.BaseFee.ToInt()) != 0 {
		t.Fatal("parent base fee not propagated")
	}
	if env.ParentGasUsed == nil || *env.ParentGasUsed != parent.GasUsed.Uint64() {
		t.Fatal("parent gas used not propagated")
	}
	if env.ParentExcessDataGas == nil || *env.ParentExcessDataGas != uint64(1<<18) {
		t.Fatal("parent excess data gas not propagated")
	}
	if env.ParentDataGasUsed == nil || *env.ParentDataGasUsed != uint64(1<<17) {
		t.Fatal("parent data gas used not propagated")
	}
	if env.BlockHashes[parent.Number.Uint64()] != parent.Hash {
		t.Fatal("parent hash not recorded for BLOCKHASH visibility")
	}
}
