package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/fixturefill/types"
)

func TestCollectionWrite(t *testing.T) {
	dir := t.TempDir()
	c := NewCollection()
	err := c.Add("value_transfer", map[string]*types.Fixture{
		"value_transfer_Merge": {
			Network:    "Merge",
			Genesis:    &types.FixtureHeader{},
			SealEngine: "NoProof",
			Info:       map[string]string{"filler": "value_transfer", "fork": "Merge"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Write(dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "value_transfer.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]struct {
		Network string            `json:"network"`
		Info    map[string]string `json:"_info"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	fixture, ok := decoded["value_transfer_Merge"]
	if !ok {
		t.Fatal("fixture name missing from the written file")
	}
	if fixture.Network != "Merge" || fixture.Info["fork"] != "Merge" {
		t.Fatalf("fixture content %+v not round-tripped", fixture)
	}
}

func TestCollectionDuplicate(t *testing.T) {
	c := NewCollection()
	one := map[string]*types.Fixture{"a_Merge": {Network: "Merge"}}
	if err := c.Add("a", one); err != nil {
		t.Fatal(err)
	}
	if err := c.Add("a", one); err == nil {
		t.Fatal("duplicate fixture name accepted")
	}
}
