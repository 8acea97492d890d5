package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Fork identifies the protocol rule set a fixture is filled for. The ladder
// below is ordered; every fork activates everything before it.
type Fork string

const (
	Berlin   Fork = "Berlin"
	London   Fork = "London"
	Merge    Fork = "Merge"
	Shanghai Fork = "Shanghai"
	// Sharding is the blob transaction fork (EIP-4844, pre-final numbering).
	Sharding Fork = "ShardingFork"
)

var forkOrder = map[Fork]int{
	Berlin:   0,
	London:   1,
	Merge:    2,
	Shanghai: 3,
	Sharding: 4,
}

// AllForks lists every supported fork, oldest first.
func AllForks() []Fork {
	return []Fork{Berlin, London, Merge, Shanghai, Sharding}
}

// ByName resolves a fork identifier from its fixture network name.
func ByName(name string) (Fork, error) {
	f := Fork(name)
	if _, ok := forkOrder[f]; !ok {
		return "", fmt.Errorf("unknown fork %q", name)
	}
	return f, nil
}

func (f Fork) String() string { return string(f) }

// AtLeast reports whether f activates the rules of other.
func (f Fork) AtLeast(other Fork) bool {
	fi, ok1 := forkOrder[f]
	oi, ok2 := forkOrder[other]
	return ok1 && ok2 && fi >= oi
}

// HeaderBaseFeeRequired reports whether block headers must carry a base fee.
func (f Fork) HeaderBaseFeeRequired() bool {
	return f.AtLeast(London)
}

// HeaderWithdrawalsRequired reports whether block headers must carry a
// withdrawals root.
func (f Fork) HeaderWithdrawalsRequired() bool {
	return f.AtLeast(Shanghai)
}

// HeaderExcessDataGasRequired reports whether block headers must carry the
// blob fee market fields.
func (f Fork) HeaderExcessDataGasRequired() bool {
	return f.AtLeast(Sharding)
}

// BlockReward returns the coinbase reward handed to the transition tool, or
// nil for proof-of-stake forks where no issuance applies.
func (f Fork) BlockReward() *big.Int {
	if f.AtLeast(Merge) {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether))
}

// EngineNewPayloadVersion returns the engine API payload version used when a
// block of this fork is submitted to an execution client.
func (f Fork) EngineNewPayloadVersion() uint64 {
	switch {
	case f.AtLeast(Sharding):
		return 3
	case f.AtLeast(Shanghai):
		return 2
	default:
		return 1
	}
}
