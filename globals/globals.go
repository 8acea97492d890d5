package globals

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// Test chain parameters
	ChainID = big.NewInt(1)

	// TestKey is the well-known state test signing key. Transactions that do
	// not name an explicit key are signed with this one.
	TestKeyHex  = "45a915e4686e89b5199f7ac255a87ca2f0d7e827b6297c2e988a5e186394c5fd"
	TestKey, _  = crypto.HexToECDSA(TestKeyHex)
	TestAddress = crypto.PubkeyToAddress(TestKey.PublicKey)

	// TestKey2 is a secondary funded account for scenarios that need a second
	// independent sender (e.g. parent-block blob transactions).
	TestKey2Hex  = "9e7645d0cfd9c3a04eb7a9db59a4eb7d359f2e75c9164a9d6b9a7d54e1b6a36f"
	TestKey2, _  = crypto.HexToECDSA(TestKey2Hex)
	TestAddress2 = crypto.PubkeyToAddress(TestKey2.PublicKey)

	// DefaultCoinbase receives fees in scenarios that do not override it.
	DefaultCoinbase = common.HexToAddress("0x2adc25665018aa1fe0e6bc666dac8fc2697ff9ba")

	// Header constants for a single-validator, no-ommers chain.
	EmptyOmmersRoot = common.HexToHash("0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347")
	EmptyTrieRoot   = common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

	// Genesis defaults.
	GenesisDifficulty = big.NewInt(0x20000)
	DefaultBaseFee    = big.NewInt(7)
)

// Keys returns the default signing key ring.
func Keys() []*ecdsa.PrivateKey {
	return []*ecdsa.PrivateKey{TestKey, TestKey2}
}
