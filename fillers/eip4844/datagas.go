// Package eip4844 contains blob transaction scenarios and the blob fee market
// arithmetic they assert against, using the pre-final protocol parameters.
package eip4844

import "math/big"

// Blob fee market parameters.
const (
	DataGasPerBlob             = uint64(1 << 17)
	TargetDataGasPerBlock      = uint64(1 << 18)
	MaxDataGasPerBlock         = uint64(1 << 19)
	MaxBlobsPerBlock           = int(MaxDataGasPerBlock / DataGasPerBlob)
	MinDataGasPrice            = 1
	DataGasPriceUpdateFraction = 3338477
)

// CalcExcessDataGas computes a block's excess data gas from its parent's
// excess and consumption. Consumption below the target bleeds the excess off.
func CalcExcessDataGas(parentExcessDataGas, parentDataGasUsed uint64) uint64 {
	if parentExcessDataGas+parentDataGasUsed < TargetDataGasPerBlock {
		return 0
	}
	return parentExcessDataGas + parentDataGasUsed - TargetDataGasPerBlock
}

// GetDataGasPrice returns the data gas price implied by the given excess data
// gas.
func GetDataGasPrice(excessDataGas uint64) *big.Int {
	return fakeExponential(
		big.NewInt(MinDataGasPrice),
		new(big.Int).SetUint64(excessDataGas),
		big.NewInt(DataGasPriceUpdateFraction),
	)
}

// fakeExponential approximates factor * e ** (numerator / denominator) with
// the protocol's Taylor expansion. Integer-exact, matches the consensus
// definition term for term.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	var (
		i      = big.NewInt(1)
		output = new(big.Int)
		accum  = new(big.Int).Mul(factor, denominator)
	)
	for accum.Sign() > 0 {
		output.Add(output, accum)
		accum.Mul(accum, numerator)
		accum.Div(accum, denominator)
		accum.Div(accum, i)
		i.Add(i, big.NewInt(1))
	}
	return output.Div(output, denominator)
}
