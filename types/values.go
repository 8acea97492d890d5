package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

// Uint64 is an unsigned integer that marshals as 0x-prefixed, zero-padded,
// even-length hexadecimal, the canonical fixture representation. It accepts
// minimal hex, padded hex and decimal on input so that tool output compares
// equal regardless of the chosen representation.
type Uint64 uint64

func (n Uint64) Uint64() uint64 { return uint64(n) }

func (n Uint64) String() string {
	s := fmt.Sprintf("%x", uint64(n))
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return "0x" + s
}

func (n Uint64) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Uint64) UnmarshalJSON(input []byte) error {
	var dec math.HexOrDecimal64
	if err := json.Unmarshal(input, &dec); err != nil {
		// Tolerate unquoted decimal numbers.
		var plain uint64
		if err2 := json.Unmarshal(input, &plain); err2 != nil {
			return err
		}
		*n = Uint64(plain)
		return nil
	}
	*n = Uint64(dec)
	return nil
}

// Uint64Ptr boxes v, for optional fixture fields.
func Uint64Ptr(v uint64) *Uint64 {
	n := Uint64(v)
	return &n
}

// Big is a big integer with the same zero-padded hex representation as Uint64.
type Big big.Int

func NewBig(x *big.Int) *Big {
	if x == nil {
		return nil
	}
	return (*Big)(new(big.Int).Set(x))
}

func NewBigFromUint64(v uint64) *Big {
	return (*Big)(new(big.Int).SetUint64(v))
}

func (b *Big) ToInt() *big.Int {
	return (*big.Int)(b)
}

func (b *Big) String() string {
	s := (*big.Int)(b).Text(16)
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return "0x" + s
}

func (b Big) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Big) UnmarshalJSON(input []byte) error {
	var dec math.HexOrDecimal256
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*b = Big(big.Int(dec))
	return nil
}
