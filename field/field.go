// Package field implements arithmetic over the fixed prime field used by
// the secure computation core. Every exported operation takes and returns
// canonical representatives in [0, p): immutable value-typed Elems produced
// by arithmetic that owns no state beyond its own bits.
package field

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strings"
)

// Modulus is the field's fixed prime, p = 2^128 + 51.
var Modulus = mustElem("340282366920938463463374607431768211507")

var modulusBig = new(big.Int).Set(Modulus.v)

// byteWidth is the fixed-width canonical encoding length: the smallest
// number of bytes that can hold any representative in [0, p).
var byteWidth = (modulusBig.BitLen() + 7) / 8

// ErrDecode is returned by FromHex when the input is not a valid hex string.
var ErrDecode = errors.New("field: invalid hex digit")

// ErrEntropy is returned by RandUniform when the supplied RNG fails.
var ErrEntropy = errors.New("field: entropy source failed")

// Elem is a canonical representative of the field Z/pZ. The zero value is
// the field's additive identity. Elems are immutable; every operation
// returns a new value.
type Elem struct {
	v *big.Int
}

func mustElem(decimal string) Elem {
	v, ok := new(big.Int).SetString(decimal, 10)
	if !ok {
		panic("field: invalid modulus literal")
	}
	return Elem{v: v}
}

// Zero returns the field's additive identity.
func Zero() Elem {
	return Elem{v: new(big.Int)}
}

// FromU64 builds the canonical representative of k.
func FromU64(k uint64) Elem {
	return Elem{v: new(big.Int).SetUint64(k)}
}

func reduce(v *big.Int) Elem {
	r := new(big.Int).Mod(v, modulusBig)
	return Elem{v: r}
}

// Add returns (x + y) mod p.
func Add(x, y Elem) Elem {
	return reduce(new(big.Int).Add(x.bigInt(), y.bigInt()))
}

// Sub returns (x - y) mod p.
func Sub(x, y Elem) Elem {
	return reduce(new(big.Int).Sub(x.bigInt(), y.bigInt()))
}

// Mul returns (x * y) mod p.
func Mul(x, y Elem) Elem {
	return reduce(new(big.Int).Mul(x.bigInt(), y.bigInt()))
}

// bigInt returns the element's underlying big.Int, defaulting to zero for
// the zero value of Elem so a nil-field Elem behaves like Zero().
func (e Elem) bigInt() *big.Int {
	if e.v == nil {
		return new(big.Int)
	}
	return e.v
}

// IsZero reports whether e is the additive identity.
func (e Elem) IsZero() bool {
	return e.bigInt().Sign() == 0
}

// Cmp returns -1, 0, or +1 as e is less than, equal to, or greater than o,
// comparing canonical representatives as unsigned integers.
func (e Elem) Cmp(o Elem) int {
	return e.bigInt().Cmp(o.bigInt())
}

// Equal reports whether e and o are the same field element, using a
// constant-time comparison of their canonical byte encodings.
func (e Elem) Equal(o Elem) bool {
	return subtle.ConstantTimeCompare(e.Bytes(), o.Bytes()) == 1
}

// Bytes returns the big-endian, fixed-width (17-byte) encoding of e. The
// fixed width accommodates p's 129th bit so every canonical value has a
// stable-length encoding.
func (e Elem) Bytes() []byte {
	b := e.bigInt().Bytes()
	out := make([]byte, byteWidth)
	copy(out[byteWidth-len(b):], b)
	return out
}

// RandUniform draws an element uniformly from [0, p) using rng as the
// entropy source. Returns ErrEntropy if rng fails.
func RandUniform(rng io.Reader) (Elem, error) {
	// Rejection sampling over the smallest byte-aligned range covering p
	// keeps the distribution exactly uniform.
	buf := make([]byte, byteWidth)
	for {
		if _, err := io.ReadFull(rng, buf); err != nil {
			return Elem{}, ErrEntropy
		}
		candidate := new(big.Int).SetBytes(buf)
		if candidate.Cmp(modulusBig) < 0 {
			return Elem{v: candidate}, nil
		}
	}
}

// ToHex renders e as uppercase hexadecimal with no "0x" prefix and no
// leading zeros, except that Zero() renders as "0".
func ToHex(e Elem) string {
	s := strings.ToUpper(e.bigInt().Text(16))
	if s == "" {
		return "0"
	}
	return s
}

// FromHex parses the canonical hex encoding produced by ToHex. Any
// character outside [0-9A-Fa-f] is rejected with ErrDecode.
func FromHex(s string) (Elem, error) {
	if s == "" {
		return Zero(), nil
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Elem{}, ErrDecode
	}
	return reduce(new(big.Int).SetBytes(raw)), nil
}

// String implements fmt.Stringer using the canonical hex encoding.
func (e Elem) String() string {
	return ToHex(e)
}
