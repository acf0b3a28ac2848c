package protocol

import (
	"crypto/sha256"

	"github.com/andrebq/spdz-mpc/field"
)

// deriveBatchZeroCoefficients turns a session seed into the pair (r_eps,
// r_rho) used by the batch-zero check, identically on every worker. See
// DESIGN.md's resolution of the batch-zero coefficient provenance open
// question: the dealer samples the seed once and distributes it inside
// the SEND_SHARES payload, and every worker derives the same coefficients
// from it rather than running a further agreement round.
func deriveBatchZeroCoefficients(seed [32]byte) (rEps, rRho field.Elem) {
	return hashToElem(seed, "eps"), hashToElem(seed, "rho")
}

func hashToElem(seed [32]byte, label string) field.Elem {
	h := sha256.New()
	h.Write(seed[:])
	h.Write([]byte(label))
	digest := h.Sum(nil)
	e, err := field.FromHex(hexUpper(digest))
	if err != nil {
		// sha256 output is always valid hex; this would only fire on a
		// field package bug, not on untrusted input.
		panic(err)
	}
	return e
}

func hexUpper(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 2*len(b))
	for i, c := range b {
		out[2*i] = digits[c>>4]
		out[2*i+1] = digits[c&0x0f]
	}
	return string(out)
}
