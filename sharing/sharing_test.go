package sharing_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrebq/spdz-mpc/field"
	"github.com/andrebq/spdz-mpc/sharing"
)

func TestSplitReconstructRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		secret := field.FromU64(12345)
		shares, err := sharing.Split(secret, n, rand.Reader)
		require.NoError(t, err)
		require.Len(t, shares, n)
		require.True(t, sharing.Reconstruct(shares).Equal(secret))
	}
}

func TestSplitSingletonEqualsSecret(t *testing.T) {
	secret := field.FromU64(99)
	shares, err := sharing.Split(secret, 1, rand.Reader)
	require.NoError(t, err)
	require.True(t, shares[0].Equal(secret))
}

func TestSplitZeroSecretSumsToZero(t *testing.T) {
	shares, err := sharing.Split(field.Zero(), 4, rand.Reader)
	require.NoError(t, err)
	require.True(t, sharing.Reconstruct(shares).IsZero())
}

func TestSplitRejectsInvalidN(t *testing.T) {
	_, err := sharing.Split(field.FromU64(1), 0, rand.Reader)
	require.ErrorIs(t, err, sharing.ErrInvalidParties)
}

func TestReconstructEmptyIsZero(t *testing.T) {
	require.True(t, sharing.Reconstruct(nil).IsZero())
}

func TestHomomorphicAddition(t *testing.T) {
	n := 4
	x, y := field.FromU64(7), field.FromU64(5)
	xs, err := sharing.Split(x, n, rand.Reader)
	require.NoError(t, err)
	ys, err := sharing.Split(y, n, rand.Reader)
	require.NoError(t, err)

	sums := make([]field.Elem, n)
	for i := range sums {
		sums[i] = sharing.AddLocal(xs[i], ys[i])
	}
	require.True(t, sharing.Reconstruct(sums).Equal(field.Add(x, y)))
}

func TestAddLocalWrapsAtModulus(t *testing.T) {
	pMinus1 := field.Sub(field.Zero(), field.FromU64(1))
	want := field.Sub(field.Zero(), field.FromU64(2))
	require.True(t, sharing.AddLocal(pMinus1, pMinus1).Equal(want))
}

func TestBeaverMultiplicationEndToEnd(t *testing.T) {
	n := 3
	x, y := field.FromU64(7), field.FromU64(5)
	a, b := field.FromU64(3), field.FromU64(11)
	c := field.Mul(a, b)

	xs, err := sharing.Split(x, n, rand.Reader)
	require.NoError(t, err)
	ys, err := sharing.Split(y, n, rand.Reader)
	require.NoError(t, err)
	as, err := sharing.Split(a, n, rand.Reader)
	require.NoError(t, err)
	bs, err := sharing.Split(b, n, rand.Reader)
	require.NoError(t, err)
	cs, err := sharing.Split(c, n, rand.Reader)
	require.NoError(t, err)

	ds := make([]field.Elem, n)
	es := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		ds[i] = field.Sub(xs[i], as[i])
		es[i] = field.Sub(ys[i], bs[i])
	}
	d := sharing.Reconstruct(ds)
	e := sharing.Reconstruct(es)

	zs := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		zs[i] = sharing.BeaverLocal(xs[i], ys[i], as[i], bs[i], cs[i], d, e, i+1)
	}
	require.True(t, sharing.Reconstruct(zs).Equal(field.Mul(x, y)))
}

func TestBeaverMultiplicationBothOperandsZero(t *testing.T) {
	n := 3
	zero := field.Zero()
	a, b := field.FromU64(3), field.FromU64(11)
	c := field.Mul(a, b)

	as, _ := sharing.Split(a, n, rand.Reader)
	bs, _ := sharing.Split(b, n, rand.Reader)
	cs, _ := sharing.Split(c, n, rand.Reader)
	xs, _ := sharing.Split(zero, n, rand.Reader)
	ys, _ := sharing.Split(zero, n, rand.Reader)

	ds := make([]field.Elem, n)
	es := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		ds[i] = field.Sub(xs[i], as[i])
		es[i] = field.Sub(ys[i], bs[i])
	}
	d := sharing.Reconstruct(ds)
	e := sharing.Reconstruct(es)

	zs := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		zs[i] = sharing.BeaverLocal(xs[i], ys[i], as[i], bs[i], cs[i], d, e, i+1)
	}
	require.True(t, sharing.Reconstruct(zs).IsZero(), "product shares of 0*0 must reconstruct to zero")
}

func TestDistributeTripleConsistency(t *testing.T) {
	n := 4
	alpha := field.FromU64(2)
	triple, err := sharing.DistributeTriple(n, true, alpha, rand.Reader)
	require.NoError(t, err)

	a := sharing.Reconstruct(triple.A)
	b := sharing.Reconstruct(triple.B)
	c := sharing.Reconstruct(triple.C)
	require.True(t, c.Equal(field.Mul(a, b)))

	macA := sharing.Reconstruct(triple.MacA)
	require.True(t, macA.Equal(field.Mul(alpha, a)))
	key := sharing.Reconstruct(triple.KeyShares)
	require.True(t, key.Equal(alpha))
}

func TestMacUpdateInvariant(t *testing.T) {
	n := 3
	alpha := field.FromU64(2)
	x, y := field.FromU64(7), field.FromU64(5)

	triple, err := sharing.DistributeTriple(n, true, alpha, rand.Reader)
	require.NoError(t, err)

	xs, _ := sharing.Split(x, n, rand.Reader)
	ys, _ := sharing.Split(y, n, rand.Reader)

	ds := make([]field.Elem, n)
	es := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		ds[i] = field.Sub(xs[i], triple.A[i])
		es[i] = field.Sub(ys[i], triple.B[i])
	}
	eps := sharing.Reconstruct(ds)
	rho := sharing.Reconstruct(es)

	macZs := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		macZs[i] = sharing.MacLocal(triple.MacC[i], triple.MacB[i], triple.MacA[i], triple.KeyShares[i], eps, rho, i+1)
	}
	got := sharing.Reconstruct(macZs)
	want := field.Mul(alpha, field.Mul(x, y))
	require.True(t, got.Equal(want))
}

func TestBatchZeroShareIsZeroWhenOpeningsMatch(t *testing.T) {
	n := 3
	alpha := field.FromU64(2)
	x, y := field.FromU64(7), field.FromU64(5)
	triple, err := sharing.DistributeTriple(n, true, alpha, rand.Reader)
	require.NoError(t, err)

	xs, _ := sharing.Split(x, n, rand.Reader)
	ys, _ := sharing.Split(y, n, rand.Reader)
	macXs, _ := sharing.MacSplit(x, alpha, n, rand.Reader)
	macYs, _ := sharing.MacSplit(y, alpha, n, rand.Reader)

	ds := make([]field.Elem, n)
	es := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		ds[i] = field.Sub(xs[i], triple.A[i])
		es[i] = field.Sub(ys[i], triple.B[i])
	}
	eps := sharing.Reconstruct(ds)
	rho := sharing.Reconstruct(es)

	rEps, rRho := field.FromU64(17), field.FromU64(23)
	sigmas := make([]field.Elem, n)
	for i := 0; i < n; i++ {
		sigmas[i] = sharing.BatchZeroShare(macXs[i], triple.MacA[i], macYs[i], triple.MacB[i], triple.KeyShares[i], rEps, rRho, eps, rho)
	}
	require.True(t, sharing.Reconstruct(sigmas).IsZero())
}
