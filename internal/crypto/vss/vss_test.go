package vss

import (
	"math/big"
	"testing"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/stretchr/testify/require"
)

// TestLagrangeReconstructsSecret checks P1: for any degree-(t-1)
// polynomial and any t-subset S, Σ L_i(0)·f(i) = f(0) mod n.
func TestLagrangeReconstructsSecret(t *testing.T) {
	secret, err := curve.NewScalar()
	require.NoError(t, err)

	poly, err := GenPoly(secret, 2) // degree 2 => t = 3
	require.NoError(t, err)

	indices := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	shares := make([]*big.Int, len(indices))
	for k, i := range indices {
		shares[k] = poly.Eval(i)
	}

	got, err := Reconstruct(indices, shares)
	require.NoError(t, err)
	require.Equal(t, 0, secret.Cmp(got))
}

// TestLagrangeAnySubsetAgrees checks P2-style consistency: any two distinct
// 2-of-3 subsets recover the same secret.
func TestLagrangeAnySubsetAgrees(t *testing.T) {
	secret, err := curve.NewScalar()
	require.NoError(t, err)
	poly, err := GenPoly(secret, 1) // t = 2

	require.NoError(t, err)

	i1, i2, i3 := big.NewInt(1), big.NewInt(2), big.NewInt(3)
	f1, f2, f3 := poly.Eval(i1), poly.Eval(i2), poly.Eval(i3)

	s12, err := Reconstruct([]*big.Int{i1, i2}, []*big.Int{f1, f2})
	require.NoError(t, err)
	s13, err := Reconstruct([]*big.Int{i1, i3}, []*big.Int{f1, f3})
	require.NoError(t, err)

	require.Equal(t, 0, s12.Cmp(secret))
	require.Equal(t, 0, s13.Cmp(secret))
}

// TestFeldmanVerify checks P5: valid shares verify, tampered ones don't.
func TestFeldmanVerify(t *testing.T) {
	poly, err := GenPoly(nil, 2)
	require.NoError(t, err)
	commit := FeldmanCommit(poly)

	i := big.NewInt(4)
	share := poly.Eval(i)
	require.True(t, FeldmanVerify(share, i, commit))

	tampered := new(big.Int).Add(share, big.NewInt(1))
	require.False(t, FeldmanVerify(tampered, i, commit))
}

// TestPedersenVerify checks P4: valid openings verify, tampered ones
// fail with overwhelming probability.
func TestPedersenVerify(t *testing.T) {
	poly, err := GenPoly(nil, 2)
	require.NoError(t, err)
	commit := FeldmanCommit(poly)

	c, r, err := PedersenCommit(commit)
	require.NoError(t, err)
	require.True(t, PedersenVerify(c, commit, r))

	tamperedR := new(big.Int).Add(r, big.NewInt(1))
	require.False(t, PedersenVerify(c, commit, tamperedR))

	tamperedCommit := &Commitment{X: append([]*big.Int{}, commit.X...), Y: append([]*big.Int{}, commit.Y...)}
	tamperedCommit.X[0] = new(big.Int).Add(tamperedCommit.X[0], big.NewInt(1))
	require.False(t, PedersenVerify(c, tamperedCommit, r))
}

func TestPolynomialEvalIsHorner(t *testing.T) {
	secret := big.NewInt(7)
	poly := &Polynomial{Coefficients: []*big.Int{secret, big.NewInt(3)}} // f(x) = 7 + 3x
	got := poly.Eval(big.NewInt(5))
	require.Equal(t, int64(22), got.Int64())
}
