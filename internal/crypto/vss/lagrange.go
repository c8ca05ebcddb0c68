package vss

import (
	"errors"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

// Lagrange computes L_i(0) for party i over subset S: the weight such
// that interpolating the polynomial through {(j, f(j))}_{j in S} at x=0
// recovers f(0). L_i(0) = Π_{j in S, j != i} ( (-j) * (i-j)^-1 ) mod n.
func Lagrange(i *big.Int, s []*big.Int) (*big.Int, error) {
	n := curve.Order()
	num := big.NewInt(1)
	den := big.NewInt(1)

	for _, j := range s {
		if j.Cmp(i) == 0 {
			continue
		}
		// num *= -j
		negJ := new(big.Int).Neg(j)
		negJ.Mod(negJ, n)
		num.Mul(num, negJ)
		num.Mod(num, n)

		// den *= (i-j)
		diff := new(big.Int).Sub(i, j)
		diff.Mod(diff, n)
		den.Mul(den, diff)
		den.Mod(den, n)
	}

	denInv := new(big.Int).ModInverse(den, n)
	if denInv == nil {
		return nil, errors.New("vss: lagrange denominator not invertible")
	}

	lambda := new(big.Int).Mul(num, denInv)
	return lambda.Mod(lambda, n), nil
}

// Reconstruct recovers f(0) from shares keyed by party index, using
// Lagrange interpolation over exactly the supplied subset. Used by tests
// to confirm I1 (Σ L_i(0)·x_i = d) and is not part of the live protocol,
// which never reconstructs the secret.
func Reconstruct(indices []*big.Int, shares []*big.Int) (*big.Int, error) {
	if len(indices) != len(shares) {
		return nil, errors.New("vss: indices/shares length mismatch")
	}
	n := curve.Order()
	secret := big.NewInt(0)
	for k, i := range indices {
		l, err := Lagrange(i, indices)
		if err != nil {
			return nil, err
		}
		term := new(big.Int).Mul(l, shares[k])
		secret.Add(secret, term)
		secret.Mod(secret, n)
	}
	return secret, nil
}
