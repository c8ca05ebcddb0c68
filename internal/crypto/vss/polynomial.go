// Package vss implements Shamir secret sharing, Feldman verifiable secret
// sharing, Pedersen hash commitments, and Lagrange interpolation — the
// shared verifiable-secret-sharing toolkit the DKG engine and the
// signing engine's threshold assembly both build on.
package vss

import (
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

// Polynomial represents f(x) = a_0 + a_1*x + ... + a_{t-1}*x^{t-1} mod n,
// where a_0 is the secret. It is transient: the DKG engine erases it
// after Round 4 (spec.md §3).
type Polynomial struct {
	Coefficients []*big.Int
}

// GenPoly generates coefficients [secret, a_1, ..., a_{t-1}], each a_k
// uniform in [1, n) (never zero), with the constant term fixed to secret. If secret is
// nil, a random constant term is generated instead (used by Shamir
// reconstruction tests, not by the live protocols, which always supply a
// concrete secret).
func GenPoly(secret *big.Int, degree int) (*Polynomial, error) {
	coeffs := make([]*big.Int, degree+1)
	var err error

	if secret == nil {
		coeffs[0], err = curve.NewScalar()
		if err != nil {
			return nil, err
		}
	} else {
		coeffs[0] = new(big.Int).Set(secret)
	}

	for i := 1; i <= degree; i++ {
		coeffs[i], err = curve.NewScalar()
		if err != nil {
			return nil, err
		}
	}

	return &Polynomial{Coefficients: coeffs}, nil
}

// Eval computes f(x) mod n via Horner's method.
func (p *Polynomial) Eval(x *big.Int) *big.Int {
	n := curve.Order()
	degree := len(p.Coefficients) - 1
	result := new(big.Int).Set(p.Coefficients[degree])

	for i := degree - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, p.Coefficients[i])
		result.Mod(result, n)
	}
	return result
}

// Zeroize wipes every coefficient, including the secret intercept. Call
// once the polynomial is no longer needed (end of DKG Round 4).
func (p *Polynomial) Zeroize() {
	for _, c := range p.Coefficients {
		if c != nil {
			c.SetInt64(0)
		}
	}
}
