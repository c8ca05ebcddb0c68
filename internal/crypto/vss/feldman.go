package vss

import (
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

// Commitment is a Feldman VSS vector: one compressed point per polynomial
// coefficient, C_k = a_k * G.
type Commitment struct {
	X, Y []*big.Int // parallel arrays, one entry per coefficient
}

// FeldmanCommit computes the Feldman commitment vector for poly.
func FeldmanCommit(poly *Polynomial) *Commitment {
	c := &Commitment{
		X: make([]*big.Int, len(poly.Coefficients)),
		Y: make([]*big.Int, len(poly.Coefficients)),
	}
	for k, coeff := range poly.Coefficients {
		c.X[k], c.Y[k] = curve.ScalarBaseMult(coeff)
	}
	return c
}

// FeldmanVerify checks that share = f(i) is consistent with the
// commitment vector: share*G =? sum_k i^k * C_k (invariant I3).
func FeldmanVerify(share, i *big.Int, c *Commitment) bool {
	lx, ly := curve.ScalarBaseMult(share)
	rx, ry := c.Eval(i)
	return lx.Cmp(rx) == 0 && ly.Cmp(ry) == 0
}

// Eval evaluates the committed polynomial at x in the exponent, i.e.
// returns (f(x))*G without knowing f. Used to verify a party's reported
// public key share against the commitments it published.
func (c *Commitment) Eval(x *big.Int) (px, py *big.Int) {
	n := curve.Order()
	for k := range c.X {
		scalar := new(big.Int).Exp(x, big.NewInt(int64(k)), n)
		tx, ty := curve.ScalarMult(c.X[k], c.Y[k], scalar)
		if k == 0 {
			px, py = tx, ty
		} else {
			px, py = curve.Add(px, py, tx, ty)
		}
	}
	return px, py
}

// Add combines two commitment vectors coefficient-wise.
func (c *Commitment) Add(other *Commitment) *Commitment {
	out := &Commitment{X: make([]*big.Int, len(c.X)), Y: make([]*big.Int, len(c.Y))}
	for k := range c.X {
		out.X[k], out.Y[k] = curve.Add(c.X[k], c.Y[k], other.X[k], other.Y[k])
	}
	return out
}

// Intercept returns the degree-0 term's point, A_0 = a_0*G — the
// caller's contribution to the master public key.
func (c *Commitment) Intercept() (x, y *big.Int) {
	return c.X[0], c.Y[0]
}
