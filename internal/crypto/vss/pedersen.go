package vss

import (
	"crypto/sha256"
	"crypto/subtle"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

// PedersenCommit computes C = SHA-256(points ‖ r) for a Feldman
// commitment vector and a blinding scalar r, per spec.md §3/§4.3. It
// returns the commitment hash and the blinding scalar used.
func PedersenCommit(fc *Commitment) (c []byte, r *big.Int, err error) {
	r, err = curve.NewScalar()
	if err != nil {
		return nil, nil, err
	}
	return hashPoints(fc, r), r, nil
}

// PedersenVerify checks that opening (fc, r) matches the committed hash c.
func PedersenVerify(c []byte, fc *Commitment, r *big.Int) bool {
	if len(c) != sha256.Size {
		return false
	}
	recomputed := hashPoints(fc, r)
	return subtle.ConstantTimeCompare(c, recomputed) == 1
}

func hashPoints(fc *Commitment, r *big.Int) []byte {
	h := sha256.New()
	for k := range fc.X {
		if pc, err := curve.CompressPoint(fc.X[k], fc.Y[k]); err == nil {
			h.Write(pc)
		}
	}
	h.Write(r.Bytes())
	return h.Sum(nil)
}

// NewBlindingScalar samples a fresh Pedersen blinding factor r_i.
func NewBlindingScalar() (*big.Int, error) {
	return curve.NewScalar()
}
