// Package curve implements secp256k1 scalar and point arithmetic plus a
// domain-separated Schnorr proof of knowledge, the shared field both the
// DKG and signing engines build on.
package curve

import (
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// secp is the fixed curve for this system; the spec does not make the
// curve configurable.
var secp = secp256k1.S256()

// Params returns the curve parameters, including the group order N.
func Params() *elliptic.CurveParams { return secp.Params() }

// Order returns n, the order of the secp256k1 base point.
func Order() *big.Int { return new(big.Int).Set(secp.Params().N) }

// NewScalar samples a uniform scalar in [1, n) by rejection sampling 32
// random bytes, as required by spec.md §3: a scalar is never 0.
func NewScalar() (*big.Int, error) {
	n := secp.Params().N
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(buf)
		if k.Sign() != 0 && k.Cmp(n) < 0 {
			return k, nil
		}
	}
}

// ScalarBaseMult computes k*G.
func ScalarBaseMult(k *big.Int) (x, y *big.Int) {
	return secp.ScalarBaseMult(k.Bytes())
}

// ScalarMult computes k*(Px,Py).
func ScalarMult(px, py, k *big.Int) (x, y *big.Int) {
	return secp.ScalarMult(px, py, k.Bytes())
}

// Add returns (x1,y1)+(x2,y2).
func Add(x1, y1, x2, y2 *big.Int) (x, y *big.Int) {
	return secp.Add(x1, y1, x2, y2)
}

// Neg returns -(x,y), i.e. (x, p-y) with p the field prime.
func Neg(x, y *big.Int) (nx, ny *big.Int) {
	p := secp.Params().P
	return new(big.Int).Set(x), new(big.Int).Sub(p, y)
}

// Mod reduces x modulo the curve order n in place and returns it.
func Mod(x *big.Int) *big.Int {
	return x.Mod(x, secp.Params().N)
}

// Inv returns the modular inverse of x mod n via Fermat's little theorem.
func Inv(x *big.Int) *big.Int {
	n := secp.Params().N
	return new(big.Int).Exp(x, new(big.Int).Sub(n, big.NewInt(2)), n)
}

// CompressPoint serializes (x,y) to its 33-byte compressed form.
func CompressPoint(x, y *big.Int) ([]byte, error) {
	if x == nil || y == nil {
		return nil, errors.New("curve: nil point")
	}
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	pub := secp256k1.NewPublicKey(&fx, &fy)
	return pub.SerializeCompressed(), nil
}

// DecompressPoint parses a 33-byte compressed point into (x,y).
func DecompressPoint(data []byte) (x, y *big.Int, err error) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, nil, err
	}
	return pub.X(), pub.Y(), nil
}

// IsOnCurve reports whether (x,y) lies on secp256k1.
func IsOnCurve(x, y *big.Int) bool {
	return secp.IsOnCurve(x, y)
}

// IsIdentity reports whether (x,y) represents the point at infinity as
// returned by this package's Add/ScalarMult (both coordinates nil or zero).
func IsIdentity(x, y *big.Int) bool {
	return x == nil || y == nil || (x.Sign() == 0 && y.Sign() == 0)
}
