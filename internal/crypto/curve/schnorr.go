package curve

import (
	"crypto/sha256"
	"math/big"
)

// Proof is a non-interactive Schnorr proof of knowledge of x such that
// X = x*G, Fiat-Shamir transformed with a domain-separated challenge.
//
// ctx MUST uniquely identify the call site (spec.md §4.1), e.g.
// "DKG-<ceremonyId>-party-<i>", "GG20-GAMMA-<sessionId>", or
// "GG20-KI-<sessionId>". Reusing ctx across purposes breaks soundness.
type Proof struct {
	Rx, Ry *big.Int
	S      *big.Int
}

// Prove generates a Schnorr PoK for secret x with public point X=(Px,Py),
// bound to ctx.
func Prove(x, px, py *big.Int, ctx string) (*Proof, error) {
	n := Order()

	k, err := NewScalar()
	if err != nil {
		return nil, err
	}
	rx, ry := ScalarBaseMult(k)

	e := challenge(px, py, rx, ry, ctx)

	s := new(big.Int).Mul(e, x)
	s.Add(s, k)
	s.Mod(s, n)

	return &Proof{Rx: rx, Ry: ry, S: s}, nil
}

// Verify checks the proof against public point X=(Px,Py) under ctx.
func Verify(px, py *big.Int, proof *Proof, ctx string) bool {
	if proof == nil || proof.Rx == nil || proof.Ry == nil || proof.S == nil {
		return false
	}
	n := Order()
	if proof.S.Sign() < 0 || proof.S.Cmp(n) >= 0 {
		return false
	}

	e := challenge(px, py, proof.Rx, proof.Ry, ctx)

	// s*G =? R + e*X
	lx, ly := ScalarBaseMult(proof.S)
	ex, ey := ScalarMult(px, py, e)
	rx, ry := Add(proof.Rx, proof.Ry, ex, ey)

	return lx.Cmp(rx) == 0 && ly.Cmp(ry) == 0
}

// challenge computes e = SHA-256(P ‖ R ‖ ctx) mod n using compressed point
// serialization for canonical, collision-resistant encoding.
func challenge(px, py, rx, ry *big.Int, ctx string) *big.Int {
	h := sha256.New()
	if pc, err := CompressPoint(px, py); err == nil {
		h.Write(pc)
	}
	if rc, err := CompressPoint(rx, ry); err == nil {
		h.Write(rc)
	}
	h.Write([]byte(ctx))

	e := new(big.Int).SetBytes(h.Sum(nil))
	return e.Mod(e, Order())
}
