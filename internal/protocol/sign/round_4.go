package sign

import (
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round4 aggregates Δ=Σδ_j, recovers R=Δ^{-1}·Γ (Γ=Σγ_j·G) and r=R_x mod
// n, then computes and broadcasts this party's partial signature s_i
// alongside σ_i·G so peers can verify it before assembly (spec.md §4.5
// Round 4).
func (s *state) round4() (tss.StateMachine, []tss.Message, error) {
	delta := new(big.Int).Set(s.tempData["deltaI"].(*big.Int))
	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		msgs := s.receivedMsgs[peer.ID()]
		if len(msgs) == 0 {
			return s.abort(tss.SigningErrorf("sign.round4", fmt.Errorf("no round 3 message from %s", peer.ID())))
		}
		var payload Round3Payload
		if err := unmarshalPayload(msgs[0].Payload(), &payload); err != nil {
			return s.abort(tss.SigningErrorf("sign.round4.unmarshal", err))
		}
		delta.Add(delta, payload.DeltaI)
		curve.Mod(delta)
	}
	if delta.Sign() == 0 {
		return s.abort(tss.SigningErrorf("sign.round4", fmt.Errorf("aggregated delta is zero, abort")))
	}

	gammaX := s.tempData["gammaX"].(*big.Int)
	gammaY := s.tempData["gammaY"].(*big.Int)
	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		p, err := s.peerRound1(peer.ID())
		if err != nil {
			return s.abort(err)
		}
		gammaX, gammaY = curve.Add(gammaX, gammaY, p.GammaX, p.GammaY)
	}

	deltaInv := curve.Inv(delta)
	rx, ry := curve.ScalarMult(gammaX, gammaY, deltaInv)
	if curve.IsIdentity(rx, ry) {
		return s.abort(tss.SigningErrorf("sign.round4", fmt.Errorf("R is the point at infinity, abort")))
	}
	r := curve.Mod(new(big.Int).Set(rx))
	if r.Sign() == 0 {
		return s.abort(tss.SigningErrorf("sign.round4", fmt.Errorf("r is zero, abort")))
	}

	m := hashToScalar(s.msgHash)
	ki := s.tempData["ki"].(*big.Int)
	sigmaI := s.tempData["sigmaI"].(*big.Int)

	si := new(big.Int).Mul(m, ki)
	term := new(big.Int).Mul(r, sigmaI)
	si.Add(si, term)
	curve.Mod(si)

	sigmaGx, sigmaGy := curve.ScalarBaseMult(sigmaI)

	s.tempData["r"] = r
	s.tempData["si"] = si
	s.tempData["Rx"], s.tempData["Ry"] = rx, ry

	payload := Round4Payload{Si: si, SigmaGx: sigmaGx, SigmaGy: sigmaGy}
	data, err := marshalPayload(payload)
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round4.marshal", err))
	}

	s.round = 4
	s.receivedMsgs = make(map[string][]tss.Message)

	return s, []tss.Message{&SignMessage{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: "SIGN_ROUND4",
		RoundNum:   4,
	}}, nil
}

// hashToScalar interprets a 32-byte digest as a big-endian integer, the
// standard ECDSA convention for a curve whose order is also 256 bits.
func hashToScalar(digest []byte) *big.Int {
	return new(big.Int).SetBytes(digest)
}

// assemble verifies every peer's partial signature, sums s=Σs_i, applies
// EIP-2 low-s normalization, computes the recovery byte, and mandatorily
// self-verifies the result before ever returning it (spec.md §4.5
// Assembly). Folds in what was the teacher's separate round5 step.
func (s *state) assemble() (tss.StateMachine, []tss.Message, error) {
	m := hashToScalar(s.msgHash)
	r := s.tempData["r"].(*big.Int)
	finalS := new(big.Int).Set(s.tempData["si"].(*big.Int))

	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		msgs := s.receivedMsgs[peer.ID()]
		if len(msgs) == 0 {
			return s.abort(tss.SigningErrorf("sign.assemble", fmt.Errorf("no round 4 message from %s", peer.ID())))
		}
		var payload Round4Payload
		if err := unmarshalPayload(msgs[0].Payload(), &payload); err != nil {
			return s.abort(tss.SigningErrorf("sign.assemble.unmarshal", err))
		}
		p1, err := s.peerRound1(peer.ID())
		if err != nil {
			return s.abort(err)
		}
		if !verifyPartial(payload.Si, m, p1.KX, p1.KY, r, payload.SigmaGx, payload.SigmaGy) {
			return s.abort(tss.SigningErrorf("sign.assemble.partial_verify", fmt.Errorf("partial signature from %s failed verification", peer.ID())))
		}
		finalS.Add(finalS, payload.Si)
		curve.Mod(finalS)
	}

	n := curve.Order()
	halfN := new(big.Int).Rsh(n, 1)
	ry := s.tempData["Ry"].(*big.Int)
	yOdd := ry.Bit(0) == 1
	if finalS.Cmp(halfN) > 0 {
		finalS.Sub(n, finalS)
		yOdd = !yOdd
	}

	v := byte(27)
	if yOdd {
		v = 28
	}

	sig := &Signature{R: r, S: finalS, V: v}

	if err := selfVerify(s.childPX, s.childPY, s.msgHash, sig); err != nil {
		return s.abort(tss.SigningErrorf("sign.assemble.self_verify", err))
	}

	return &finishedState{signature: sig, sessionID: s.sessionID}, nil, nil
}

// verifyPartial checks s_j·G =? m·(k_j·G) + r·(σ_j·G), the peer-side
// partial-signature check spec.md §4.5 requires before assembly.
func verifyPartial(sj, m, kjX, kjY, r, sigmaGx, sigmaGy *big.Int) bool {
	lx, ly := curve.ScalarBaseMult(sj)
	mkx, mky := curve.ScalarMult(kjX, kjY, m)
	rsx, rsy := curve.ScalarMult(sigmaGx, sigmaGy, r)
	rx, ry := curve.Add(mkx, mky, rsx, rsy)
	return lx.Cmp(rx) == 0 && ly.Cmp(ry) == 0
}

// selfVerify runs a standard ECDSA verification of the assembled
// signature against the child public key before it is ever handed out.
func selfVerify(pkX, pkY *big.Int, digest []byte, sig *Signature) error {
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(pkX.Bytes())
	fy.SetByteSlice(pkY.Bytes())
	pub := secp256k1.NewPublicKey(&fx, &fy)

	var rMod, sMod secp256k1.ModNScalar
	rMod.SetByteSlice(sig.R.Bytes())
	sMod.SetByteSlice(sig.S.Bytes())

	ecdsaSig := ecdsa.NewSignature(&rMod, &sMod)
	if !ecdsaSig.Verify(digest, pub) {
		return fmt.Errorf("assembled signature failed self-verification")
	}
	return nil
}
