package sign

import (
	"context"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/paillier"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round1 generates k_i, γ_i and their public commitments, then kicks off
// the asynchronous fresh Paillier keypair (spec.md §4.5's longest
// suspension point). The Round 1 broadcast itself is deferred until the
// keypair resolves — see PollPaillierReady — since it carries N_i and
// C_i = Enc_{N_i}(k_i).
func (s *state) round1() (tss.StateMachine, []tss.Message, error) {
	ki, err := curve.NewScalar()
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round1.sample_k", err))
	}
	gammai, err := curve.NewScalar()
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round1.sample_gamma", err))
	}
	s.tempData["ki"] = ki
	s.tempData["gammai"] = gammai

	kx, ky := curve.ScalarBaseMult(ki)
	gx, gy := curve.ScalarBaseMult(gammai)
	s.tempData["kX"], s.tempData["kY"] = kx, ky
	s.tempData["gammaX"], s.tempData["gammaY"] = gx, gy

	proofK, err := curve.Prove(ki, kx, ky, s.kiContext())
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round1.prove_k", err))
	}
	proofGamma, err := curve.Prove(gammai, gx, gy, s.gammaContext())
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round1.prove_gamma", err))
	}
	s.tempData["proofK"] = proofK
	s.tempData["proofGamma"] = proofGamma

	s.paillierCh = startPaillierKeyGen(context.Background())

	return s, nil, nil
}

func (s *state) kiContext() string    { return "GG20-KI-" + s.sessionID }
func (s *state) gammaContext() string { return "GG20-GAMMA-" + s.sessionID }

// emitRound1Broadcast builds and records the Round 1 message once the
// local Paillier keypair has resolved.
func (s *state) emitRound1Broadcast() ([]tss.Message, error) {
	sk := s.tempData["paillierSk"].(*paillier.PrivateKey)
	ki := s.tempData["ki"].(*big.Int)

	encK, _, err := sk.PublicKey.Encrypt(ki)
	if err != nil {
		return nil, tss.SigningErrorf("sign.round1.encrypt_k", err)
	}
	s.tempData["encK"] = encK

	payload := Round1Payload{
		GammaX:     s.tempData["gammaX"].(*big.Int),
		GammaY:     s.tempData["gammaY"].(*big.Int),
		KX:         s.tempData["kX"].(*big.Int),
		KY:         s.tempData["kY"].(*big.Int),
		PaillierN:  sk.PublicKey.N,
		EncK:       encK,
		ProofGamma: s.tempData["proofGamma"].(*curve.Proof),
		ProofK:     s.tempData["proofK"].(*curve.Proof),
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, tss.SigningErrorf("sign.round1.marshal", err)
	}

	s.sentRound1 = true
	return []tss.Message{&SignMessage{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: "SIGN_ROUND1",
		RoundNum:   1,
	}}, nil
}
