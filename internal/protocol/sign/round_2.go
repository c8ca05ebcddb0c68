package sign

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/paillier"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round2 runs the MtA exchange (spec.md §4.5 Round 2). For every peer P,
// this party acts as the MtA responder over P's Round 1 ciphertext c_P,
// contributing its own γ_i and w_i = λ_i·x_i' as multiplicands and
// retaining -β_δ, -β_σ for its own Round 3 accumulation. The response,
// encrypted under P's Paillier key, is addressed point-to-point to P.
func (s *state) round2() (tss.StateMachine, []tss.Message, error) {
	gammai := s.tempData["gammai"].(*big.Int)
	wi := new(big.Int).Mul(s.lambda, s.xPrime)
	curve.Mod(wi)

	out := make([]tss.Message, 0, len(s.params.Parties)-1)

	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		round1, err := s.peerRound1(peer.ID())
		if err != nil {
			return s.abort(err)
		}

		if err := paillier.Validate(round1.PaillierN); err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.validate_paillier_n", err))
		}
		peerPub := &paillier.PublicKey{N: round1.PaillierN, N2: new(big.Int).Mul(round1.PaillierN, round1.PaillierN)}
		if err := peerPub.ValidateCiphertext(round1.EncK); err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.validate_cipher", err))
		}

		betaDelta, err := rand.Int(rand.Reader, peerPub.N)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.sample_beta_delta", err))
		}
		betaSigma, err := rand.Int(rand.Reader, peerPub.N)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.sample_beta_sigma", err))
		}

		deltaEnc, err := peerPub.MtA(round1.EncK, gammai, betaDelta)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.mta_delta", err))
		}
		sigmaEnc, err := peerPub.MtA(round1.EncK, wi, betaSigma)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.mta_sigma", err))
		}

		s.tempData["negBetaDelta:"+peer.ID()] = curve.Mod(new(big.Int).Neg(betaDelta))
		s.tempData["negBetaSigma:"+peer.ID()] = curve.Mod(new(big.Int).Neg(betaSigma))

		payload := Round2Payload{DeltaEnc: deltaEnc, SigmaEnc: sigmaEnc}
		data, err := marshalPayload(payload)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round2.marshal", err))
		}

		out = append(out, &SignMessage{
			FromParty:  s.params.PartyID,
			ToParties:  []tss.PartyID{peer},
			IsBcast:    false,
			Data:       data,
			TypeString: "SIGN_ROUND2",
			RoundNum:   2,
		})
	}

	s.round = 2
	s.receivedMsgs = make(map[string][]tss.Message)
	return s, out, nil
}

// peerRound1 decodes and verifies peer peerID's Round 1 broadcast
// (looked up from the current round's receivedMsgs, which round2 has not
// yet reset), checking both Schnorr proofs of knowledge, and caches the
// verified payload for Round 4's partial-signature check.
func (s *state) peerRound1(peerID string) (*Round1Payload, error) {
	if cached, ok := s.tempData["peerRound1:"+peerID].(*Round1Payload); ok {
		return cached, nil
	}
	msgs := s.receivedMsgs[peerID]
	if len(msgs) == 0 {
		return nil, tss.SigningErrorf("sign.peer_round1", fmt.Errorf("no round 1 message from %s", peerID))
	}
	var p Round1Payload
	if err := unmarshalPayload(msgs[0].Payload(), &p); err != nil {
		return nil, tss.SigningErrorf("sign.peer_round1.unmarshal", err)
	}
	if !curve.Verify(p.KX, p.KY, p.ProofK, "GG20-KI-"+s.sessionID) {
		return nil, tss.SigningErrorf("sign.peer_round1.verify_k", fmt.Errorf("bad k proof of knowledge from %s", peerID))
	}
	if !curve.Verify(p.GammaX, p.GammaY, p.ProofGamma, "GG20-GAMMA-"+s.sessionID) {
		return nil, tss.SigningErrorf("sign.peer_round1.verify_gamma", fmt.Errorf("bad gamma proof of knowledge from %s", peerID))
	}
	s.tempData["peerRound1:"+peerID] = &p
	return &p, nil
}
