package sign

import (
	"fmt"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/paillier"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round3 decrypts every peer's MtA response addressed to this party,
// folds in the blinding masks retained from Round 2, and broadcasts δ_i
// only — σ_i stays private until Round 4's partial signature (spec.md
// §4.5 Round 3).
func (s *state) round3() (tss.StateMachine, []tss.Message, error) {
	sk := s.tempData["paillierSk"].(*paillier.PrivateKey)
	ki := s.tempData["ki"].(*big.Int)
	gammai := s.tempData["gammai"].(*big.Int)
	wi := new(big.Int).Mul(s.lambda, s.xPrime)
	curve.Mod(wi)

	deltaI := new(big.Int).Mul(ki, gammai)
	curve.Mod(deltaI)
	sigmaI := new(big.Int).Mul(ki, wi)
	curve.Mod(sigmaI)

	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		msgs := s.receivedMsgs[peer.ID()]
		if len(msgs) == 0 {
			return s.abort(tss.SigningErrorf("sign.round3", fmt.Errorf("no round 2 message from %s", peer.ID())))
		}
		var payload Round2Payload
		if err := unmarshalPayload(msgs[0].Payload(), &payload); err != nil {
			return s.abort(tss.SigningErrorf("sign.round3.unmarshal", err))
		}

		alphaDelta, err := sk.Decrypt(payload.DeltaEnc)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round3.decrypt_delta", err))
		}
		alphaSigma, err := sk.Decrypt(payload.SigmaEnc)
		if err != nil {
			return s.abort(tss.SigningErrorf("sign.round3.decrypt_sigma", err))
		}

		deltaI.Add(deltaI, alphaDelta)
		curve.Mod(deltaI)
		sigmaI.Add(sigmaI, alphaSigma)
		curve.Mod(sigmaI)

		negBetaDelta := s.tempData["negBetaDelta:"+peer.ID()].(*big.Int)
		negBetaSigma := s.tempData["negBetaSigma:"+peer.ID()].(*big.Int)
		deltaI.Add(deltaI, negBetaDelta)
		curve.Mod(deltaI)
		sigmaI.Add(sigmaI, negBetaSigma)
		curve.Mod(sigmaI)
	}

	s.tempData["deltaI"] = deltaI
	s.tempData["sigmaI"] = sigmaI

	payload := Round3Payload{DeltaI: deltaI}
	data, err := marshalPayload(payload)
	if err != nil {
		return s.abort(tss.SigningErrorf("sign.round3.marshal", err))
	}

	s.round = 3
	s.receivedMsgs = make(map[string][]tss.Message)

	return s, []tss.Message{&SignMessage{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: "SIGN_ROUND3",
		RoundNum:   3,
	}}, nil
}
