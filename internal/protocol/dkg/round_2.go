package dkg

import (
	"math/big"
	"strconv"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round2 caches every peer's Round 1 commitment, then broadcasts this
// party's opened Feldman vector, Pedersen blinding scalar, and a Schnorr
// PoK of the secret intercept a_{i,0} under the ceremony's domain-
// separated context (spec.md §4.4 Round 2).
func (s *state) round2() (tss.StateMachine, []tss.Message, error) {
	for senderID, msgs := range s.receivedMsgs {
		var p Round1Payload
		if err := unmarshalPayload(msgs[0].Payload(), &p); err != nil {
			return s.abort(tss.DkgErrorf("dkg.round2.unmarshal", err))
		}
		s.tempData["commit:"+senderID] = p.Commitment
	}

	fc := s.tempData["feldman"].(*vss.Commitment)
	blinding := s.tempData["blinding"].(*big.Int)
	poly, err := s.myPolynomial()
	if err != nil {
		return s.abort(err)
	}

	proof, err := curve.Prove(poly.Coefficients[0], fc.X[0], fc.Y[0], s.ctxFor(s.params.PartyID.Index()))
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round2.prove", err))
	}

	payload := Round2Payload{
		FeldmanX: fc.X,
		FeldmanY: fc.Y,
		Blinding: blinding,
		ProofRX:  proof.Rx,
		ProofRY:  proof.Ry,
		ProofS:   proof.S,
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round2.marshal", err))
	}

	s.round = 2
	s.receivedMsgs = make(map[string][]tss.Message)

	return s, []tss.Message{&Message{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeDkgRound2),
		RoundNum:   2,
	}}, nil
}

// ctxFor returns the domain-separated Schnorr context for party index i's
// intercept PoK (spec.md §4.1): "DKG-<ceremonyId>-party-<i>".
func (s *state) ctxFor(partyIndex int) string {
	return "DKG-" + s.ceremonyID + "-party-" + strconv.Itoa(partyIndex)
}
