package dkg

import (
	"fmt"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/hybrid"
	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round3 verifies every peer's Round 2 opening against its Round 1
// Pedersen commitment and Schnorr PoK (spec.md §4.4 Round 2 — checked
// here since Round 3 is the first point every peer's opening is needed),
// then sends each peer its point-to-point Shamir share f_i(j) hybrid-
// encrypted under the peer's identity public key (spec.md §4.4 Round 3).
func (s *state) round3() (tss.StateMachine, []tss.Message, error) {
	for senderID, msgs := range s.receivedMsgs {
		var p Round2Payload
		if err := unmarshalPayload(msgs[0].Payload(), &p); err != nil {
			return s.abort(tss.DkgErrorf("dkg.round3.unmarshal", err))
		}

		fc := &vss.Commitment{X: p.FeldmanX, Y: p.FeldmanY}
		commitment := s.tempData["commit:"+senderID].([]byte)
		if !vss.PedersenVerify(commitment, fc, p.Blinding) {
			return s.abort(tss.DkgErrorf("dkg.round3.pedersen_verify", fmt.Errorf("pedersen opening from %s failed", senderID)))
		}

		intX, intY := fc.Intercept()
		proof := &curve.Proof{Rx: p.ProofRX, Ry: p.ProofRY, S: p.ProofS}
		if !curve.Verify(intX, intY, proof, s.ctxFor(s.peerOf(senderID).Index())) {
			return s.abort(tss.DkgErrorf("dkg.round3.schnorr_verify", fmt.Errorf("schnorr pok from %s failed", senderID)))
		}

		s.tempData["feldman:"+senderID] = fc
	}

	poly, err := s.myPolynomial()
	if err != nil {
		return s.abort(err)
	}

	out := make([]tss.Message, 0, len(s.params.Parties)-1)
	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		share := poly.Eval(big.NewInt(int64(peer.Index())))

		peerX, peerY, err := curve.DecompressPoint(peer.Key())
		if err != nil {
			return s.abort(tss.DkgErrorf("dkg.round3.decompress_peer_key", err))
		}
		enc, err := hybrid.Encrypt(peerX, peerY, share.Bytes())
		if err != nil {
			return s.abort(tss.DkgErrorf("dkg.round3.encrypt_share", err))
		}

		payload := Round3Payload{EncryptedShare: enc}
		data, err := marshalPayload(payload)
		if err != nil {
			return s.abort(tss.DkgErrorf("dkg.round3.marshal", err))
		}

		out = append(out, &Message{
			FromParty:  s.params.PartyID,
			ToParties:  []tss.PartyID{peer},
			IsBcast:    false,
			Data:       data,
			TypeString: string(tss.TypeDkgRound3P2P),
			RoundNum:   3,
		})
	}

	s.round = 3
	s.receivedMsgs = make(map[string][]tss.Message)

	return s, out, nil
}
