package dkg

import (
	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round1 samples this party's degree-(t-1) polynomial with random secret
// intercept a_{i,0}, computes its Feldman commitment vector, and
// broadcasts a Pedersen hash commitment to that vector (spec.md §4.4
// Round 1). The polynomial and its opening are carried in tempData; the
// polynomial is zeroized at the end of Round 4, the opening is not.
func (s *state) round1() (tss.StateMachine, []tss.Message, error) {
	poly, err := vss.GenPoly(nil, s.params.Threshold-1)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round1.gen_poly", err))
	}
	fc := vss.FeldmanCommit(poly)

	commitment, blinding, err := vss.PedersenCommit(fc)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round1.pedersen_commit", err))
	}

	s.tempData["polynomial"] = poly
	s.tempData["feldman"] = fc
	s.tempData["blinding"] = blinding
	s.tempData["commitment"] = commitment

	payload := Round1Payload{Commitment: commitment}
	data, err := marshalPayload(payload)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round1.marshal", err))
	}

	return s, []tss.Message{&Message{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeDkgRound1),
		RoundNum:   1,
	}}, nil
}
