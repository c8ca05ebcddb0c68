package dkg

import (
	"fmt"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/bip32"
	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/hybrid"
	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// round4 decrypts every peer's Round 3 share addressed to this party,
// Feldman-verifies each against the sender's Round 2 commitment vector
// (a failure indicates a cheating sender and aborts the ceremony), sums
// them with this party's own diagonal term into x_i, erases the now-
// unneeded polynomial, and broadcasts x_i*G (spec.md §4.4 Round 4).
func (s *state) round4() (tss.StateMachine, []tss.Message, error) {
	poly, err := s.myPolynomial()
	if err != nil {
		return s.abort(err)
	}

	xi := poly.Eval(s.myIndex)

	for senderID, msgs := range s.receivedMsgs {
		var p Round3Payload
		if err := unmarshalPayload(msgs[0].Payload(), &p); err != nil {
			return s.abort(tss.DkgErrorf("dkg.round4.unmarshal", err))
		}

		plaintext, err := hybrid.Decrypt(s.identityPriv, p.EncryptedShare)
		if err != nil {
			return s.abort(tss.DkgErrorf("dkg.round4.decrypt_share", fmt.Errorf("from %s: %w", senderID, err)))
		}
		share := new(big.Int).SetBytes(plaintext)

		fc, ok := s.tempData["feldman:"+senderID].(*vss.Commitment)
		if !ok {
			return s.abort(tss.DkgErrorf("dkg.round4.missing_feldman", fmt.Errorf("no round 2 commitment cached for %s", senderID)))
		}
		if !vss.FeldmanVerify(share, s.myIndex, fc) {
			return s.abort(tss.DkgErrorf("dkg.round4.feldman_verify", fmt.Errorf("share from %s failed feldman verification", senderID)))
		}

		xi.Add(xi, share)
		curve.Mod(xi)
	}

	poly.Zeroize()

	xiX, xiY := curve.ScalarBaseMult(xi)
	s.tempData["xi"] = xi
	s.tempData["xiX"], s.tempData["xiY"] = xiX, xiY

	payload := Round4Payload{XiX: xiX, XiY: xiY, ShareVerified: true}
	data, err := marshalPayload(payload)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.round4.marshal", err))
	}

	s.round = 4
	s.receivedMsgs = make(map[string][]tss.Message)

	return s, []tss.Message{&Message{
		FromParty:  s.params.PartyID,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeDkgRound4),
		RoundNum:   4,
	}}, nil
}

// assemble verifies each peer's reported public key share against the
// sum of every party's Feldman commitments evaluated at that peer's
// index (invariant I3 applied to the aggregate), sums the intercepts
// into the master public key P, derives the chain code, and persists the
// local share (spec.md §4.4 Round 4 assembly).
func (s *state) assemble() (tss.StateMachine, []tss.Message, error) {
	allCommitments := make(map[int]*vss.Commitment, len(s.params.Parties))
	allCommitments[s.params.PartyID.Index()] = s.tempData["feldman"].(*vss.Commitment)
	for _, peer := range s.params.Parties {
		if peer.ID() == s.params.PartyID.ID() {
			continue
		}
		allCommitments[peer.Index()] = s.tempData["feldman:"+peer.ID()].(*vss.Commitment)
	}

	for senderID, msgs := range s.receivedMsgs {
		var p Round4Payload
		if err := unmarshalPayload(msgs[0].Payload(), &p); err != nil {
			return s.abort(tss.DkgErrorf("dkg.assemble.unmarshal", err))
		}
		if !p.ShareVerified {
			return s.abort(tss.DkgErrorf("dkg.assemble", fmt.Errorf("%s reported an unverified share", senderID)))
		}

		peer := s.peerOf(senderID)
		expX, expY := evalAggregate(allCommitments, big.NewInt(int64(peer.Index())))
		if expX.Cmp(p.XiX) != 0 || expY.Cmp(p.XiY) != 0 {
			return s.abort(tss.DkgErrorf("dkg.assemble.consistency", fmt.Errorf("%s's public key share is inconsistent with the published commitments", senderID)))
		}
	}

	var pX, pY *big.Int
	shares := make([][2]*big.Int, 0, len(s.params.Parties))
	indices := sortedIndices(s.params.Parties)
	for _, idx := range indices {
		fc := allCommitments[idx]
		ix, iy := fc.Intercept()
		if pX == nil {
			pX, pY = ix, iy
		} else {
			pX, pY = curve.Add(pX, pY, ix, iy)
		}
		shares = append(shares, [2]*big.Int{ix, iy})
	}

	chainCode, err := bip32.ChainCode(pX, pY)
	if err != nil {
		return s.abort(tss.DkgErrorf("dkg.assemble.chain_code", err))
	}

	result := &Result{
		PartyIndex:      s.params.PartyID.Index(),
		X:               s.tempData["xi"].(*big.Int),
		PublicKeyShares: shares,
		PX:              pX,
		PY:              pY,
		ChainCode:       chainCode,
		CeremonyID:      s.ceremonyID,
	}

	if s.store != nil {
		share := &store.Share{
			PartyIndex:      result.PartyIndex,
			X:               result.X,
			PublicKeyShares: result.PublicKeyShares,
			PX:              result.PX,
			PY:              result.PY,
			ChainCode:       result.ChainCode,
			CeremonyID:      result.CeremonyID,
		}
		metadata := s.buildMetadata(result)
		if err := s.store.Save(share, metadata); err != nil {
			return s.abort(tss.StorageErrorf("dkg.assemble.save", err))
		}
	}

	s.log.Info().Str("ceremonyId", s.ceremonyID).Int("partyIndex", result.PartyIndex).Msg("dkg ceremony complete")

	return &finishedState{result: result, ceremonyID: s.ceremonyID}, nil, nil
}

func (s *state) buildMetadata(result *Result) *store.CeremonyMetadata {
	participants := make([]store.Participant, 0, len(s.params.Parties))
	for _, p := range s.params.Parties {
		// PublicKeyShares is ordered by ascending party index starting at 1.
		var share [2]*big.Int
		idx := p.Index()
		if idx-1 >= 0 && idx-1 < len(result.PublicKeyShares) {
			share = result.PublicKeyShares[idx-1]
		}
		participants = append(participants, store.Participant{
			NodeID:          p.ID(),
			PartyIndex:      idx,
			PublicKeyShareX: share[0].String(),
			PublicKeyShareY: share[1].String(),
		})
	}
	pkCompressed, _ := curve.CompressPoint(result.PX, result.PY)
	return &store.CeremonyMetadata{
		CeremonyID:   result.CeremonyID,
		Participants: participants,
		Threshold:    s.params.Threshold,
		TotalParties: len(s.params.Parties),
		PKMaster:     fmt.Sprintf("%x", pkCompressed),
		ChainCode:    fmt.Sprintf("%x", result.ChainCode),
		Version:      1,
	}
}

// evalAggregate evaluates the sum of every party's committed polynomial
// at x in the exponent, i.e. (Σ_k f_k(x))*G, without knowing any f_k.
func evalAggregate(commitments map[int]*vss.Commitment, x *big.Int) (px, py *big.Int) {
	for _, idx := range sortedKeys(commitments) {
		cx, cy := commitments[idx].Eval(x)
		if px == nil {
			px, py = cx, cy
		} else {
			px, py = curve.Add(px, py, cx, cy)
		}
	}
	return px, py
}

func sortedKeys(m map[int]*vss.Commitment) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func sortedIndices(parties []tss.PartyID) []int {
	idxs := make([]int, len(parties))
	for i, p := range parties {
		idxs[i] = p.Index()
	}
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && idxs[j-1] > idxs[j]; j-- {
			idxs[j-1], idxs[j] = idxs[j], idxs[j-1]
		}
	}
	return idxs
}
