package dkg

import (
	"fmt"
	"math/big"
	"time"

	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/pkg/tss"
	"github.com/rs/zerolog"
)

type state struct {
	params       *tss.Parameters
	ceremonyID   string
	identityPriv *big.Int // this node's identity private scalar, for Round 3 share decryption
	deadline     time.Time
	store        *store.Store // nil skips persistence (used by tests exercising the rounds in isolation)
	log          zerolog.Logger

	myIndex *big.Int

	round    int
	tempData map[string]interface{}

	// receivedMsgs[senderID] holds every message seen from that sender in
	// the current round; a second message from the same sender is an
	// equivocation (spec.md §4.4/§5).
	receivedMsgs map[string][]tss.Message
}

// NewStateMachine begins a DKG ceremony for the fixed participant set
// params.Parties, given by the caller; this package has no DKG_PROPOSE/
// DKG_ACCEPT negotiation step. identityPriv
// is this node's identity keypair's private scalar, used to decrypt Round
// 3's per-peer shares; peers' public halves are read from each
// tss.PartyID.Key(). st may be nil to exercise the rounds without
// persistence (tests); in production Round 4 assembly calls st.Save.
func NewStateMachine(params *tss.Parameters, identityPriv *big.Int, ceremonyID string, deadline time.Time, st *store.Store, log zerolog.Logger) (tss.StateMachine, []tss.Message, error) {
	var myIndex *big.Int
	for _, p := range params.Parties {
		if p.ID() == params.PartyID.ID() {
			myIndex = big.NewInt(int64(p.Index()))
		}
	}
	if myIndex == nil {
		err := tss.DkgErrorf("dkg.new", fmt.Errorf("local party not present in participant set"))
		return nil, []tss.Message{newAbortMessage(params.PartyID, 0, err)}, err
	}

	s := &state{
		params:       params,
		ceremonyID:   ceremonyID,
		identityPriv: identityPriv,
		deadline:     deadline,
		store:        st,
		log:          log,
		myIndex:      myIndex,
		round:        1,
		tempData:     make(map[string]interface{}),
		receivedMsgs: make(map[string][]tss.Message),
	}

	return s.round1()
}

// IsExpired reports whether now is past the ceremony deadline (spec.md §5).
func (s *state) IsExpired(now time.Time) bool {
	return now.After(s.deadline)
}

func (s *state) Update(msg tss.Message) (tss.StateMachine, []tss.Message, error) {
	if msg.RoundNumber() != uint32(s.round) {
		return s, nil, tss.ValidationErrorf("dkg.update.stale_round", fmt.Errorf("message for round %d, expected %d", msg.RoundNumber(), s.round))
	}

	senderID := msg.From().ID()
	if senderID == s.params.PartyID.ID() {
		return s, nil, nil
	}

	for _, existing := range s.receivedMsgs[senderID] {
		if existing.Type() == msg.Type() {
			return s.abort(tss.DkgErrorf("dkg.update.equivocation", fmt.Errorf("duplicate %s from %s", msg.Type(), senderID)))
		}
	}
	s.receivedMsgs[senderID] = append(s.receivedMsgs[senderID], msg)

	return s.maybeAdvance()
}

func (s *state) maybeAdvance() (tss.StateMachine, []tss.Message, error) {
	expectedPeers := len(s.params.Parties) - 1
	if len(s.receivedMsgs) < expectedPeers {
		return s, nil, nil
	}
	for _, msgs := range s.receivedMsgs {
		if len(msgs) < 1 {
			return s, nil, nil
		}
	}

	switch s.round {
	case 1:
		return s.round2()
	case 2:
		return s.round3()
	case 3:
		return s.round4()
	case 4:
		return s.assemble()
	default:
		return s.abort(tss.DkgErrorf("dkg.next_round", fmt.Errorf("unknown round %d", s.round)))
	}
}

// newAbortMessage builds the informational DKG_ABORT broadcast spec.md
// §4.4/§5/§7 requires alongside every local ceremony termination.
func newAbortMessage(self tss.PartyID, round int, cause error) tss.Message {
	data, err := marshalPayload(AbortPayload{Reason: cause.Error()})
	if err != nil {
		data = []byte(`{"Reason":"` + cause.Error() + `"}`)
	}
	return &Message{
		FromParty:  self,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeDkgAbort),
		RoundNum:   uint32(round),
	}
}

// abort terminates the ceremony locally, returning the DKG_ABORT
// broadcast alongside the triggering error (spec.md §7: verification
// failures inside a running ceremony abort the whole ceremony locally
// and broadcast an informational abort).
func (s *state) abort(cause error) (tss.StateMachine, []tss.Message, error) {
	return nil, []tss.Message{newAbortMessage(s.params.PartyID, s.round, cause)}, cause
}

func (s *state) Result() interface{} {
	return nil
}

func (s *state) Details() string {
	return fmt.Sprintf("dkg ceremony %s round %d", s.ceremonyID, s.round)
}

// peerOf looks up the tss.PartyID for a given sender id.
func (s *state) peerOf(id string) tss.PartyID {
	for _, p := range s.params.Parties {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// peerIndex returns the big.Int party index for a peer.
func (s *state) peerIndex(id string) *big.Int {
	p := s.peerOf(id)
	if p == nil {
		return nil
	}
	return big.NewInt(int64(p.Index()))
}

// finishedState is the terminal StateMachine once DKG has assembled and
// persisted the share.
type finishedState struct {
	result     *Result
	ceremonyID string
}

func (f *finishedState) Update(msg tss.Message) (tss.StateMachine, []tss.Message, error) {
	return nil, nil, tss.ErrProtocolDone
}

func (f *finishedState) Result() interface{} { return f.result }
func (f *finishedState) Details() string     { return fmt.Sprintf("dkg ceremony %s finished", f.ceremonyID) }

// myPolynomial fetches the local polynomial from tempData, erroring if
// Round 1 was somehow skipped.
func (s *state) myPolynomial() (*vss.Polynomial, error) {
	poly, ok := s.tempData["polynomial"].(*vss.Polynomial)
	if !ok {
		return nil, tss.DkgErrorf("dkg.poly", fmt.Errorf("missing local polynomial"))
	}
	return poly, nil
}
