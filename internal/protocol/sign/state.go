package sign

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/clirift/threshold-wallet/internal/crypto/bip32"
	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/paillier"
	"github.com/clirift/threshold-wallet/internal/crypto/vss"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

type state struct {
	params     *tss.Parameters
	sessionID  string
	msgHash    []byte // txHash, exactly 32 bytes
	deadline   time.Time

	childPX, childPY *big.Int // P + T*G
	xPrime           *big.Int // (x_i + T) mod n; not zeroized when the session ends
	lambda           *big.Int // L_i over this session's signer subset

	round    int
	tempData map[string]interface{}

	// receivedMsgs[senderID] holds every message type seen from that sender
	// this round; a second message of the same type is an equivocation.
	receivedMsgs map[string][]tss.Message

	paillierCh   <-chan paillier.KeyGenResult
	paillierDone bool
	sentRound1   bool
}

// NewStateMachine begins a signing session over a fixed signer subset
// params.Parties (already negotiated via SIGN_REQUEST/SIGN_ACCEPT — see
// Propose/VerifyRequest). msgHash is the recomputed txHash; derivationPath
// names the non-hardened child index to tweak into the key.
func NewStateMachine(params *tss.Parameters, share *store.Share, sessionID string, msgHash []byte, derivationPath string, deadline time.Time) (tss.StateMachine, []tss.Message, error) {
	if len(msgHash) != 32 {
		err := tss.SigningErrorf("sign.new", fmt.Errorf("msgHash must be 32 bytes, got %d", len(msgHash)))
		return nil, []tss.Message{newAbortMessage(params.PartyID, sessionID, 0, err)}, err
	}

	idx, err := bip32.ParseLastIndex(derivationPath)
	if err != nil {
		err = tss.SigningErrorf("sign.new.derivation_path", err)
		return nil, []tss.Message{newAbortMessage(params.PartyID, sessionID, 0, err)}, err
	}
	tweak, err := bip32.Tweak(share.PX, share.PY, share.ChainCode, idx)
	if err != nil {
		err = tss.SigningErrorf("sign.new.tweak", err)
		return nil, []tss.Message{newAbortMessage(params.PartyID, sessionID, 0, err)}, err
	}
	childX, childY := bip32.ChildPublicKey(share.PX, share.PY, tweak)

	indices := make([]*big.Int, len(params.Parties))
	var myIndex *big.Int
	for i, p := range params.Parties {
		indices[i] = big.NewInt(int64(p.Index()))
		if p.ID() == params.PartyID.ID() {
			myIndex = indices[i]
		}
	}
	if myIndex == nil {
		err := tss.SigningErrorf("sign.new", fmt.Errorf("local party not present in signer set"))
		return nil, []tss.Message{newAbortMessage(params.PartyID, sessionID, 0, err)}, err
	}
	lambda, err := vss.Lagrange(myIndex, indices)
	if err != nil {
		err = tss.SigningErrorf("sign.new.lagrange", err)
		return nil, []tss.Message{newAbortMessage(params.PartyID, sessionID, 0, err)}, err
	}

	xPrime := new(big.Int).Add(share.X, tweak)
	curve.Mod(xPrime)

	s := &state{
		params:       params,
		sessionID:    sessionID,
		msgHash:      msgHash,
		deadline:     deadline,
		childPX:      childX,
		childPY:      childY,
		xPrime:       xPrime,
		lambda:       lambda,
		round:        1,
		tempData:     make(map[string]interface{}),
		receivedMsgs: make(map[string][]tss.Message),
	}

	return s.round1()
}

// IsExpired reports whether now is past the session deadline (spec.md §5).
func (s *state) IsExpired(now time.Time) bool {
	return now.After(s.deadline)
}

func (s *state) Update(msg tss.Message) (tss.StateMachine, []tss.Message, error) {
	if msg.RoundNumber() != uint32(s.round) {
		return s, nil, tss.ValidationErrorf("sign.update.stale_round", fmt.Errorf("message for round %d, expected %d", msg.RoundNumber(), s.round))
	}

	senderID := msg.From().ID()
	if senderID == s.params.PartyID.ID() {
		return s, nil, nil
	}

	for _, existing := range s.receivedMsgs[senderID] {
		if existing.Type() == msg.Type() {
			return s.abort(tss.SigningErrorf("sign.update.equivocation", fmt.Errorf("duplicate %s from %s", msg.Type(), senderID)))
		}
	}
	s.receivedMsgs[senderID] = append(s.receivedMsgs[senderID], msg)

	return s.maybeAdvance()
}

// maybeAdvance transitions to the next round once every expected peer
// message for the current round has arrived, honoring Round 1's extra
// "local Paillier keygen done" precondition (spec.md §4.5).
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

	if s.round == 1 && !s.paillierDone {
		// All peer messages are in, but our own async Paillier keygen has
		// not finished; advancement is held until PollPaillierReady merges
		// it in (spec.md §5 concurrency scenario 6).
		return s, nil, nil
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
		return s.abort(tss.SigningErrorf("sign.next_round", fmt.Errorf("unknown round %d", s.round)))
	}
}

// newAbortMessage builds the informational SIGN_ABORT broadcast spec.md
// §4.5/§5/§7 requires alongside every local session termination.
func newAbortMessage(self tss.PartyID, sessionID string, round int, cause error) tss.Message {
	data, err := marshalPayload(AbortPayload{Reason: cause.Error()})
	if err != nil {
		data = []byte(`{"Reason":"` + cause.Error() + `"}`)
	}
	return &SignMessage{
		FromParty:  self,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeSignAbort),
		RoundNum:   uint32(round),
	}
}

// abort terminates the session locally, returning the SIGN_ABORT
// broadcast alongside the triggering error (spec.md §7: verification
// failures inside a running session abort the whole session locally and
// broadcast an informational abort).
func (s *state) abort(cause error) (tss.StateMachine, []tss.Message, error) {
	return nil, []tss.Message{newAbortMessage(s.params.PartyID, s.sessionID, s.round, cause)}, cause
}

// PollPaillierReady performs a non-blocking check of the Round 1
// asynchronous Paillier keygen and, once it has resolved, merges the
// result into the current session and emits the deferred Round 1
// broadcast. It is a no-op once Round 1's own message has already been
// sent. The caller's event loop should call this whenever it would
// otherwise block, interleaved with Update.
func (s *state) PollPaillierReady() (tss.StateMachine, []tss.Message, error) {
	if s.paillierDone || s.round != 1 {
		return s, nil, nil
	}
	select {
	case res, ok := <-s.paillierCh:
		if !ok {
			return s, nil, nil
		}
		if res.Err != nil {
			return s.abort(tss.SigningErrorf("sign.round1.paillier_keygen", res.Err))
		}
		s.tempData["paillierSk"] = res.Key
		s.paillierDone = true
		out, err := s.emitRound1Broadcast()
		if err != nil {
			return s.abort(err)
		}
		next, advanceOut, err := s.maybeAdvance()
		return next, append(out, advanceOut...), err
	default:
		return s, nil, nil
	}
}

func (s *state) Result() interface{} {
	return nil
}

func (s *state) Details() string {
	return fmt.Sprintf("sign session %s round %d", s.sessionID, s.round)
}

// finishedState is the terminal StateMachine once a signature has been
// assembled and self-verified.
type finishedState struct {
	signature *Signature
	sessionID string
}

func (f *finishedState) Update(msg tss.Message) (tss.StateMachine, []tss.Message, error) {
	return nil, nil, tss.ErrProtocolDone
}

func (f *finishedState) Result() interface{} { return f.signature }
func (f *finishedState) Details() string     { return fmt.Sprintf("sign session %s finished", f.sessionID) }

// startPaillierKeyGen kicks off the fresh per-session Paillier keypair
// generation used as Round 1's suspension point.
func startPaillierKeyGen(ctx context.Context) <-chan paillier.KeyGenResult {
	return paillier.GenerateKeyAsync(ctx, paillierKeyGenBits)
}
