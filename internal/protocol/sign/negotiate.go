package sign

import (
	"encoding/hex"
	"fmt"

	"github.com/clirift/threshold-wallet/internal/crypto/ethtx"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// SignRequestPayload is the SIGN_REQUEST broadcast a coordinator sends to
// nominate a signer subset for a transaction: the raw EIP-1559 fields plus
// the coordinator's claimed signing hash, which every other signer must
// independently reproduce before accepting (spec.md §4.5/§6).
type SignRequestPayload struct {
	SessionID      string
	DerivationPath string
	ClaimedTxHash  string // hex, no 0x prefix
	Tx             *ethtx.RawTx
}

// SignAcceptPayload is a SIGN_ACCEPT broadcast: this party independently
// verified the proposal's txHash and is willing to sign.
type SignAcceptPayload struct {
	SessionID string
}

// SignRejectPayload is a SIGN_REJECT broadcast: this party declines the
// proposal, e.g. because its recomputed hash did not match.
type SignRejectPayload struct {
	SessionID string
	Reason    string
}

// Propose builds the SIGN_REQUEST broadcast for tx. It recomputes tx's
// EIP-1559 signing hash itself rather than trusting a hash handed to it,
// so the claim in the wire payload is grounded the same way every
// receiver's VerifyRequest call will check it. The returned digest is
// ready to pass as NewStateMachine's msgHash once a quorum accepts.
func Propose(self tss.PartyID, sessionID, derivationPath string, tx *ethtx.RawTx) (tss.Message, []byte, error) {
	hash := tx.Hash()
	payload := SignRequestPayload{
		SessionID:      sessionID,
		DerivationPath: derivationPath,
		ClaimedTxHash:  hex.EncodeToString(hash[:]),
		Tx:             tx,
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, nil, tss.SigningErrorf("sign.propose.marshal", err)
	}
	msg := &SignMessage{
		FromParty:  self,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeSignRequest),
		RoundNum:   0,
	}
	return msg, hash[:], nil
}

// VerifyRequest decodes a SIGN_REQUEST message and independently
// recomputes its transaction's signing hash via ethtx.VerifyTxHash,
// refusing the proposal if the recomputed hash does not match the
// claim (spec.md §4.5: "each signer independently recomputes and
// verifies txHash before accepting"). On success it returns the verified
// 32-byte digest plus the session id and derivation path the request
// carried, ready to feed into NewStateMachine.
func VerifyRequest(msg tss.Message) (msgHash []byte, sessionID, derivationPath string, err error) {
	if msg.Type() != string(tss.TypeSignRequest) {
		return nil, "", "", tss.SigningErrorf("sign.verify_request", fmt.Errorf("expected %s, got %s", tss.TypeSignRequest, msg.Type()))
	}
	var payload SignRequestPayload
	if err := unmarshalPayload(msg.Payload(), &payload); err != nil {
		return nil, "", "", tss.SigningErrorf("sign.verify_request.unmarshal", err)
	}
	if err := ethtx.VerifyTxHash(payload.Tx, payload.ClaimedTxHash); err != nil {
		return nil, "", "", tss.SigningErrorf("sign.verify_request.hash_mismatch", err)
	}
	hash, err := hex.DecodeString(payload.ClaimedTxHash)
	if err != nil || len(hash) != 32 {
		return nil, "", "", tss.SigningErrorf("sign.verify_request.decode", fmt.Errorf("malformed claimed hash"))
	}
	return hash, payload.SessionID, payload.DerivationPath, nil
}

// Accept builds a SIGN_ACCEPT broadcast for sessionID.
func Accept(self tss.PartyID, sessionID string) tss.Message {
	data, _ := marshalPayload(SignAcceptPayload{SessionID: sessionID})
	return &SignMessage{
		FromParty:  self,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeSignAccept),
		RoundNum:   0,
	}
}

// Reject builds a SIGN_REJECT broadcast for sessionID, carrying reason.
func Reject(self tss.PartyID, sessionID, reason string) tss.Message {
	data, _ := marshalPayload(SignRejectPayload{SessionID: sessionID, Reason: reason})
	return &SignMessage{
		FromParty:  self,
		ToParties:  nil,
		IsBcast:    true,
		Data:       data,
		TypeString: string(tss.TypeSignReject),
		RoundNum:   0,
	}
}

// QuorumCollector folds in SIGN_ACCEPT/SIGN_REJECT responses to one
// SIGN_REQUEST until either `need` distinct parties have accepted or a
// single SIGN_REJECT for the session arrives, gating NewStateMachine on
// a real accept quorum rather than an assumed signer subset (spec.md
// §4.5).
type QuorumCollector struct {
	sessionID string
	need      int
	accepted  map[string]struct{}
}

// NewQuorumCollector creates a collector for sessionID requiring need
// distinct acceptances before the session may proceed.
func NewQuorumCollector(sessionID string, need int) *QuorumCollector {
	return &QuorumCollector{sessionID: sessionID, need: need, accepted: make(map[string]struct{})}
}

// Observe folds in one SIGN_ACCEPT/SIGN_REJECT message addressed to this
// collector's session, reporting whether the quorum is now satisfied.
// Messages for a different session id are ignored. A SIGN_REJECT for this
// session is a hard failure: the proposal is abandoned.
func (q *QuorumCollector) Observe(msg tss.Message) (bool, error) {
	switch msg.Type() {
	case string(tss.TypeSignAccept):
		var payload SignAcceptPayload
		if err := unmarshalPayload(msg.Payload(), &payload); err != nil {
			return false, tss.SigningErrorf("sign.quorum.unmarshal_accept", err)
		}
		if payload.SessionID != q.sessionID {
			return false, nil
		}
		q.accepted[msg.From().ID()] = struct{}{}
		return len(q.accepted) >= q.need, nil
	case string(tss.TypeSignReject):
		var payload SignRejectPayload
		if err := unmarshalPayload(msg.Payload(), &payload); err != nil {
			return false, tss.SigningErrorf("sign.quorum.unmarshal_reject", err)
		}
		if payload.SessionID != q.sessionID {
			return false, nil
		}
		return false, tss.SigningErrorf("sign.quorum.rejected", fmt.Errorf("%s declined: %s", msg.From().ID(), payload.Reason))
	default:
		return false, nil
	}
}

// Satisfied reports whether enough distinct parties have accepted.
func (q *QuorumCollector) Satisfied() bool {
	return len(q.accepted) >= q.need
}
