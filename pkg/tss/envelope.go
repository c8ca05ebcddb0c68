package tss

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates every wire message type relevant to the core
// DKG and signing ceremonies.
type MessageType string

const (
	TypeDkgPropose  MessageType = "DKG_PROPOSE"
	TypeDkgAccept   MessageType = "DKG_ACCEPT"
	TypeDkgRound1   MessageType = "DKG_ROUND1"
	TypeDkgRound2   MessageType = "DKG_ROUND2"
	TypeDkgRound3P2P MessageType = "DKG_ROUND3_P2P"
	TypeDkgRound4   MessageType = "DKG_ROUND4"
	TypeDkgComplete MessageType = "DKG_COMPLETE"
	TypeDkgAbort    MessageType = "DKG_ABORT"

	TypeSignRequest MessageType = "SIGN_REQUEST"
	TypeSignAccept  MessageType = "SIGN_ACCEPT"
	TypeSignReject  MessageType = "SIGN_REJECT"
	TypeSignRound1  MessageType = "SIGN_ROUND1"
	TypeSignRound2  MessageType = "SIGN_ROUND2"
	TypeSignRound3  MessageType = "SIGN_ROUND3"
	TypeSignRound4  MessageType = "SIGN_ROUND4"
	TypeSignComplete MessageType = "SIGN_COMPLETE"
	TypeSignAbort   MessageType = "SIGN_ABORT"
)

// ReplayWindow is the maximum age, relative to the receiver's clock, of an
// accepted envelope. Anything older is rejected as a replay.
const ReplayWindow = 30 * time.Second

// Envelope is the wire-level message wrapper described in spec.md §6:
// {id, type, timestamp, nonce, payload}.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"` // ms epoch
	Nonce     string          `json:"nonce"`      // hex
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for payload, stamping a fresh id and the
// caller-supplied time and nonce.
func NewEnvelope(typ MessageType, payload interface{}, now time.Time, nonce []byte) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ValidationErrorf("envelope.marshal", err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: now.UnixMilli(),
		Nonce:     hex.EncodeToString(nonce),
		Payload:   data,
	}, nil
}

// Validate rejects envelopes whose timestamp is outside the replay window
// relative to now. It does not inspect the nonce for uniqueness; nonce
// bookkeeping (seen-set) is the transport's responsibility.
func (e *Envelope) Validate(now time.Time) error {
	age := now.Sub(time.UnixMilli(e.Timestamp))
	if age < 0 {
		age = -age
	}
	if age > ReplayWindow {
		return ValidationErrorf("envelope.replay_window", ErrInvalidMsg)
	}
	return nil
}

// Unmarshal decodes the envelope payload into v.
func (e *Envelope) Unmarshal(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return ValidationErrorf("envelope.unmarshal", err)
	}
	return nil
}
