// Package tss holds the wire-level contracts shared by the DKG and signing
// state machines: party identity, message envelopes, and the generic
// state-machine shape both protocols implement.
package tss

import "errors"

// Common errors returned by the protocol engines.
var (
	ErrRoundTimeout = errors.New("tss: protocol round timeout")
	ErrInvalidMsg   = errors.New("tss: invalid message received")
	ErrProtocolDone = errors.New("tss: protocol already finished")
)

// PartyID represents a participant in the MPC protocol. It must be unique
// within a session and stable across both ceremonies.
type PartyID interface {
	// ID returns the unique string identifier for the party.
	ID() string

	// Moniker returns a human-readable name for the party.
	Moniker() string

	// Index returns the 1-based party index assigned by ceremony order.
	Index() int

	// Key returns the public identity key used to encrypt Round 3 DKG
	// shares addressed to this party.
	Key() []byte
}

// Message is the generic interface for all protocol messages.
type Message interface {
	// Type returns a string identifier for the message type, e.g.
	// "DKG_ROUND1" or "SIGN_ROUND3".
	Type() string

	// From returns the sender's PartyID.
	From() PartyID

	// To returns the intended recipients. Empty means broadcast.
	To() []PartyID

	// IsBroadcast reports whether the message is intended for all parties.
	IsBroadcast() bool

	// Payload returns the serialized data of the message.
	Payload() []byte

	// RoundNumber returns the protocol round this message belongs to.
	RoundNumber() uint32
}

// StateMachine is the core engine that drives a ceremony. The DKG and
// signing implementations update their state in place and return that same
// value from Update while the ceremony runs.
type StateMachine interface {
	// Update applies an incoming message to the current state. It returns
	// the next state machine (a finished machine whose Result is non-nil on
	// completion; nil on abort or when called after the protocol finished),
	// the messages to broadcast/send, and an error if the transition failed.
	Update(msg Message) (next StateMachine, out []Message, err error)

	// Result returns the final output of the protocol. Returns nil if the
	// protocol has not yet finished.
	Result() interface{}

	// Details returns a human-readable description of the current phase.
	Details() string
}

// Parameters holds the configuration for a single ceremony session.
type Parameters struct {
	PartyID    PartyID   // the identity of the local party
	Parties    []PartyID // all participants, sorted by Index()
	Threshold  int       // threshold t; t participants reconstruct the secret
	CeremonyID string    // ceremony label; the DKG and signing engines take their Schnorr PoK context id from their own ceremonyID/sessionID arguments, not from this field
}

// ProtocolInitializer defines the function signature for starting a ceremony.
type ProtocolInitializer func(params *Parameters) (StateMachine, []Message, error)
