// Package dkg implements the four-round verifiable-secret-sharing
// ceremony that produces a shared ECDSA master key with no single
// holder (spec.md §4.4): Pedersen-committed Feldman VSS polynomials,
// hybrid-encrypted per-peer share distribution, and a BIP32 chain code
// over the assembled master public key. Grounded on the teacher's
// internal/protocol/keygen round_1..round_4/state/types structure,
// generalized away from the teacher's reused-Paillier, single-commitment
// design to the spec's Pedersen+Feldman+Schnorr four-round shape.
package dkg

import (
	"encoding/json"
	"math/big"

	"github.com/clirift/threshold-wallet/pkg/tss"
)

// Result is a completed ceremony's local output: the durable share ready
// for internal/store and the unencrypted ceremony-metadata sidecar.
type Result struct {
	PartyIndex      int
	X               *big.Int // x_i, this party's persistent Shamir share
	PublicKeyShares [][2]*big.Int // a_{j,0}*G per party, ordered by party index (spec.md §9 naming note)
	PX, PY          *big.Int // P = d*G, the master public key
	ChainCode       []byte
	CeremonyID      string
}

// Round1Payload is the Round 1 broadcast: a Pedersen commitment to this
// party's Feldman vector and Paillier-free VSS setup.
type Round1Payload struct {
	Commitment []byte
}

// Round2Payload is the Round 2 broadcast: the opened Feldman commitment
// vector, the Pedersen blinding scalar, and a Schnorr PoK of the secret
// intercept a_{i,0}.
type Round2Payload struct {
	FeldmanX []*big.Int
	FeldmanY []*big.Int
	Blinding *big.Int
	ProofRX  *big.Int
	ProofRY  *big.Int
	ProofS   *big.Int
}

// Round3Payload is a point-to-point message: this party's Shamir share
// for the recipient, hybrid-encrypted under the recipient's identity
// public key.
type Round3Payload struct {
	EncryptedShare []byte
}

// Round4Payload is the Round 4 broadcast: this party's public key share
// x_i*G plus a confirmation that its own Feldman checks passed.
type Round4Payload struct {
	XiX, XiY      *big.Int
	ShareVerified bool
}

// AbortPayload is the broadcast body of a DKG_ABORT message: an
// informational reason for a local ceremony termination (spec.md
// §4.4/§5/§7). It carries no secret material.
type AbortPayload struct {
	Reason string
}

// Message is the concrete tss.Message implementation for the DKG engine.
type Message struct {
	FromParty  tss.PartyID
	ToParties  []tss.PartyID
	IsBcast    bool
	Data       []byte
	TypeString string
	RoundNum   uint32
}

func (m *Message) Type() string        { return m.TypeString }
func (m *Message) From() tss.PartyID   { return m.FromParty }
func (m *Message) To() []tss.PartyID   { return m.ToParties }
func (m *Message) IsBroadcast() bool   { return m.IsBcast }
func (m *Message) Payload() []byte     { return m.Data }
func (m *Message) RoundNumber() uint32 { return m.RoundNum }

// marshalPayload is the shared wire encoding for every round payload.
func marshalPayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalPayload decodes a message payload into v.
func unmarshalPayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
