package tss

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// MockPartyID implements PartyID for testing purposes.
type MockPartyID struct {
	id      string
	moniker string
	index   int
	key     []byte
}

func (m *MockPartyID) ID() string      { return m.id }
func (m *MockPartyID) Moniker() string { return m.moniker }
func (m *MockPartyID) Index() int      { return m.index }
func (m *MockPartyID) Key() []byte     { return m.key }

// MockMessage implements Message for testing purposes.
type MockMessage struct {
	msgType     string
	from        PartyID
	to          []PartyID
	isBroadcast bool
	payload     []byte
	round       uint32
}

func (m *MockMessage) Type() string        { return m.msgType }
func (m *MockMessage) From() PartyID       { return m.from }
func (m *MockMessage) To() []PartyID       { return m.to }
func (m *MockMessage) IsBroadcast() bool   { return m.isBroadcast }
func (m *MockMessage) Payload() []byte     { return m.payload }
func (m *MockMessage) RoundNumber() uint32 { return m.round }

func TestInterfaces(t *testing.T) {
	var _ PartyID = &MockPartyID{}
	var _ Message = &MockMessage{}

	pid := &MockPartyID{id: "p1", moniker: "party1", index: 1, key: []byte("key1")}
	require.Equal(t, "p1", pid.ID())
	require.Equal(t, 1, pid.Index())

	msg := &MockMessage{
		msgType:     "test",
		from:        pid,
		isBroadcast: true,
		round:       1,
	}

	require.Equal(t, "test", msg.Type())
	require.True(t, msg.IsBroadcast())
}

func TestBlameError(t *testing.T) {
	pid := &MockPartyID{id: "p2"}
	b := NewBlame(pid, "bad proof", nil)
	require.Contains(t, b.Error(), "p2")
	require.Contains(t, b.Error(), "bad proof")
}

func TestTypedErrorIs(t *testing.T) {
	err := DkgErrorf("round3.feldman_verify", ErrInvalidMsg)
	require.ErrorIs(t, err, &Error{Kind: KindDKG})
	require.NotErrorIs(t, err, &Error{Kind: KindSigning})
}
