package transport

import (
	"context"
	"testing"
	"time"

	"github.com/clirift/threshold-wallet/pkg/tss"
	"github.com/stretchr/testify/require"
)

type fakePartyID struct{ id string }

func (p *fakePartyID) ID() string      { return p.id }
func (p *fakePartyID) Moniker() string { return p.id }
func (p *fakePartyID) Index() int      { return 0 }
func (p *fakePartyID) Key() []byte     { return []byte(p.id) }

type fakeMessage struct {
	from tss.PartyID
	to   []tss.PartyID
	bcast bool
}

func (m *fakeMessage) Type() string            { return "TEST" }
func (m *fakeMessage) From() tss.PartyID       { return m.from }
func (m *fakeMessage) To() []tss.PartyID       { return m.to }
func (m *fakeMessage) IsBroadcast() bool       { return m.bcast }
func (m *fakeMessage) Payload() []byte         { return nil }
func (m *fakeMessage) RoundNumber() uint32     { return 1 }

func TestBroadcastReachesEveryoneButSender(t *testing.T) {
	hub := NewHub()
	a := hub.Register("A", 4)
	b := hub.Register("B", 4)
	c := hub.Register("C", 4)

	require.NoError(t, a.Send(&fakeMessage{from: &fakePartyID{"A"}, bcast: true}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Recv(ctx)
	require.NoError(t, err)
	_, err = c.Recv(ctx)
	require.NoError(t, err)

	emptyCtx, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = a.Recv(emptyCtx)
	require.Error(t, err, "sender must not receive its own broadcast")
}

func TestP2PReachesOnlyAddressee(t *testing.T) {
	hub := NewHub()
	a := hub.Register("A", 4)
	b := hub.Register("B", 4)
	c := hub.Register("C", 4)

	require.NoError(t, a.Send(&fakeMessage{from: &fakePartyID{"A"}, to: []tss.PartyID{&fakePartyID{"B"}}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Recv(ctx)
	require.NoError(t, err)

	emptyCtx, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = c.Recv(emptyCtx)
	require.Error(t, err, "non-addressee must not receive a p2p message")
}

func TestSendToUnregisteredPartyErrors(t *testing.T) {
	hub := NewHub()
	a := hub.Register("A", 4)
	err := a.Send(&fakeMessage{from: &fakePartyID{"A"}, to: []tss.PartyID{&fakePartyID{"ghost"}}})
	require.Error(t, err)
}

func TestDeregisterClosesConnection(t *testing.T) {
	hub := NewHub()
	a := hub.Register("A", 4)
	hub.Register("B", 4)
	hub.Deregister("B")

	err := a.Send(&fakeMessage{from: &fakePartyID{"A"}, to: []tss.PartyID{&fakePartyID{"B"}}})
	require.Error(t, err)
}

func TestRouteRejectsStaleEnvelope(t *testing.T) {
	hub := NewHub()
	env, err := tss.NewEnvelope(tss.TypeSignRound1, []byte("payload"), time.Now().Add(-time.Hour), []byte("nonce-1"))
	require.NoError(t, err)

	err = hub.validateEnvelope("B", env)
	require.Error(t, err, "an envelope older than the replay window must be rejected")
}

func TestRouteRejectsReplayedNonce(t *testing.T) {
	hub := NewHub()
	env, err := tss.NewEnvelope(tss.TypeSignRound1, []byte("payload"), time.Now(), []byte("nonce-1"))
	require.NoError(t, err)

	require.NoError(t, hub.validateEnvelope("B", env))
	err = hub.validateEnvelope("B", env)
	require.Error(t, err, "the same envelope delivered twice to the same recipient must be rejected")
}

func TestSendConstructsAndValidatesEnvelope(t *testing.T) {
	hub := NewHub()
	a := hub.Register("A", 4)
	b := hub.Register("B", 4)

	require.NoError(t, a.Send(&fakeMessage{from: &fakePartyID{"A"}, to: []tss.PartyID{&fakePartyID{"B"}}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Recv(ctx)
	require.NoError(t, err, "a fresh envelope must pass validation and reach the recipient's inbox")
}
