// Package transport is the in-process stand-in for the real TLS socket
// layer spec.md §1 scopes out as an external collaborator: a local hub
// that routes tss.Message values between registered parties' connections,
// enough to drive a ceremony end to end in a single process (cmd/node,
// tests) without modeling real network I/O.
package transport

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/clirift/threshold-wallet/pkg/tss"
)

// Hub routes messages among every party registered with it.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*Conn

	// seenNonces[recipientID] tracks every envelope nonce already delivered
	// to that party, rejecting a resend of the same envelope outright
	// (spec.md §6: the envelope's nonce guards against replay independent
	// of the timestamp window).
	seenNonces map[string]map[string]struct{}
}

// NewHub creates an empty routing hub.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Conn),
		seenNonces: make(map[string]map[string]struct{}),
	}
}

// Register opens a connection for partyID with a buffered inbox of the
// given depth. Registering the same party id twice replaces its prior
// connection.
func (h *Hub) Register(partyID string, inboxDepth int) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Conn{hub: h, partyID: partyID, inbox: make(chan tss.Message, inboxDepth)}
	h.conns[partyID] = c
	return c
}

// Deregister closes and removes a party's connection.
func (h *Hub) Deregister(partyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[partyID]; ok {
		close(c.inbox)
		delete(h.conns, partyID)
		delete(h.seenNonces, partyID)
	}
}

// route delivers msg to every addressed recipient's inbox, skipping the
// sender itself. Every delivery is gated on a fresh tss.Envelope built
// around msg's payload: Envelope.Validate enforces spec.md §6's 30-second
// anti-replay window, and the nonce is checked against every nonce already
// delivered to that recipient.
func (h *Hub) route(msg tss.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	senderID := msg.From().ID()
	deliverTo := func(id string) error {
		if id == senderID {
			return nil
		}
		c, ok := h.conns[id]
		if !ok {
			return fmt.Errorf("transport: no connection registered for party %s", id)
		}
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("transport: nonce: %w", err)
		}
		env, err := tss.NewEnvelope(tss.MessageType(msg.Type()), msg.Payload(), time.Now(), nonce)
		if err != nil {
			return fmt.Errorf("transport: envelope: %w", err)
		}
		if err := h.validateEnvelope(id, env); err != nil {
			return err
		}
		select {
		case c.inbox <- msg:
			return nil
		default:
			return fmt.Errorf("transport: inbox full for party %s", id)
		}
	}

	if msg.IsBroadcast() {
		for id := range h.conns {
			if err := deliverTo(id); err != nil {
				return err
			}
		}
		return nil
	}
	for _, to := range msg.To() {
		if err := deliverTo(to.ID()); err != nil {
			return err
		}
	}
	return nil
}

// validateEnvelope rejects env if it falls outside the replay window or if
// its nonce has already been delivered to recipientID. Callers must hold
// h.mu.
func (h *Hub) validateEnvelope(recipientID string, env *tss.Envelope) error {
	if err := env.Validate(time.Now()); err != nil {
		return fmt.Errorf("transport: envelope rejected for %s: %w", recipientID, err)
	}
	seen := h.seenNonces[recipientID]
	if seen == nil {
		seen = make(map[string]struct{})
		h.seenNonces[recipientID] = seen
	}
	if _, dup := seen[env.Nonce]; dup {
		return fmt.Errorf("transport: replayed nonce for %s", recipientID)
	}
	seen[env.Nonce] = struct{}{}
	return nil
}

// Conn is one party's connection to a Hub.
type Conn struct {
	hub     *Hub
	partyID string
	inbox   chan tss.Message
}

// Send routes a message to its recipients via the hub.
func (c *Conn) Send(msg tss.Message) error {
	return c.hub.route(msg)
}

// SendAll routes every message in msgs.
func (c *Conn) SendAll(msgs []tss.Message) error {
	for _, msg := range msgs {
		if err := c.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// Recv blocks until a message arrives or ctx is done.
func (c *Conn) Recv(ctx context.Context) (tss.Message, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, fmt.Errorf("transport: connection for %s closed", c.partyID)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
