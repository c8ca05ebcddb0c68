// Command node is a thin local runner that wires internal/config,
// internal/transport, internal/protocol/dkg and internal/protocol/sign
// into a single demo process: every configured party runs in its own
// goroutine, talking over an in-process transport.Hub instead of a real
// TLS socket layer (spec.md §1's external-collaborator boundary).
// Grounded on the teacher's examples/basic/main.go, generalized from its
// hardcoded parties to config.Load-driven group membership.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/clirift/threshold-wallet/internal/config"
	"github.com/clirift/threshold-wallet/internal/crypto/bip32"
	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/crypto/ethtx"
	"github.com/clirift/threshold-wallet/internal/protocol/dkg"
	"github.com/clirift/threshold-wallet/internal/protocol/sign"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/internal/transport"
	"github.com/clirift/threshold-wallet/pkg/tss"
	"github.com/rs/zerolog"
)

type nodePartyID struct {
	id     string
	index  int
	pubkey []byte
}

func (p *nodePartyID) ID() string      { return p.id }
func (p *nodePartyID) Moniker() string { return p.id }
func (p *nodePartyID) Index() int      { return p.index }
func (p *nodePartyID) Key() []byte     { return p.pubkey }

func main() {
	configPath := flag.String("config", "", "path to a node YAML config (see internal/config)")
	message := flag.String("message", "hello from clirift", "message to sign once DKG completes")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("node: -config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("node: %v", err)
	}

	log.Printf("node: loaded config for %s, threshold %d of %d", cfg.NodeID, cfg.Threshold, cfg.TotalParties())
	if err := runLocalDemo(cfg, *message); err != nil {
		log.Fatalf("node: %v", err)
	}
}

// runLocalDemo generates fresh identity keypairs for every configured
// party, drives a full DKG ceremony over an in-process transport.Hub, then
// signs the given message, printing the resulting signature. It is a
// single-process stand-in for a real deployment where each party is a
// separate process holding only its own identity private key.
func runLocalDemo(cfg *config.Config, message string) error {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	names := []string{cfg.NodeID}
	for _, p := range cfg.Peers {
		names = append(names, p.ID)
	}

	parties := make([]tss.PartyID, len(names))
	privs := make(map[string]*big.Int, len(names))
	for i, name := range names {
		priv, err := curve.NewScalar()
		if err != nil {
			return fmt.Errorf("generate identity key for %s: %w", name, err)
		}
		x, y := curve.ScalarBaseMult(priv)
		pub, err := curve.CompressPoint(x, y)
		if err != nil {
			return fmt.Errorf("compress identity key for %s: %w", name, err)
		}
		parties[i] = &nodePartyID{id: name, index: i + 1, pubkey: pub}
		privs[name] = priv
	}

	stores := make(map[string]*store.Store, len(parties))
	if cfg.Store.Mode == config.StoreModeLocal {
		passphrase, err := cfg.Passphrase()
		if err != nil {
			return err
		}
		for _, p := range parties {
			st, err := store.NewLocalStore(filepath.Join(cfg.Store.Dir, p.ID()), passphrase, log)
			if err != nil {
				return fmt.Errorf("open store for %s: %w", p.ID(), err)
			}
			stores[p.ID()] = st
		}
	}

	ceremonyID := fmt.Sprintf("demo-%d", time.Now().UnixNano())
	results, err := runDKG(parties, privs, cfg.Threshold, ceremonyID, stores, log)
	if err != nil {
		return fmt.Errorf("dkg: %w", err)
	}

	master := results[parties[0].ID()]
	log.Info().Str("ceremonyId", ceremonyID).Msg("dkg complete")

	tx := &ethtx.RawTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		Value:     big.NewInt(0),
		Data:      []byte(message),
	}
	signers := parties
	if cfg.Threshold < len(parties) {
		signers = parties[:cfg.Threshold]
	}
	sig, err := runSign(signers, results, tx, "m/44'/60'/0'/0/0")
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	idx, err := bip32.ParseLastIndex("m/44'/60'/0'/0/0")
	if err != nil {
		return err
	}
	tweak, err := bip32.Tweak(master.PX, master.PY, master.ChainCode, idx)
	if err != nil {
		return err
	}
	childX, _ := bip32.ChildPublicKey(master.PX, master.PY, tweak)

	fmt.Printf("child public key x: %s...\n", childX.Text(16)[:16])
	fmt.Printf("signature: r=%s..., s=%s..., v=%d\n", sig.R.Text(16)[:16], sig.S.Text(16)[:16], sig.V)
	return nil
}

// runDKG drives a full ceremony across goroutines connected by a shared
// transport.Hub.
func runDKG(parties []tss.PartyID, privs map[string]*big.Int, threshold int, ceremonyID string, stores map[string]*store.Store, log zerolog.Logger) (map[string]*dkg.Result, error) {
	hub := transport.NewHub()
	conns := make(map[string]*transport.Conn, len(parties))
	for _, p := range parties {
		conns[p.ID()] = hub.Register(p.ID(), 64)
	}

	results := make(map[string]*dkg.Result, len(parties))
	errs := make(map[string]error, len(parties))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range parties {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := driveDKGParty(p, parties, privs[p.ID()], threshold, ceremonyID, stores[p.ID()], conns[p.ID()], log)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[p.ID()] = err
				return
			}
			results[p.ID()] = res
		}()
	}
	wg.Wait()

	for id, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("party %s: %w", id, err)
		}
	}
	return results, nil
}

func driveDKGParty(self tss.PartyID, parties []tss.PartyID, priv *big.Int, threshold int, ceremonyID string, st *store.Store, conn *transport.Conn, log zerolog.Logger) (*dkg.Result, error) {
	params := &tss.Parameters{PartyID: self, Parties: parties, Threshold: threshold, CeremonyID: ceremonyID}
	deadline := time.Now().Add(time.Minute)

	sm, out, err := dkg.NewStateMachine(params, priv, ceremonyID, deadline, st, log)
	if err != nil {
		return nil, err
	}
	if err := conn.SendAll(out); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	// Goroutines race independently through rounds, so a peer that advances
	// early can deliver a message for a round this party hasn't reached yet;
	// such messages are requeued and retried after every state transition.
	// A nil next state, in contrast, means Update terminated the ceremony
	// (equivocation or another verification failure triggered an abort) and
	// must not be retried: the driver broadcasts the abort message and stops.
	var pending []tss.Message
	for sm.Result() == nil {
		advanced := false
		for i, msg := range pending {
			next, out, err := sm.Update(msg)
			if err != nil {
				if next == nil {
					conn.SendAll(out)
					return nil, err
				}
				continue
			}
			sm = next
			pending = append(pending[:i:i], pending[i+1:]...)
			if err := conn.SendAll(out); err != nil {
				return nil, err
			}
			advanced = true
			break
		}
		if advanced {
			continue
		}

		msg, err := conn.Recv(ctx)
		if err != nil {
			return nil, err
		}
		next, out, err := sm.Update(msg)
		if err != nil {
			if next == nil {
				conn.SendAll(out)
				return nil, err
			}
			pending = append(pending, msg)
			continue
		}
		sm = next
		if err := conn.SendAll(out); err != nil {
			return nil, err
		}
	}
	return sm.Result().(*dkg.Result), nil
}

// runSign drives a signing ceremony the same way, first negotiating the
// signer subset's agreement to sign tx (spec.md §4.5: every signer
// independently recomputes and verifies txHash before accepting), then
// running the four-round ceremony and polling each party's asynchronous
// Paillier keygen between receives.
func runSign(signers []tss.PartyID, results map[string]*dkg.Result, tx *ethtx.RawTx, path string) (*sign.Signature, error) {
	hub := transport.NewHub()
	conns := make(map[string]*transport.Conn, len(signers))
	for _, p := range signers {
		conns[p.ID()] = hub.Register(p.ID(), 64)
	}

	coordinatorID := signers[0].ID()

	sigs := make(map[string]*sign.Signature, len(signers))
	errs := make(map[string]error, len(signers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range signers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := results[p.ID()]
			share := &store.Share{
				PartyIndex:      r.PartyIndex,
				X:               r.X,
				PublicKeyShares: r.PublicKeyShares,
				PX:              r.PX,
				PY:              r.PY,
				ChainCode:       r.ChainCode,
				CeremonyID:      r.CeremonyID,
			}
			sig, err := driveSignParty(p, signers, coordinatorID, share, tx, path, conns[p.ID()])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[p.ID()] = err
				return
			}
			sigs[p.ID()] = sig
		}()
	}
	wg.Wait()

	for id, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", id, err)
		}
	}
	return sigs[signers[0].ID()], nil
}

// negotiateSign runs the SIGN_REQUEST/SIGN_ACCEPT/SIGN_REJECT handshake
// for one party: the coordinator proposes tx and every other signer
// independently verifies its claimed hash before accepting. It returns
// the mutually verified digest, the session id the coordinator minted,
// and any messages read off conn that belong to the ceremony proper
// rather than the negotiation (buffered for replay once the ceremony's
// state machine exists).
func negotiateSign(self tss.PartyID, signers []tss.PartyID, coordinatorID string, tx *ethtx.RawTx, path string, conn *transport.Conn, ctx context.Context) (msgHash []byte, sessionID string, derivationPath string, buffered []tss.Message, err error) {
	if self.ID() == coordinatorID {
		sessionID = fmt.Sprintf("sign-%s-%d", coordinatorID, time.Now().UnixNano())
		reqMsg, hash, perr := sign.Propose(self, sessionID, path, tx)
		if perr != nil {
			return nil, "", "", nil, perr
		}
		msgHash, derivationPath = hash, path
		if serr := conn.Send(reqMsg); serr != nil {
			return nil, "", "", nil, serr
		}
	} else {
		for msgHash == nil {
			msg, rerr := conn.Recv(ctx)
			if rerr != nil {
				return nil, "", "", nil, rerr
			}
			if msg.Type() != string(tss.TypeSignRequest) {
				buffered = append(buffered, msg)
				continue
			}
			hash, sid, dpath, verr := sign.VerifyRequest(msg)
			if verr != nil {
				conn.Send(sign.Reject(self, sid, verr.Error()))
				return nil, "", "", nil, verr
			}
			msgHash, sessionID, derivationPath = hash, sid, dpath
		}
	}

	if serr := conn.Send(sign.Accept(self, sessionID)); serr != nil {
		return nil, "", "", nil, serr
	}

	quorum := sign.NewQuorumCollector(sessionID, len(signers)-1)
	for i := 0; i < len(buffered); {
		msg := buffered[i]
		if msg.Type() == string(tss.TypeSignAccept) || msg.Type() == string(tss.TypeSignReject) {
			if _, oerr := quorum.Observe(msg); oerr != nil {
				return nil, "", "", nil, oerr
			}
			buffered = append(buffered[:i:i], buffered[i+1:]...)
			continue
		}
		i++
	}
	for !quorum.Satisfied() {
		msg, rerr := conn.Recv(ctx)
		if rerr != nil {
			return nil, "", "", nil, rerr
		}
		if msg.Type() != string(tss.TypeSignAccept) && msg.Type() != string(tss.TypeSignReject) {
			buffered = append(buffered, msg)
			continue
		}
		if _, oerr := quorum.Observe(msg); oerr != nil {
			return nil, "", "", nil, oerr
		}
	}

	return msgHash, sessionID, derivationPath, buffered, nil
}

type paillierPoller interface {
	PollPaillierReady() (tss.StateMachine, []tss.Message, error)
}

func driveSignParty(self tss.PartyID, signers []tss.PartyID, coordinatorID string, share *store.Share, tx *ethtx.RawTx, path string, conn *transport.Conn) (*sign.Signature, error) {
	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	msgHash, sessionID, derivationPath, pending, err := negotiateSign(self, signers, coordinatorID, tx, path, conn, ctx)
	if err != nil {
		return nil, err
	}

	params := &tss.Parameters{PartyID: self, Parties: signers, Threshold: len(signers), CeremonyID: sessionID}
	sm, out, err := sign.NewStateMachine(params, share, sessionID, msgHash, derivationPath, deadline)
	if err != nil {
		return nil, err
	}
	if err := conn.SendAll(out); err != nil {
		return nil, err
	}

	// Mirrors driveDKGParty's out-of-order requeue and its terminal-abort
	// handling, on top of the Round 1 Paillier keygen suspension point
	// signing sessions also have to poll.
	for sm.Result() == nil {
		if pl, ok := sm.(paillierPoller); ok {
			next, msgs, err := pl.PollPaillierReady()
			if err != nil {
				conn.SendAll(msgs)
				return nil, err
			}
			sm = next
			if len(msgs) > 0 {
				if err := conn.SendAll(msgs); err != nil {
					return nil, err
				}
			}
		}

		advanced := false
		for i, msg := range pending {
			next, out, err := sm.Update(msg)
			if err != nil {
				if next == nil {
					conn.SendAll(out)
					return nil, err
				}
				continue
			}
			sm = next
			pending = append(pending[:i:i], pending[i+1:]...)
			if err := conn.SendAll(out); err != nil {
				return nil, err
			}
			advanced = true
			break
		}
		if advanced {
			continue
		}

		recvCtx, recvCancel := context.WithTimeout(ctx, 20*time.Millisecond)
		msg, err := conn.Recv(recvCtx)
		recvCancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		next, out, err := sm.Update(msg)
		if err != nil {
			if next == nil {
				conn.SendAll(out)
				return nil, err
			}
			pending = append(pending, msg)
			continue
		}
		sm = next
		if err := conn.SendAll(out); err != nil {
			return nil, err
		}
	}
	return sm.Result().(*sign.Signature), nil
}
