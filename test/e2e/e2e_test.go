// Package e2e drives a full 2-of-3 ceremony lifecycle — DKG followed by
// threshold signing over the DKG's own output, with shares persisted to
// and reloaded from disk in between — exercising the wiring between
// internal/protocol/dkg, internal/protocol/sign and internal/store that
// the package-level tests don't reach together.
package e2e

import (
	"crypto/sha256"
	"math/big"
	"testing"
	"time"

	"github.com/clirift/threshold-wallet/internal/crypto/bip32"
	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/protocol/dkg"
	"github.com/clirift/threshold-wallet/internal/protocol/sign"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/pkg/tss"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testPartyID struct {
	id     string
	index  int
	pubkey []byte
}

func (p *testPartyID) ID() string      { return p.id }
func (p *testPartyID) Moniker() string { return "node-" + p.id }
func (p *testPartyID) Index() int      { return p.index }
func (p *testPartyID) Key() []byte     { return p.pubkey }

func newParties(t *testing.T, n int) ([]tss.PartyID, map[string]*big.Int) {
	t.Helper()
	parties := make([]tss.PartyID, n)
	privs := make(map[string]*big.Int, n)
	for i := 0; i < n; i++ {
		priv, err := curve.NewScalar()
		require.NoError(t, err)
		x, y := curve.ScalarBaseMult(priv)
		pub, err := curve.CompressPoint(x, y)
		require.NoError(t, err)
		id := string(rune('A' + i))
		parties[i] = &testPartyID{id: id, index: i + 1, pubkey: pub}
		privs[id] = priv
	}
	return parties, privs
}

// deliver routes every message in outbox to its recipients (or everyone,
// for a broadcast) and returns each recipient's freshly produced output.
func deliver(t *testing.T, sms map[string]tss.StateMachine, outbox []tss.Message, parties []tss.PartyID) []tss.Message {
	t.Helper()
	var next []tss.Message
	for _, p := range parties {
		if sms[p.ID()] == nil {
			continue
		}
		for _, msg := range outbox {
			if msg.From().ID() == p.ID() {
				continue
			}
			if !msg.IsBroadcast() {
				addressed := false
				for _, to := range msg.To() {
					if to.ID() == p.ID() {
						addressed = true
						break
					}
				}
				if !addressed {
					continue
				}
			}
			sm, out, err := sms[p.ID()].Update(msg)
			require.NoError(t, err)
			sms[p.ID()] = sm
			next = append(next, out...)
		}
	}
	return next
}

func runDKG(t *testing.T, parties []tss.PartyID, privs map[string]*big.Int, threshold int, ceremonyID string, stores map[string]*store.Store) map[string]*dkg.Result {
	t.Helper()
	deadline := time.Now().Add(time.Minute)
	log := zerolog.Nop()

	sms := make(map[string]tss.StateMachine, len(parties))
	var outbox []tss.Message
	for _, p := range parties {
		params := &tss.Parameters{PartyID: p, Parties: parties, Threshold: threshold, CeremonyID: ceremonyID}
		var st *store.Store
		if stores != nil {
			st = stores[p.ID()]
		}
		sm, out, err := dkg.NewStateMachine(params, privs[p.ID()], ceremonyID, deadline, st, log)
		require.NoError(t, err)
		sms[p.ID()] = sm
		outbox = append(outbox, out...)
	}

	for round := 0; round < 4; round++ {
		outbox = deliver(t, sms, outbox, parties)
	}

	results := make(map[string]*dkg.Result, len(parties))
	for _, p := range parties {
		res := sms[p.ID()].Result()
		require.NotNil(t, res, "party %s did not finish dkg", p.ID())
		results[p.ID()] = res.(*dkg.Result)
	}
	return results
}

// drainPaillier polls every signer's asynchronous Round 1 Paillier keygen
// until each has resolved and emitted its deferred Round 1 broadcast.
func drainPaillier(t *testing.T, sms map[string]tss.StateMachine, parties []tss.PartyID) []tss.Message {
	t.Helper()
	type poller interface {
		PollPaillierReady() (tss.StateMachine, []tss.Message, error)
	}
	var out []tss.Message
	for {
		progressed := false
		for _, p := range parties {
			pl, ok := sms[p.ID()].(poller)
			if !ok {
				continue
			}
			sm, msgs, err := pl.PollPaillierReady()
			require.NoError(t, err)
			sms[p.ID()] = sm
			if len(msgs) > 0 {
				out = append(out, msgs...)
				progressed = true
			}
		}
		if !progressed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return out
}

func runSigning(t *testing.T, signers []tss.PartyID, shares map[string]*store.Share, digest []byte, path string) map[string]*sign.Signature {
	t.Helper()
	deadline := time.Now().Add(time.Minute)

	sms := make(map[string]tss.StateMachine, len(signers))
	var outbox []tss.Message
	for _, p := range signers {
		params := &tss.Parameters{PartyID: p, Parties: signers, Threshold: len(signers), CeremonyID: "sign-ceremony"}
		sm, out, err := sign.NewStateMachine(params, shares[p.ID()], "sign-session", digest, path, deadline)
		require.NoError(t, err)
		sms[p.ID()] = sm
		outbox = append(outbox, out...)
	}

	for attempt := 0; attempt < 400 && len(outbox) < len(signers); attempt++ {
		outbox = append(outbox, drainPaillier(t, sms, signers)...)
		if len(outbox) < len(signers) {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.Len(t, outbox, len(signers), "every signer must emit its round 1 broadcast")

	for round := 0; round < 4; round++ {
		outbox = deliver(t, sms, outbox, signers)
	}

	sigs := make(map[string]*sign.Signature, len(signers))
	for _, p := range signers {
		res := sms[p.ID()].Result()
		require.NotNil(t, res, "signer %s did not finish", p.ID())
		sigs[p.ID()] = res.(*sign.Signature)
	}
	return sigs
}

// verifyECDSA performs the same verification the signing engine applies
// before releasing a signature, used here to confirm the assembled
// signature is valid against the BIP32 child public key derived
// independently by the test.
func verifyECDSA(t *testing.T, pkX, pkY *big.Int, digest []byte, sig *sign.Signature) {
	t.Helper()
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(pkX.Bytes())
	fy.SetByteSlice(pkY.Bytes())
	pub := secp256k1.NewPublicKey(&fx, &fy)

	var rMod, sMod secp256k1.ModNScalar
	rMod.SetByteSlice(sig.R.Bytes())
	sMod.SetByteSlice(sig.S.Bytes())

	ecdsaSig := ecdsa.NewSignature(&rMod, &sMod)
	require.True(t, ecdsaSig.Verify(digest, pub), "assembled signature must verify against the child public key")
}

func TestFullLifecycleDkgThenSign(t *testing.T) {
	parties, privs := newParties(t, 3)
	ceremonyID := "lifecycle-ceremony"

	stores := make(map[string]*store.Store, len(parties))
	for _, p := range parties {
		st, err := store.NewLocalStore(t.TempDir(), []byte("a passphrase that is at least 32 chars"), zerolog.Nop())
		require.NoError(t, err)
		stores[p.ID()] = st
	}

	results := runDKG(t, parties, privs, 2, ceremonyID, stores)

	shares := make(map[string]*store.Share, len(parties))
	for _, p := range parties {
		require.True(t, stores[p.ID()].Exists())
		loaded, err := stores[p.ID()].Load()
		require.NoError(t, err)
		require.Zero(t, loaded.X.Cmp(results[p.ID()].X), "loaded share must match the ceremony's freshly assembled share")
		shares[p.ID()] = loaded
	}

	msg := []byte("0.1 ETH to 0xdeadbeef")
	digest := sha256.Sum256(msg)
	signers := parties[:2]
	path := "m/44'/60'/0'/0/3"

	sigs := runSigning(t, signers, shares, digest[:], path)

	idx, err := bip32.ParseLastIndex(path)
	require.NoError(t, err)
	master := results["A"]
	tweak, err := bip32.Tweak(master.PX, master.PY, master.ChainCode, idx)
	require.NoError(t, err)
	childX, childY := bip32.ChildPublicKey(master.PX, master.PY, tweak)

	var reference *sign.Signature
	for _, p := range signers {
		sig := sigs[p.ID()]
		verifyECDSA(t, childX, childY, digest[:], sig)
		if reference == nil {
			reference = sig
		} else {
			require.Zero(t, reference.R.Cmp(sig.R), "every signer must assemble the same r")
			require.Zero(t, reference.S.Cmp(sig.S), "every signer must assemble the same s")
		}
	}
}
