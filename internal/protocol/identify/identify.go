// Package identify implements liveness/identity attestation for a node
// holding a persisted key share: a non-interactive Schnorr proof of
// knowledge of x_i such that x_i*G equals the party's published public
// key share, domain-separated per spec.md §4.1. Grounded on the
// teacher's internal/protocol/identify.go, adapted from its Paillier-era
// LocalPartySaveData to this repo's store.Share.
package identify

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/clirift/threshold-wallet/internal/store"
	"github.com/clirift/threshold-wallet/pkg/tss"
)

// ctxFor returns the domain-separated context binding an identify proof
// to a specific ceremony and party, distinct from every DKG/signing
// Schnorr context (spec.md §4.1).
func ctxFor(ceremonyID string, partyIndex int) string {
	return "IDENTIFY-" + ceremonyID + "-party-" + strconv.Itoa(partyIndex)
}

// Proof attests that the issuing party still possesses the secret share
// x_i corresponding to its published public key share X_i = x_i*G.
type Proof struct {
	PartyID    string
	CeremonyID string
	X, Y       *big.Int // the claimed public key share X_i
	SchnorrRX  *big.Int
	SchnorrRY  *big.Int
	SchnorrS   *big.Int
}

// NewProof generates a liveness proof from a loaded share: share.X must
// still be the live secret scalar (call before it is wiped at session
// end, per spec.md §3's ownership rules).
func NewProof(partyID tss.PartyID, share *store.Share) (*Proof, error) {
	if share == nil || share.X == nil {
		return nil, errors.New("identify: share is missing its secret scalar")
	}
	x, y := curve.ScalarBaseMult(share.X)
	ctx := ctxFor(share.CeremonyID, share.PartyIndex)
	schnorr, err := curve.Prove(share.X, x, y, ctx)
	if err != nil {
		return nil, err
	}
	return &Proof{
		PartyID:    partyID.ID(),
		CeremonyID: share.CeremonyID,
		X:          x,
		Y:          y,
		SchnorrRX:  schnorr.Rx,
		SchnorrRY:  schnorr.Ry,
		SchnorrS:   schnorr.S,
	}, nil
}

// Verify checks a liveness proof against the expected public key share
// coordinates x_i*G of the party's secret share. The intercept
// commitments a_{i,0}*G kept in a share's PublicKeyShares are a different
// point and do not match.
func Verify(p *Proof, partyIndex int, expectedX, expectedY *big.Int) bool {
	if p == nil || p.X == nil || p.Y == nil {
		return false
	}
	if expectedX != nil && expectedY != nil {
		if p.X.Cmp(expectedX) != 0 || p.Y.Cmp(expectedY) != 0 {
			return false
		}
	}
	proof := &curve.Proof{Rx: p.SchnorrRX, Ry: p.SchnorrRY, S: p.SchnorrS}
	return curve.Verify(p.X, p.Y, proof, ctxFor(p.CeremonyID, partyIndex))
}

// Session collects and verifies liveness proofs from every other party
// in a ceremony before a signing session admits them as signers.
type Session struct {
	params     *tss.Parameters
	peerProofs map[string]*Proof
}

// NewSession starts a liveness-collection session for the local party.
func NewSession(params *tss.Parameters) *Session {
	return &Session{params: params, peerProofs: make(map[string]*Proof)}
}

// AddPeerProof verifies and records a peer's proof against its expected
// public key share coordinates.
func (s *Session) AddPeerProof(proof *Proof, expectedX, expectedY *big.Int, partyIndex int) error {
	if proof == nil {
		return errors.New("identify: proof cannot be nil")
	}
	if proof.PartyID == s.params.PartyID.ID() {
		return errors.New("identify: cannot add own proof as peer proof")
	}
	if !Verify(proof, partyIndex, expectedX, expectedY) {
		return errors.New("identify: proof verification failed")
	}
	s.peerProofs[proof.PartyID] = proof
	return nil
}

// IsComplete reports whether every other party in the ceremony has a
// verified proof on file.
func (s *Session) IsComplete() bool {
	return len(s.peerProofs) >= len(s.params.Parties)-1
}
