package sign

import (
	"math/big"
	"testing"

	"github.com/clirift/threshold-wallet/internal/crypto/ethtx"
	"github.com/stretchr/testify/require"
)

func testTx() *ethtx.RawTx {
	return &ethtx.RawTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		Value:     big.NewInt(0),
		Data:      []byte("hello"),
	}
}

func TestProposeThenVerifyRequestAgree(t *testing.T) {
	proposer := &testPartyID{id: "A", index: 1}
	tx := testTx()

	msg, hash, err := Propose(proposer, "session-1", "m/44'/60'/0'/0/0", tx)
	require.NoError(t, err)

	got, sessionID, path, err := VerifyRequest(msg)
	require.NoError(t, err)
	require.Equal(t, hash, got)
	require.Equal(t, "session-1", sessionID)
	require.Equal(t, "m/44'/60'/0'/0/0", path)
}

func TestVerifyRequestRejectsTamperedHash(t *testing.T) {
	proposer := &testPartyID{id: "A", index: 1}
	tx := testTx()

	msg, _, err := Propose(proposer, "session-1", "m/44'/60'/0'/0/0", tx)
	require.NoError(t, err)

	var payload SignRequestPayload
	require.NoError(t, unmarshalPayload(msg.Payload(), &payload))
	payload.ClaimedTxHash = "00" + payload.ClaimedTxHash[2:]
	tampered, err := marshalPayload(payload)
	require.NoError(t, err)
	msg.(*SignMessage).Data = tampered

	_, _, _, err = VerifyRequest(msg)
	require.Error(t, err, "a claimed hash that does not match the recomputed hash must be rejected")
}

func TestVerifyRequestRejectsWrongMessageType(t *testing.T) {
	proposer := &testPartyID{id: "A", index: 1}
	_, _, _, err := VerifyRequest(Accept(proposer, "session-1"))
	require.Error(t, err)
}

func TestQuorumCollectorSatisfiedAfterEnoughAccepts(t *testing.T) {
	a := &testPartyID{id: "A", index: 1}
	b := &testPartyID{id: "B", index: 2}

	q := NewQuorumCollector("session-1", 2)
	ready, err := q.Observe(Accept(a, "session-1"))
	require.NoError(t, err)
	require.False(t, ready)
	require.False(t, q.Satisfied())

	ready, err = q.Observe(Accept(b, "session-1"))
	require.NoError(t, err)
	require.True(t, ready)
	require.True(t, q.Satisfied())
}

func TestQuorumCollectorIgnoresOtherSessions(t *testing.T) {
	a := &testPartyID{id: "A", index: 1}
	q := NewQuorumCollector("session-1", 1)
	ready, err := q.Observe(Accept(a, "some-other-session"))
	require.NoError(t, err)
	require.False(t, ready)
}

func TestQuorumCollectorFailsOnReject(t *testing.T) {
	a := &testPartyID{id: "A", index: 1}
	q := NewQuorumCollector("session-1", 1)
	_, err := q.Observe(Reject(a, "session-1", "hash mismatch"))
	require.Error(t, err)
}
