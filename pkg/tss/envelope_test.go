package tss

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type envelopePayload struct {
	Foo string `json:"foo"`
}

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	now := time.Now()
	env, err := NewEnvelope(TypeSignRequest, envelopePayload{Foo: "bar"}, now, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, env.Validate(now))

	var out envelopePayload
	require.NoError(t, env.Unmarshal(&out))
	require.Equal(t, "bar", out.Foo)
}

func TestEnvelopeRejectsStaleTimestamp(t *testing.T) {
	sent := time.Now().Add(-31 * time.Second)
	env, err := NewEnvelope(TypeSignRequest, envelopePayload{Foo: "bar"}, sent, []byte{0x01})
	require.NoError(t, err)

	err = env.Validate(time.Now())
	require.Error(t, err)
}

func TestEnvelopeAcceptsTimestampWithinWindow(t *testing.T) {
	sent := time.Now().Add(-29 * time.Second)
	env, err := NewEnvelope(TypeSignRequest, envelopePayload{Foo: "bar"}, sent, []byte{0x01})
	require.NoError(t, err)

	require.NoError(t, env.Validate(time.Now()))
}

func TestEnvelopeRejectsFutureTimestamp(t *testing.T) {
	sent := time.Now().Add(31 * time.Second)
	env, err := NewEnvelope(TypeSignRequest, envelopePayload{Foo: "bar"}, sent, []byte{0x01})
	require.NoError(t, err)

	err = env.Validate(time.Now())
	require.Error(t, err)
}
