package curve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchnorrProveVerify(t *testing.T) {
	x, err := NewScalar()
	require.NoError(t, err)
	px, py := ScalarBaseMult(x)

	proof, err := Prove(x, px, py, "test-ctx")
	require.NoError(t, err)
	require.True(t, Verify(px, py, proof, "test-ctx"))
}

func TestSchnorrDomainSeparation(t *testing.T) {
	x, err := NewScalar()
	require.NoError(t, err)
	px, py := ScalarBaseMult(x)

	proof, err := Prove(x, px, py, "ctx-a")
	require.NoError(t, err)

	require.False(t, Verify(px, py, proof, "ctx-b"))
}

func TestSchnorrRejectsOutOfRangeS(t *testing.T) {
	x, err := NewScalar()
	require.NoError(t, err)
	px, py := ScalarBaseMult(x)

	proof, err := Prove(x, px, py, "ctx")
	require.NoError(t, err)

	proof.S = Order() // s == n is out of range
	require.False(t, Verify(px, py, proof, "ctx"))
}

func TestScalarNeverZero(t *testing.T) {
	for i := 0; i < 200; i++ {
		k, err := NewScalar()
		require.NoError(t, err)
		require.NotEqual(t, 0, k.Sign())
		require.Equal(t, -1, k.Cmp(Order()))
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	x, err := NewScalar()
	require.NoError(t, err)
	px, py := ScalarBaseMult(x)

	data, err := CompressPoint(px, py)
	require.NoError(t, err)
	require.Len(t, data, 33)

	rx, ry, err := DecompressPoint(data)
	require.NoError(t, err)
	require.Equal(t, px, rx)
	require.Equal(t, py, ry)
}
