package hybrid

import (
	"testing"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, err := curve.NewScalar()
	require.NoError(t, err)
	pubX, pubY := curve.ScalarBaseMult(priv)

	plaintext := []byte("a shamir share, encoded as big-endian bytes")
	ciphertext, err := Encrypt(pubX, pubY, plaintext)
	require.NoError(t, err)

	got, err := Decrypt(priv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	priv, err := curve.NewScalar()
	require.NoError(t, err)
	pubX, pubY := curve.ScalarBaseMult(priv)

	ciphertext, err := Encrypt(pubX, pubY, []byte("secret"))
	require.NoError(t, err)

	wrongPriv, err := curve.NewScalar()
	require.NoError(t, err)
	_, err = Decrypt(wrongPriv, ciphertext)
	require.Error(t, err)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	priv, err := curve.NewScalar()
	require.NoError(t, err)
	pubX, pubY := curve.ScalarBaseMult(priv)

	ciphertext, err := Encrypt(pubX, pubY, []byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(priv, ciphertext)
	require.Error(t, err)
}
