package ethtx

import (
	"math/big"
	"testing"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func sampleTx() *RawTx {
	to := common.HexToAddress("0x00000000000000000000000000000000001234")
	return &RawTx{
		ChainID:   big.NewInt(1),
		Nonce:     5,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(50_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1_000_000_000_000_000_000),
		Data:      nil,
	}
}

func TestHashDeterministic(t *testing.T) {
	tx := sampleTx()
	h1 := tx.Hash()
	h2 := sampleTx().Hash()
	require.Equal(t, h1, h2)
}

func TestHashChangesWithField(t *testing.T) {
	tx := sampleTx()
	h1 := tx.Hash()
	tx.Nonce = 6
	h2 := tx.Hash()
	require.NotEqual(t, h1, h2)
}

func TestVerifyTxHash(t *testing.T) {
	tx := sampleTx()
	h := tx.Hash()
	require.NoError(t, VerifyTxHash(tx, common.Bytes2Hex(h[:])))

	tx2 := sampleTx()
	tx2.Nonce = 99
	require.Error(t, VerifyTxHash(tx2, common.Bytes2Hex(h[:])))
}

func TestAddressIsChecksummed(t *testing.T) {
	d, err := curve.NewScalar()
	require.NoError(t, err)
	px, py := curve.ScalarBaseMult(d)

	addr, err := Address(px, py)
	require.NoError(t, err)
	require.True(t, common.IsHexAddress(addr))
	require.Equal(t, common.HexToAddress(addr).Hex(), addr)
}

func TestAddressFromCompressedMatchesAddress(t *testing.T) {
	d, err := curve.NewScalar()
	require.NoError(t, err)
	px, py := curve.ScalarBaseMult(d)

	compressed, err := curve.CompressPoint(px, py)
	require.NoError(t, err)

	want, err := Address(px, py)
	require.NoError(t, err)
	got, err := AddressFromCompressed(compressed)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
