package store

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testShare() *Share {
	return &Share{
		PartyIndex:      1,
		X:               big.NewInt(123456789),
		PublicKeyShares: [][2]*big.Int{{big.NewInt(1), big.NewInt(2)}},
		PX:              big.NewInt(111),
		PY:              big.NewInt(222),
		ChainCode:       []byte("0123456789abcdef0123456789abcdef"),
		CeremonyID:      "ceremony-1",
	}
}

func testMetadata() *CeremonyMetadata {
	return &CeremonyMetadata{
		CeremonyID:  "ceremony-1",
		CompletedAt: time.Unix(0, 0).UTC(),
		Participants: []Participant{
			{NodeID: "node-1", PartyIndex: 1, PublicKeyShareX: "11", PublicKeyShareY: "22"},
		},
		Threshold:    1,
		TotalParties: 3,
		PKMaster:     "02aabbcc",
		ChainCode:    "0011223344",
		Version:      1,
	}
}

func TestLocalStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("this-is-a-sufficiently-long-passphrase!")

	s, err := NewLocalStore(dir, passphrase, zerolog.Nop())
	require.NoError(t, err)

	share := testShare()
	meta := testMetadata()
	require.NoError(t, s.Save(share, meta))

	require.True(t, s.Exists())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 0, share.X.Cmp(loaded.X))
	require.Equal(t, share.CeremonyID, loaded.CeremonyID)

	loadedMeta, err := s.LoadMetadata()
	require.NoError(t, err)
	require.Equal(t, meta.CeremonyID, loadedMeta.CeremonyID)
	require.Equal(t, meta.Participants, loadedMeta.Participants)
}

func TestLocalStoreRejectsShortPassphrase(t *testing.T) {
	_, err := NewLocalStore(t.TempDir(), []byte("too-short"), zerolog.Nop())
	require.Error(t, err)
}

func TestLocalStoreWrongPassphraseFailsDecrypt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, []byte("this-is-a-sufficiently-long-passphrase!"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Save(testShare(), testMetadata()))

	wrong, err := NewLocalStore(dir, []byte("a-completely-different-long-passphrase"), zerolog.Nop())
	require.NoError(t, err)
	_, err = wrong.Load()
	require.Error(t, err)
}

func TestShareFilePermissions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, []byte("this-is-a-sufficiently-long-passphrase!"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Save(testShare(), testMetadata()))

	info, err := os.Stat(filepath.Join(dir, "share.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	metaInfo, err := os.Stat(filepath.Join(dir, "ceremony.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), metaInfo.Mode().Perm())
}

func TestKMSStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var wrappedCtx map[string]string
	kms := &KMS{
		WrapFunc: func(ctx map[string]string) (string, []byte, error) {
			wrappedCtx = ctx
			key := make([]byte, 32)
			for i := range key {
				key[i] = byte(i)
			}
			return "kms-key-1", key, nil
		},
		UnwrapFunc: func(keyID string, ctx map[string]string) ([]byte, error) {
			key := make([]byte, 32)
			for i := range key {
				key[i] = byte(i)
			}
			return key, nil
		},
	}
	s := NewKMSStore(dir, kms, zerolog.Nop())
	share := testShare()
	require.NoError(t, s.Save(share, testMetadata()))
	require.Equal(t, "ceremony-1", wrappedCtx["CeremonyId"])

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 0, share.X.Cmp(loaded.X))
}

func TestAddressCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, []byte("this-is-a-sufficiently-long-passphrase!"), zerolog.Nop())
	require.NoError(t, err)

	cache, err := s.LoadAddressCache()
	require.NoError(t, err)
	require.Empty(t, cache.Entries)

	cache.PKMaster = "02aabbcc"
	cache.DerivationRoot = "m/44'/60'/0'/0"
	cache.Entries["0"] = AddressEntry{
		Path:      "m/44'/60'/0'/0/0",
		Pubkey:    "02aabbcc",
		Address:   "0x0000000000000000000000000000000000001234",
		DerivedAt: time.Unix(0, 0).UTC(),
	}
	require.NoError(t, s.SaveAddressCache(cache))

	reloaded, err := s.LoadAddressCache()
	require.NoError(t, err)
	require.Equal(t, cache.Entries["0"], reloaded.Entries["0"])
}
