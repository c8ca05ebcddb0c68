// Package store implements the encrypted-at-rest persistence of a node's
// key share (spec.md §4.6): an envelope scheme wrapping AES-256-GCM under
// a data key sourced either from an external KMS or from an Argon2id
// passphrase KDF, plus the unencrypted ceremony-metadata sidecar and
// address cache. Modeled on the teacher's plain-struct JSON persistence
// idiom, extended with the AEAD construction the ECIES helper in
// wyf-ACCEPT-eth2030's pkg/crypto shows for this dependency family.
package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/clirift/threshold-wallet/internal/zeroize"
	"github.com/clirift/threshold-wallet/pkg/tss"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
)

const (
	storeVersion   = 1
	algorithmGCM   = "AES-256-GCM"
	kdfArgon2id    = "argon2id"
	saltLen        = 32
	ivLen          = 12
	gcmTagLen      = 16
	dataKeyLen     = 32
	minPassphrase  = 32
	argon2Time     = 3
	argon2Memory   = 64 * 1024 // KiB, i.e. 64 MiB
	argon2Threads  = 4
	shareFileMode  = 0o600
	sidecarMode    = 0o644
)

// Share is the persistent per-node key share (spec.md §3). PublicKeyShares
// is named per §9's flagged ambiguity: it holds each party's *intercept*
// commitment a_{i,0}·G, not x_j·G — useful for verifying peers' reported
// shares, kept under its on-the-wire name for wire compatibility.
type Share struct {
	PartyIndex      int             `json:"partyIndex"`
	X               *big.Int        `json:"x_i"`
	PublicKeyShares [][2]*big.Int   `json:"publicKeyShares"`
	PX              *big.Int        `json:"P_x"`
	PY              *big.Int        `json:"P_y"`
	ChainCode       []byte          `json:"chainCode"`
	CeremonyID      string          `json:"ceremonyId"`
}

// Zeroize clears the share's secret scalar in place.
func (s *Share) Zeroize() {
	if s == nil {
		return
	}
	zeroize.Int(s.X)
}

// Participant describes one node's public contribution in the ceremony
// metadata sidecar.
type Participant struct {
	NodeID          string `json:"nodeId"`
	PartyIndex      int    `json:"partyIndex"`
	PublicKeyShareX string `json:"publicKeyShareX"`
	PublicKeyShareY string `json:"publicKeyShareY"`
}

// CeremonyMetadata is the unencrypted sidecar (spec.md §4.6/§6). It never
// contains secret material.
type CeremonyMetadata struct {
	CeremonyID   string        `json:"ceremonyId"`
	CompletedAt  time.Time     `json:"completedAt"`
	Participants []Participant `json:"participants"`
	Threshold    int           `json:"threshold"`
	TotalParties int           `json:"totalParties"`
	PKMaster     string        `json:"pkMaster"` // 33-byte compressed hex
	ChainCode    string        `json:"chainCode"` // 32-byte hex
	Version      int           `json:"version"`
}

// AddressEntry is one derived-address record in the address cache.
type AddressEntry struct {
	Path      string    `json:"path"`
	Pubkey    string    `json:"pubkey"` // 33 bytes hex
	Address   string    `json:"address"`
	DerivedAt time.Time `json:"derivedAt"`
}

// AddressCache is the on-disk format tracking derived non-hardened child
// addresses under a master public key (spec.md §6).
type AddressCache struct {
	PKMaster       string                  `json:"pkMaster"`
	DerivationRoot string                  `json:"derivationRoot"`
	Entries        map[string]AddressEntry `json:"entries"`
}

// encryptedShareFile is the on-disk envelope-encrypted share format
// (spec.md §6).
type encryptedShareFile struct {
	Version            int               `json:"version"`
	Algorithm          string            `json:"algorithm"`
	KDF                string            `json:"kdf"`
	Salt               string            `json:"salt,omitempty"`
	EncryptedDataKey   string            `json:"encryptedDataKey,omitempty"`
	IV                 string            `json:"iv"`
	AuthTag            string            `json:"authTag"`
	Ciphertext         string            `json:"ciphertext"`
	EncryptionContext  map[string]string `json:"encryptionContext,omitempty"`
}

// KMS models the external key-management service that wraps/unwraps a
// 256-bit data key bound to an encryption context. Real network calls are
// out of scope (spec.md §1); this is the narrow interface a production
// KMS client would satisfy.
type KMS struct {
	WrapFunc   func(ctx map[string]string) (keyID string, dataKey []byte, err error)
	UnwrapFunc func(keyID string, ctx map[string]string) (dataKey []byte, err error)
}

// Mode selects which envelope-wrapping path a Store uses.
type Mode int

const (
	ModeKMS Mode = iota
	ModeLocal
)

// Store persists and loads a single node's key share, plus its ceremony
// metadata sidecar and address cache, under baseDir.
type Store struct {
	baseDir    string
	mode       Mode
	kms        *KMS
	passphrase []byte // only set in ModeLocal
	log        zerolog.Logger
}

// NewKMSStore constructs a Store that wraps data keys via an external KMS.
func NewKMSStore(baseDir string, kms *KMS, log zerolog.Logger) *Store {
	return &Store{baseDir: baseDir, mode: ModeKMS, kms: kms, log: log}
}

// NewLocalStore constructs a Store that derives its data key from a
// passphrase via Argon2id. The passphrase must be at least 32 characters
// (spec.md §4.6).
func NewLocalStore(baseDir string, passphrase []byte, log zerolog.Logger) (*Store, error) {
	if len(passphrase) < minPassphrase {
		return nil, tss.ValidationErrorf("store.NewLocalStore",
			fmt.Errorf("passphrase must be at least %d characters", minPassphrase))
	}
	cp := make([]byte, len(passphrase))
	copy(cp, passphrase)
	return &Store{baseDir: baseDir, mode: ModeLocal, passphrase: cp, log: log}, nil
}

func (s *Store) sharePath() string    { return filepath.Join(s.baseDir, "share.json") }
func (s *Store) metadataPath() string { return filepath.Join(s.baseDir, "ceremony.json") }
func (s *Store) addressPath() string  { return filepath.Join(s.baseDir, "addresses.json") }

// Save envelope-encrypts share and writes both it and metadata to disk.
// The share file is 0600; the metadata sidecar is 0644 (spec.md §4.6).
// Storage errors on save surface as StorageError (spec.md §7): the share
// has not been durably kept.
func (s *Store) Save(share *Share, metadata *CeremonyMetadata) error {
	plaintext, err := json.Marshal(share)
	if err != nil {
		return tss.StorageErrorf("store.save.marshal_share", err)
	}
	defer zeroize.Bytes(plaintext).Zero()

	encCtx := map[string]string{
		"CeremonyId": share.CeremonyID,
		"Purpose":    "keyshare",
	}

	file, err := s.encrypt(plaintext, encCtx)
	if err != nil {
		return tss.StorageErrorf("store.save.encrypt", err)
	}

	if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
		return tss.StorageErrorf("store.save.mkdir", err)
	}

	shareBytes, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return tss.StorageErrorf("store.save.marshal_envelope", err)
	}
	if err := os.WriteFile(s.sharePath(), shareBytes, shareFileMode); err != nil {
		return tss.StorageErrorf("store.save.write_share", err)
	}

	metaBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return tss.StorageErrorf("store.save.marshal_metadata", err)
	}
	if err := os.WriteFile(s.metadataPath(), metaBytes, sidecarMode); err != nil {
		return tss.StorageErrorf("store.save.write_metadata", err)
	}

	s.log.Info().Str("ceremonyId", share.CeremonyID).Int("partyIndex", share.PartyIndex).Msg("key share persisted")
	return nil
}

// Load reads and decrypts the key share. The returned Share's secret
// scalar must be zeroized by the caller when it is no longer needed.
func (s *Store) Load() (*Share, error) {
	raw, err := os.ReadFile(s.sharePath())
	if err != nil {
		return nil, tss.StorageErrorf("store.load.read_share", err)
	}

	var file encryptedShareFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, tss.StorageErrorf("store.load.unmarshal_envelope", err)
	}

	plaintext, err := s.decrypt(&file)
	if err != nil {
		return nil, tss.StorageErrorf("store.load.decrypt", err)
	}
	defer zeroize.Bytes(plaintext).Zero()

	var share Share
	if err := json.Unmarshal(plaintext, &share); err != nil {
		return nil, tss.StorageErrorf("store.load.unmarshal_share", err)
	}
	return &share, nil
}

// Exists reports whether a key share has already been persisted.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.sharePath())
	return err == nil
}

// LoadMetadata reads the unencrypted ceremony metadata sidecar.
func (s *Store) LoadMetadata() (*CeremonyMetadata, error) {
	raw, err := os.ReadFile(s.metadataPath())
	if err != nil {
		return nil, tss.StorageErrorf("store.load_metadata.read", err)
	}
	var meta CeremonyMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, tss.StorageErrorf("store.load_metadata.unmarshal", err)
	}
	return &meta, nil
}

// LoadAddressCache reads the derived-address cache, returning an empty
// cache if none exists yet.
func (s *Store) LoadAddressCache() (*AddressCache, error) {
	raw, err := os.ReadFile(s.addressPath())
	if errors.Is(err, os.ErrNotExist) {
		return &AddressCache{Entries: map[string]AddressEntry{}}, nil
	}
	if err != nil {
		return nil, tss.StorageErrorf("store.load_address_cache.read", err)
	}
	var cache AddressCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		return nil, tss.StorageErrorf("store.load_address_cache.unmarshal", err)
	}
	if cache.Entries == nil {
		cache.Entries = map[string]AddressEntry{}
	}
	return &cache, nil
}

// SaveAddressCache persists the address cache sidecar (world-readable,
// contains no secret material).
func (s *Store) SaveAddressCache(cache *AddressCache) error {
	if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
		return tss.StorageErrorf("store.save_address_cache.mkdir", err)
	}
	b, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return tss.StorageErrorf("store.save_address_cache.marshal", err)
	}
	if err := os.WriteFile(s.addressPath(), b, sidecarMode); err != nil {
		return tss.StorageErrorf("store.save_address_cache.write", err)
	}
	return nil
}

func (s *Store) encrypt(plaintext []byte, encCtx map[string]string) (*encryptedShareFile, error) {
	switch s.mode {
	case ModeKMS:
		return s.encryptKMS(plaintext, encCtx)
	case ModeLocal:
		return s.encryptLocal(plaintext)
	default:
		return nil, fmt.Errorf("store: unknown mode %d", s.mode)
	}
}

func (s *Store) decrypt(file *encryptedShareFile) ([]byte, error) {
	switch s.mode {
	case ModeKMS:
		return s.decryptKMS(file)
	case ModeLocal:
		return s.decryptLocal(file)
	default:
		return nil, fmt.Errorf("store: unknown mode %d", s.mode)
	}
}

func (s *Store) encryptKMS(plaintext []byte, encCtx map[string]string) (*encryptedShareFile, error) {
	if s.kms == nil || s.kms.WrapFunc == nil {
		return nil, errors.New("store: KMS mode requires a WrapFunc")
	}
	keyID, dataKey, err := s.kms.WrapFunc(encCtx)
	if err != nil {
		return nil, fmt.Errorf("kms wrap: %w", err)
	}
	defer zeroize.Bytes(dataKey).Zero()

	iv, ciphertext, tag, err := aesGCMSeal(dataKey, plaintext)
	if err != nil {
		return nil, err
	}

	return &encryptedShareFile{
		Version:           storeVersion,
		Algorithm:         algorithmGCM,
		KDF:               keyID,
		EncryptedDataKey:  base64.StdEncoding.EncodeToString(dataKey),
		IV:                base64.StdEncoding.EncodeToString(iv),
		AuthTag:           base64.StdEncoding.EncodeToString(tag),
		Ciphertext:        base64.StdEncoding.EncodeToString(ciphertext),
		EncryptionContext: encCtx,
	}, nil
}

func (s *Store) decryptKMS(file *encryptedShareFile) ([]byte, error) {
	if s.kms == nil || s.kms.UnwrapFunc == nil {
		return nil, errors.New("store: KMS mode requires an UnwrapFunc")
	}
	dataKey, err := s.kms.UnwrapFunc(file.KDF, file.EncryptionContext)
	if err != nil {
		return nil, fmt.Errorf("kms unwrap: %w", err)
	}
	defer zeroize.Bytes(dataKey).Zero()

	iv, err := base64.StdEncoding.DecodeString(file.IV)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Ciphertext)
	if err != nil {
		return nil, err
	}
	tag, err := base64.StdEncoding.DecodeString(file.AuthTag)
	if err != nil {
		return nil, err
	}
	return aesGCMOpen(dataKey, iv, ciphertext, tag)
}

func (s *Store) encryptLocal(plaintext []byte) (*encryptedShareFile, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	dataKey := argon2.IDKey(s.passphrase, salt, argon2Time, argon2Memory, argon2Threads, dataKeyLen)
	defer zeroize.Bytes(dataKey).Zero()

	iv, ciphertext, tag, err := aesGCMSeal(dataKey, plaintext)
	if err != nil {
		return nil, err
	}

	return &encryptedShareFile{
		Version:    storeVersion,
		Algorithm:  algorithmGCM,
		KDF:        kdfArgon2id,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (s *Store) decryptLocal(file *encryptedShareFile) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, err
	}
	dataKey := argon2.IDKey(s.passphrase, salt, argon2Time, argon2Memory, argon2Threads, dataKeyLen)
	defer zeroize.Bytes(dataKey).Zero()

	iv, err := base64.StdEncoding.DecodeString(file.IV)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Ciphertext)
	if err != nil {
		return nil, err
	}
	tag, err := base64.StdEncoding.DecodeString(file.AuthTag)
	if err != nil {
		return nil, err
	}
	return aesGCMOpen(dataKey, iv, ciphertext, tag)
}

// aesGCMSeal encrypts plaintext under key with a fresh 12-byte IV,
// returning (iv, ciphertext, tag) split apart to match the on-disk
// envelope's separate iv/authTag/ciphertext fields.
func aesGCMSeal(key, plaintext []byte) (iv, ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, gcmTagLen)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, err
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext = sealed[:len(sealed)-gcmTagLen]
	tag = sealed[len(sealed)-gcmTagLen:]
	return iv, ciphertext, tag, nil
}

func aesGCMOpen(key, iv, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, gcmTagLen)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	return gcm.Open(nil, iv, sealed, nil)
}
