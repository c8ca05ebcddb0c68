// Package bip32 computes the non-hardened child-key additive tweak used
// by both DKG chain-code assembly and the signing engine's per-session
// derivation (spec.md §4.4/§4.5), grounded on the derivation arithmetic in
// _examples/other_examples' SafeMPC derivation_utils.go.
package bip32

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

// MasterSeedInfo is the HMAC key material string used to derive the
// master chain code from the DKG master public key (spec.md §4.4):
// chainCode = HMAC-SHA512("CLIRift v1", P)[32:64].
const MasterSeedInfo = "CLIRift v1"

// ChainCode derives the 32-byte chain code accompanying the DKG master
// public key.
func ChainCode(pubX, pubY *big.Int) ([]byte, error) {
	compressed, err := curve.CompressPoint(pubX, pubY)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha512.New, []byte(MasterSeedInfo))
	mac.Write(compressed)
	sum := mac.Sum(nil)
	return sum[32:64], nil
}

// ErrHardenedUnsupported is returned when a derivation path component is
// hardened; this system supports non-hardened derivation only (spec.md
// Non-goals).
var ErrHardenedUnsupported = errors.New("bip32: hardened derivation is not supported")

// ParseLastIndex extracts the final path component's non-hardened index,
// e.g. "m/44'/60'/0'/0/7" -> 7. Every other component may be hardened
// (denoted by a trailing ' or h); only the final address-index component
// must be non-hardened.
func ParseLastIndex(path string) (uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 {
		return 0, errors.New("bip32: empty derivation path")
	}
	last := parts[len(parts)-1]
	if strings.HasSuffix(last, "'") || strings.HasSuffix(last, "h") || strings.HasSuffix(last, "H") {
		return 0, ErrHardenedUnsupported
	}
	v, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Tweak computes the two-step additive tweak T for a child at address
// index idx beneath the account-level master public key (parentX,
// parentY) with chain code parentChainCode, per spec.md §4.5:
//
//	I1 = HMAC-SHA512(parentChainCode, parentPubkey ‖ be32(0))
//	intermediatePubkey = parentPubkey + IL1*G
//	I2 = HMAC-SHA512(parentChainCode, intermediatePubkey ‖ be32(idx))
//	T = (IL1 + IL2) mod n
//
// This models the standard external-chain-then-address-index non-hardened
// derivation (.../0/idx) from an account-level xpub, matching the BIP44
// path displayed by internal/crypto/ethtx.
func Tweak(parentX, parentY *big.Int, parentChainCode []byte, idx uint32) (*big.Int, error) {
	if len(parentChainCode) != 32 {
		return nil, errors.New("bip32: chain code must be 32 bytes")
	}

	il1, err := deriveIL(parentX, parentY, parentChainCode, 0)
	if err != nil {
		return nil, err
	}

	interX, interY := curve.ScalarBaseMult(il1)
	interX, interY = curve.Add(interX, interY, parentX, parentY)

	il2, err := deriveIL(interX, interY, parentChainCode, idx)
	if err != nil {
		return nil, err
	}

	t := new(big.Int).Add(il1, il2)
	return curve.Mod(t), nil
}

func deriveIL(px, py *big.Int, chainCode []byte, index uint32) (*big.Int, error) {
	compressed, err := curve.CompressPoint(px, py)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(compressed)
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], index)
	mac.Write(idxBytes[:])

	sum := mac.Sum(nil)
	il := new(big.Int).SetBytes(sum[:32])
	n := curve.Order()
	if il.Sign() == 0 || il.Cmp(n) >= 0 {
		return nil, errors.New("bip32: derived IL out of range, retry with next index")
	}
	return il, nil
}

// ChildPublicKey returns P + T*G, the derived child master public key.
func ChildPublicKey(pubX, pubY, tweak *big.Int) (x, y *big.Int) {
	tx, ty := curve.ScalarBaseMult(tweak)
	return curve.Add(pubX, pubY, tx, ty)
}

// BIP44Path formats the standard Ethereum BIP44 display path for an
// address index, matching spec.md §6.
func BIP44Path(index uint32) string {
	return "m/44'/60'/0'/0/" + strconv.FormatUint(uint64(index), 10)
}
