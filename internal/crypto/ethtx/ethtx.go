// Package ethtx implements the bit-exact EIP-1559 transaction hash
// derivation and EIP-55 address checksumming used to validate SIGN_REQUEST
// payloads and to derive signer addresses (spec.md §6), built directly on
// go-ethereum's rlp/crypto/core-types stack rather than a hand-rolled RLP
// encoder.
package ethtx

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// RawTx mirrors the EIP-1559 fields spec.md §6 names:
// {chainId, nonce, maxPriorityFeePerGas, maxFeePerGas, gas, to, value,
// data, accessList=[]}.
type RawTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int // maxPriorityFeePerGas
	GasFeeCap  *big.Int // maxFeePerGas
	Gas        uint64
	To         *common.Address // nil for contract creation
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList
}

// Hash returns keccak256(0x02 ‖ RLP(list)), the EIP-1559 signing hash,
// matching the go-ethereum London signer's sigHash exactly.
func (tx *RawTx) Hash() [32]byte {
	ethTx := types.NewTx(&types.DynamicFeeTx{
		ChainID:    tx.ChainID,
		Nonce:      tx.Nonce,
		GasTipCap:  tx.GasTipCap,
		GasFeeCap:  tx.GasFeeCap,
		Gas:        tx.Gas,
		To:         tx.To,
		Value:      tx.Value,
		Data:       tx.Data,
		AccessList: tx.AccessList,
	})
	signer := types.NewLondonSigner(tx.ChainID)
	return signer.Hash(ethTx)
}

// VerifyTxHash recomputes RawTx's signing hash and compares it against a
// claimed 32-byte hash (hex, no 0x prefix), returning an error on
// mismatch. Every potential signer runs this on SIGN_REQUEST receipt and
// declines the request on mismatch, per spec.md §4.5/§6.
func VerifyTxHash(tx *RawTx, claimedHashHex string) error {
	got := tx.Hash()
	claimed, err := decodeHash(claimedHashHex)
	if err != nil {
		return err
	}
	if got != claimed {
		return errors.New("ethtx: recomputed txHash does not match SIGN_REQUEST claim")
	}
	return nil
}

func decodeHash(hexStr string) ([32]byte, error) {
	var out [32]byte
	b := common.FromHex("0x" + hexStr)
	if len(b) != 32 {
		return out, errors.New("ethtx: txHash must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// Address derives the EIP-55 checksummed address for a secp256k1 public
// key point (Px, Py): decompress to 65 bytes, drop the 0x04 prefix,
// keccak256 the remaining 64 bytes, and take the last 20 bytes.
func Address(pubX, pubY *big.Int) (string, error) {
	if pubX == nil || pubY == nil {
		return "", errors.New("ethtx: nil public key point")
	}
	pub := ecdsa.PublicKey{Curve: crypto.S256(), X: pubX, Y: pubY}
	addr := crypto.PubkeyToAddress(pub)
	return addr.Hex(), nil // common.Address.Hex applies EIP-55 checksumming
}

// AddressFromCompressed derives the EIP-55 address from a 33-byte
// compressed secp256k1 point, matching how the on-disk address cache
// stores pubkeys (spec.md §6).
func AddressFromCompressed(compressed []byte) (string, error) {
	x, y, err := curve.DecompressPoint(compressed)
	if err != nil {
		return "", err
	}
	return Address(x, y)
}
