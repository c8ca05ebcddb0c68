// Package paillier implements the additively homomorphic Paillier
// cryptosystem used by the signing engine's MtA sub-protocol.
package paillier

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"

	"github.com/clirift/threshold-wallet/internal/crypto/curve"
)

var one = big.NewInt(1)

// DefaultBits is the modulus bit length used by the signing engine, per
// spec.md §4.2: a fresh 1024-bit keypair is generated per signing session
// and destroyed on session end.
const DefaultBits = 1024

// minModulus is 2^1022, the smallest acceptable peer-reported modulus,
// enforced by Validate per invariant I5.
var minModulus = new(big.Int).Lsh(one, 1022)

// PublicKey is a Paillier public key (N, N²).
type PublicKey struct {
	N  *big.Int
	N2 *big.Int
}

// PrivateKey is a Paillier private key (λ, μ) plus its public half.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int
}

// GenerateKey generates a Paillier keypair with the given modulus bit
// length. bits must be at least 1024. Candidate primes are produced by
// crypto/rand.Prime, which rejection-samples odd candidates with the top
// and bottom bits set and runs Miller-Rabin (≥20 rounds), matching
// spec.md §4.2.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < 1024 {
		return nil, errors.New("paillier: bits must be at least 1024")
	}

	p, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	q, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	for p.Cmp(q) == 0 {
		q, err = rand.Prime(random, bits/2)
		if err != nil {
			return nil, err
		}
	}

	n := new(big.Int).Mul(p, q)
	n2 := new(big.Int).Mul(n, n)

	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)

	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Mul(pMinus1, qMinus1)
	lambda.Div(lambda, gcd)

	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, errors.New("paillier: failed to compute modular inverse for mu")
	}

	return &PrivateKey{
		PublicKey: PublicKey{N: n, N2: n2},
		Lambda:    lambda,
		Mu:        mu,
	}, nil
}

// KeyGenResult carries the outcome of an asynchronous GenerateKeyAsync call.
type KeyGenResult struct {
	Key *PrivateKey
	Err error
}

// GenerateKeyAsync runs GenerateKey on its own goroutine so the signing
// coordinator's cooperative event loop is not blocked. Per spec.md §5,
// this is the longest-lived suspension point in Round 1: the caller
// selects on the returned channel alongside inbound peer messages and
// merges whichever arrives last. Cancelling ctx does not abort the prime
// search itself (crypto/rand.Prime has no cancellation hook) but stops
// the goroutine from blocking on a send nobody will receive.
func GenerateKeyAsync(ctx context.Context, bits int) <-chan KeyGenResult {
	out := make(chan KeyGenResult, 1)
	go func() {
		defer close(out)
		key, err := GenerateKey(rand.Reader, bits)
		select {
		case out <- KeyGenResult{Key: key, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

// Validate enforces invariant I5 on a peer-reported modulus: odd,
// N >= 2^1022, gcd(N, curveOrder) = 1, and N is not a perfect square.
// Every peer-received modulus must pass Validate before any MtA use.
func Validate(n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return errors.New("paillier: modulus is nil or non-positive")
	}
	if n.Bit(0) == 0 {
		return errors.New("paillier: modulus is even")
	}
	if n.Cmp(minModulus) < 0 {
		return errors.New("paillier: modulus smaller than 2^1022")
	}
	if new(big.Int).GCD(nil, nil, n, curve.Order()).Cmp(one) != 0 {
		return errors.New("paillier: modulus shares a factor with the curve order")
	}
	if isPerfectSquare(n) {
		return errors.New("paillier: modulus is a perfect square")
	}
	return nil
}

func isPerfectSquare(n *big.Int) bool {
	root := new(big.Int).Sqrt(n)
	square := new(big.Int).Mul(root, root)
	return square.Cmp(n) == 0
}

// Encrypt encrypts m in [0, N) with a fresh random nonce, returning the
// ciphertext and the nonce used (some ZK proofs need the nonce; unused
// here but kept for parity with the teacher's API).
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, *big.Int, error) {
	if m.Sign() == -1 || m.Cmp(pk.N) >= 0 {
		return nil, nil, errors.New("paillier: message m must be in range [0, n)")
	}
	r, err := rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, nil, err
	}
	if r.Sign() == 0 {
		r = big.NewInt(1)
	}
	c, err := pk.EncryptWithNonce(m, r)
	if err != nil {
		return nil, nil, err
	}
	return c, r, nil
}

// EncryptWithNonce encrypts m using a specific random nonce r:
// c = (1 + N*m) * r^N mod N².
func (pk *PublicKey) EncryptWithNonce(m, r *big.Int) (*big.Int, error) {
	if m.Sign() == -1 || m.Cmp(pk.N) >= 0 {
		return nil, errors.New("paillier: message m must be in range [0, n)")
	}
	gm := new(big.Int).Mul(pk.N, m)
	gm.Add(gm, one)

	rn := new(big.Int).Exp(r, pk.N, pk.N2)

	c := new(big.Int).Mul(gm, rn)
	c.Mod(c, pk.N2)
	return c, nil
}

// Decrypt decrypts ciphertext c: m = L(c^λ mod N²) * μ mod N, where
// L(x) = (x-1)/N.
func (priv *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if err := priv.PublicKey.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	u := new(big.Int).Exp(c, priv.Lambda, priv.N2)
	l := new(big.Int).Sub(u, one)
	l.Div(l, priv.N)

	m := new(big.Int).Mul(l, priv.Mu)
	m.Mod(m, priv.N)
	return m, nil
}

// Add homomorphically adds two ciphertexts: E(m1)*E(m2) = E(m1+m2).
func (pk *PublicKey) Add(c1, c2 *big.Int) *big.Int {
	c := new(big.Int).Mul(c1, c2)
	return c.Mod(c, pk.N2)
}

// Mul homomorphically scales a ciphertext by a plaintext scalar:
// E(m)^k = E(m*k).
func (pk *PublicKey) Mul(c1, k *big.Int) *big.Int {
	return new(big.Int).Exp(c1, k, pk.N2)
}

// MtA computes the multiplicative-to-additive response ciphertext
// Enc(plaintext(c)*mult + beta), per spec.md §4.2. Callers must Validate
// pk.N and range-check c before calling MtA.
func (pk *PublicKey) MtA(c, mult, beta *big.Int) (*big.Int, error) {
	if err := pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	r, err := rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, err
	}
	if r.Sign() == 0 {
		r = big.NewInt(1)
	}
	encBeta, err := pk.EncryptWithNonce(new(big.Int).Mod(beta, pk.N), r)
	if err != nil {
		return nil, err
	}
	term := pk.Mul(c, mult)
	return pk.Add(term, encBeta), nil
}

// ValidateCiphertext checks that c lies in [1, N²), per spec.md §4.2:
// "all ciphertexts consumed must lie in [1, N²); violation is fatal."
func (pk *PublicKey) ValidateCiphertext(c *big.Int) error {
	if c == nil || c.Sign() <= 0 || c.Cmp(pk.N2) >= 0 {
		return errors.New("paillier: ciphertext out of range [1, n^2)")
	}
	return nil
}
