// Package zeroize provides a drop-zero wrapper around secret byte buffers.
package zeroize

import "math/big"

// Bytes is a byte slice that should be wiped once its secret is no longer
// needed. Zero is idempotent and safe to call on an already-wiped buffer.
type Bytes []byte

// Zero overwrites every byte of b with 0.
func (b Bytes) Zero() {
	for i := range b {
		b[i] = 0
	}
}

// Int zeroes the words backing a big.Int in place and resets it to 0.
// Callers must not retain other references to x's internal words after
// calling Int, since those words are overwritten.
func Int(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}

// Ints zeroes a slice of big.Int pointers, skipping nils.
func Ints(xs ...*big.Int) {
	for _, x := range xs {
		Int(x)
	}
}
