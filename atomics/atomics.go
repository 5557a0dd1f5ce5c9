// Package atomics provides the bit-manipulation and hashing primitives the
// rest of the runtime is built on: locked and unlocked bitfield operations,
// bit-scanning, population count, integer log2, and a deterministic
// multiplicative hash (spec.md §4.A).
//
// Sub-word atomic load/store and compare-and-swap are not reimplemented
// here: Go's sync/atomic types (atomic.Uint32, atomic.Uint64, ...) already
// provide sequentially-consistent, tearing-free access, and — unlike the
// reference implementation's target C environment — self-align 64-bit
// fields on 32-bit hosts, so the address-hashed bit-spinlock table the
// original uses to protect 64-bit words on 32-bit CPUs has no Go
// equivalent need (see DESIGN.md).
package atomics

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// wordBits is the width, in bits, of one bitmap word.
const wordBits = 64

// BitSet is a fixed-size bitmap whose words are independently addressable
// with atomic.Uint64, so locked bit operations on distinct words never
// contend with each other.
type BitSet struct {
	words []atomic.Uint64
}

// NewBitSet allocates a BitSet able to hold at least n bits.
func NewBitSet(n int) *BitSet {
	if n < 0 {
		panic("atomics: negative bitset size")
	}
	return &BitSet{words: make([]atomic.Uint64, (n+wordBits-1)/wordBits)}
}

// Len returns the number of addressable bits.
func (b *BitSet) Len() int { return len(b.words) * wordBits }

func (b *BitSet) locate(bit int) (word int, mask uint64) {
	return bit / wordBits, 1 << uint(bit%wordBits)
}

// Set atomically sets bit, and returns the previous value.
func (b *BitSet) Set(bit int) (old bool) {
	w, mask := b.locate(bit)
	for {
		v := b.words[w].Load()
		if v&mask != 0 {
			return true
		}
		if b.words[w].CompareAndSwap(v, v|mask) {
			return false
		}
	}
}

// Clear atomically clears bit, and returns the previous value.
func (b *BitSet) Clear(bit int) (old bool) {
	w, mask := b.locate(bit)
	for {
		v := b.words[w].Load()
		if v&mask == 0 {
			return false
		}
		if b.words[w].CompareAndSwap(v, v&^mask) {
			return true
		}
	}
}

// Change atomically flips bit, and returns the previous value.
func (b *BitSet) Change(bit int) (old bool) {
	w, mask := b.locate(bit)
	for {
		v := b.words[w].Load()
		nv := v ^ mask
		if b.words[w].CompareAndSwap(v, nv) {
			return v&mask != 0
		}
	}
}

// Test reads bit without modifying it.
func (b *BitSet) Test(bit int) bool {
	w, mask := b.locate(bit)
	return b.words[w].Load()&mask != 0
}

// SetUnlocked sets bit without synchronization; callers must already hold
// exclusive access to the containing word (e.g. a spinlock).
func (b *BitSet) SetUnlocked(bit int) (old bool) {
	w, mask := b.locate(bit)
	v := b.words[w].Load()
	b.words[w].Store(v | mask)
	return v&mask != 0
}

// ClearUnlocked clears bit without synchronization.
func (b *BitSet) ClearUnlocked(bit int) (old bool) {
	w, mask := b.locate(bit)
	v := b.words[w].Load()
	b.words[w].Store(v &^ mask)
	return v&mask != 0
}

// FindFirstBit returns the index of the first set bit at or after start, or
// -1 if none is set.
func (b *BitSet) FindFirstBit(start int) int {
	if start < 0 {
		start = 0
	}
	w := start / wordBits
	if w >= len(b.words) {
		return -1
	}
	v := b.words[w].Load() &^ (1<<uint(start%wordBits) - 1)
	for {
		if v != 0 {
			return w*wordBits + TrailingZeros64(v)
		}
		w++
		if w >= len(b.words) {
			return -1
		}
		v = b.words[w].Load()
	}
}

// FindFirstZeroBit returns the index of the first clear bit at or after
// start, or -1 if all bits from start are set.
func (b *BitSet) FindFirstZeroBit(start int) int {
	if start < 0 {
		start = 0
	}
	w := start / wordBits
	if w >= len(b.words) {
		return -1
	}
	v := ^b.words[w].Load() &^ (1<<uint(start%wordBits) - 1)
	for {
		if v != 0 {
			return w*wordBits + TrailingZeros64(v)
		}
		w++
		if w >= len(b.words) {
			return -1
		}
		v = ^b.words[w].Load()
	}
}

// TrailingZeros64 counts trailing zero bits in v (PopCount-adjacent
// bit-scan primitive; 64 if v == 0).
func TrailingZeros64(v uint64) int {
	if v == 0 {
		return 64
	}
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

// PopCount64 returns the number of set bits in v.
func PopCount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

// Unsigned is any built-in unsigned integer type.
type Unsigned interface {
	constraints.Unsigned
}

// Log2 returns floor(log2(v)), or -1 if v == 0. It is the inverse of "order"
// in the buddy allocator: a run of 2^k pages has Log2(k-run-size) == k.
func Log2[T Unsigned](v T) int {
	if v == 0 {
		return -1
	}
	n := -1
	for v != 0 {
		v >>= 1
		n++
	}
	return n
}

// HashLong computes a deterministic multiplicative hash of x, folded down
// to the low `bits` bits. Matches the Knuth multiplicative-hash constant
// used throughout the reference implementation's bit-wait and futex-shim
// hash tables.
func HashLong(x uint64, bits uint) uint64 {
	const goldenRatio64 = 0x61c8864680b583eb
	h := x * goldenRatio64
	if bits >= 64 {
		return h
	}
	return h >> (64 - bits)
}
