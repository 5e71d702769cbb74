// Package hamt implements the width-256 HAMT and per-revision-changelog
// Versioned Map of spec.md §4.4: a hash array mapped trie keyed on the
// SHA-256 digest of the key's bytes, one byte (8 bits) consumed per level,
// with inline-value clustering and collapse-on-delete so that equal logical
// contents always produce equal root hashes regardless of mutation history.
package hamt

import "math/bits"

// Bitfield tracks which of a node's 256 child slots (one per possible byte
// value at this trie depth) are occupied. Adapted from the popcount-based
// sparse indexing already used for MMR peak bookkeeping, generalized from a
// 64-bit peak map to four 64-bit words covering 256 positions, and from the
// structure of original_source/rust/noosphere-collections/src/hamt/bitfield.rs.
type Bitfield struct {
	Words [4]uint64 `cbor:"w"`
}

// Test reports whether slot idx (0-255) is occupied.
func (b Bitfield) Test(idx int) bool {
	word, bit := idx/64, uint(idx%64)
	return b.Words[word]&(uint64(1)<<bit) != 0
}

// Set marks slot idx occupied.
func (b *Bitfield) Set(idx int) {
	word, bit := idx/64, uint(idx%64)
	b.Words[word] |= uint64(1) << bit
}

// Clear marks slot idx unoccupied.
func (b *Bitfield) Clear(idx int) {
	word, bit := idx/64, uint(idx%64)
	b.Words[word] &^= uint64(1) << bit
}

// Rank returns the number of occupied slots strictly below idx: the index
// into a node's Pointers slice (which holds exactly one entry per occupied
// slot, in ascending slot order) that idx's pointer lives at, whether or not
// idx itself is currently occupied.
func (b Bitfield) Rank(idx int) int {
	word, bit := idx/64, uint(idx%64)
	count := 0
	for w := 0; w < word; w++ {
		count += bits.OnesCount64(b.Words[w])
	}
	if bit > 0 {
		mask := (uint64(1) << bit) - 1
		count += bits.OnesCount64(b.Words[word] & mask)
	}
	return count
}

// Count returns the total number of occupied slots.
func (b Bitfield) Count() int {
	n := 0
	for _, w := range b.Words {
		n += bits.OnesCount64(w)
	}
	return n
}
