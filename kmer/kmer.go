// Package kmer implements BinaryKmer: a fixed-width, 2-bit-per-base packed
// encoding of a short DNA sequence, its canonical form, and a stable hash
// over it.
//
// A Packed value always belongs to a particular k (word count is a
// function of k, not stored per value) -- callers that mix kmers of
// different k must track k themselves, the way a khash.Table does for all
// the kmers it holds.
package kmer

import (
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

// MaxK is the largest supported kmer length.
const MaxK = 255

// MinK is the smallest supported kmer length.
const MinK = 3

// MaxWords is the number of 64-bit words needed to hold MaxK bases.
const MaxWords = (MaxK*2 + 63) / 64

// Base is a 2-bit nucleotide code: A=0, C=1, G=2, T=3.
type Base uint8

const (
	A Base = 0
	C Base = 1
	G Base = 2
	T Base = 3
)

var baseToChar = [4]byte{'A', 'C', 'G', 'T'}

// charToBase maps an ASCII byte to its Base code, or 0xff if the byte isn't
// one of ACGTacgt.
var charToBase [256]uint8

func init() {
	for i := range charToBase {
		charToBase[i] = 0xff
	}
	charToBase['A'], charToBase['a'] = uint8(A), uint8(A)
	charToBase['C'], charToBase['c'] = uint8(C), uint8(C)
	charToBase['G'], charToBase['g'] = uint8(G), uint8(G)
	charToBase['T'], charToBase['t'] = uint8(T), uint8(T)
}

// Complement returns the Watson-Crick complement of b.
func (b Base) Complement() Base { return 3 - b }

// Packed is a BinaryKmer: k bases, 2 bits each, packed across Words() 64-bit
// words. Word 0 holds the most significant bits, so comparing the word
// arrays of two Packed values of the same k with standard unsigned integer
// comparison, word by word starting at 0, reproduces ASCII lexicographic
// order on the decoded strings.
type Packed struct {
	words [MaxWords]uint64
	k     int
}

// WordsForK returns the number of 64-bit words required to hold a kmer of
// length k.
func WordsForK(k int) int { return (k*2 + 63) / 64 }

// K returns the kmer length this value was built for.
func (p Packed) K() int { return p.k }

// Words returns the number of words actually in use for p.K().
func (p Packed) Words() int { return WordsForK(p.k) }

// topMask zeroes the unused high bits of the most significant word, which
// occur whenever k*2 isn't a multiple of 64.
func topMask(k int) uint64 {
	bits := k * 2
	wc := WordsForK(k)
	used := bits - (wc-1)*64
	if used >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(used)) - 1
}

func (p *Packed) mask() {
	wc := p.Words()
	p.words[0] &= topMask(p.k)
	for i := wc; i < MaxWords; i++ {
		p.words[i] = 0
	}
}

// FromString builds a Packed value from an ASCII DNA string of length k.
// Returns an error if len(s) != k, k is out of [MinK,MaxK], or s contains a
// byte other than ACGTacgt.
func FromString(s string, k int) (Packed, error) {
	var p Packed
	if k < MinK || k > MaxK {
		return p, errors.Errorf("kmer: k=%d out of range [%d,%d]", k, MinK, MaxK)
	}
	if len(s) != k {
		return p, errors.Errorf("kmer: len(%q)=%d != k=%d", s, len(s), k)
	}
	p.k = k
	for i := 0; i < k; i++ {
		b := charToBase[s[i]]
		if b == 0xff {
			return Packed{}, errors.Errorf("kmer: invalid base %q at position %d", s[i], i)
		}
		p.pushLow(Base(b))
	}
	return p, nil
}

// String decodes p back to an ASCII DNA string.
func (p Packed) String() string {
	var sb strings.Builder
	sb.Grow(p.k)
	for i := 0; i < p.k; i++ {
		sb.WriteByte(baseToChar[p.GetBase(i)])
	}
	return sb.String()
}

// GetBase returns the base at position i (0-based, from the start of the
// kmer).
func (p Packed) GetBase(i int) Base {
	// Bases are stored most-significant-first: position i from the start is
	// stored (k-1-i) bases from the end.
	bitPos := (p.k - 1 - i) * 2
	word := p.Words() - 1 - bitPos/64
	shift := uint(bitPos % 64)
	return Base((p.words[word] >> shift) & 3)
}

// SetBase overwrites the base at position i.
func (p *Packed) SetBase(i int, b Base) {
	bitPos := (p.k - 1 - i) * 2
	word := p.Words() - 1 - bitPos/64
	shift := uint(bitPos % 64)
	p.words[word] &^= 3 << shift
	p.words[word] |= uint64(b&3) << shift
}

// pushLow shifts the whole packed value left by 2 bits (across word
// boundaries) and ORs b into the newly vacated low bits -- i.e. appends b to
// the end of the kmer, dropping nothing (the caller is responsible for
// having enough room; used only while building up to k bases).
func (p *Packed) pushLow(b Base) {
	wc := p.Words()
	for i := 0; i < wc; i++ {
		var carryIn uint64
		if i+1 < wc {
			carryIn = p.words[i+1] >> 62
		}
		p.words[i] = (p.words[i] << 2) | carryIn
	}
	p.words[wc-1] |= uint64(b & 3)
	p.mask()
}

// ShiftAdd slides the kmer window forward by one base: drops the first
// base, appends b at the end. Used to extend a kmer while walking a
// sequence.
func (p Packed) ShiftAdd(b Base) Packed {
	out := p
	out.pushLow(b)
	return out
}

// Prepend slides the kmer window backward by one base: drops the last
// base, inserts b at the front.
func (p Packed) Prepend(b Base) Packed {
	out := p
	wc := out.Words()
	for i := wc - 1; i >= 0; i-- {
		var carryIn uint64
		if i > 0 {
			carryIn = out.words[i-1] << 62
		}
		out.words[i] = (out.words[i] >> 2) | carryIn
	}
	out.SetBase(0, b)
	out.mask()
	return out
}

// ReverseComplement returns the reverse complement of p.
func (p Packed) ReverseComplement() Packed {
	var out Packed
	out.k = p.k
	for i := 0; i < p.k; i++ {
		// Base i of p, complemented, becomes base (k-1-i) of out.
		out.SetBase(p.k-1-i, p.GetBase(i).Complement())
	}
	return out
}

// compareWords compares the used words of a and b (same k), most
// significant word first.
func compareWords(a, b Packed) int {
	wc := a.Words()
	for i := 0; i < wc; i++ {
		if a.words[i] < b.words[i] {
			return -1
		}
		if a.words[i] > b.words[i] {
			return 1
		}
	}
	return 0
}

// Canonical returns (canonical form, wasReverseComplemented). The canonical
// form is the lexicographically smaller of p and its reverse complement;
// palindromes are their own canonical form and report wasRC=false (forward
// orientation).
func Canonical(p Packed) (Packed, bool) {
	rc := p.ReverseComplement()
	if compareWords(rc, p) < 0 {
		return rc, true
	}
	return p, false
}

// Hash64 returns a stable, endian-neutral hash of p, suitable for bucket
// selection in a concurrent hash table. Two Packed values that decode to
// the same kmer (same k, same bases) always hash identically regardless of
// platform.
func Hash64(p Packed) uint64 {
	wc := p.Words()
	buf := make([]byte, wc*8)
	for i := 0; i < wc; i++ {
		w := p.words[i]
		// Little-endian byte order keeps the hash reproducible across
		// platforms regardless of native word endianness.
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(w >> uint(j*8))
		}
	}
	return farm.Hash64WithSeed(buf, uint64(p.k))
}

// FromWords builds a Packed value directly from a word slice (most
// significant word first) and a kmer length -- used by khash.Table to
// reconstruct a kmer from its flat backing array without re-parsing ASCII.
func FromWords(words []uint64, k int) Packed {
	var p Packed
	p.k = k
	copy(p.words[:WordsForK(k)], words)
	return p
}

// CopyWords writes p's words (most significant word first) into dst, which
// must have length >= p.Words().
func (p Packed) CopyWords(dst []uint64) {
	copy(dst, p.words[:p.Words()])
}

// Compare returns -1, 0, or 1 as a's bases are lexicographically less than,
// equal to, or greater than b's (same k required).
func Compare(a, b Packed) int { return compareWords(a, b) }

// Equal reports whether a and b hold the same k and the same bases.
func Equal(a, b Packed) bool {
	if a.k != b.k {
		return false
	}
	return compareWords(a, b) == 0
}
