package graph

import (
	"math/bits"

	"github.com/grailbio/cdbg/kmer"
)

// Direction distinguishes the two nibbles of an Edges byte.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) opposite() Direction {
	if d == Incoming {
		return Outgoing
	}
	return Incoming
}

// Orientation distinguishes which strand of a stored canonical kmer a walk
// is currently looking at.
type Orientation int

const (
	Forward Orientation = iota
	Reverse
)

// Opposite flips the orientation.
func (o Orientation) Opposite() Orientation {
	if o == Forward {
		return Reverse
	}
	return Forward
}

// Edges is the per-node, per-color edge byte: low nibble is incoming edges
// indexed by preceding base, high nibble is outgoing edges indexed by
// following base.
type Edges uint8

func bitIndex(dir Direction, b kmer.Base) uint {
	return uint(dir)*4 + uint(b)
}

// Has reports whether the edge in direction dir for base b is set.
func (e Edges) Has(dir Direction, b kmer.Base) bool {
	return e&(1<<bitIndex(dir, b)) != 0
}

// Set returns e with the edge in direction dir for base b set.
func (e Edges) Set(dir Direction, b kmer.Base) Edges {
	return e | (1 << bitIndex(dir, b))
}

// Clear returns e with the edge in direction dir for base b cleared.
func (e Edges) Clear(dir Direction, b kmer.Base) Edges {
	return e &^ (1 << bitIndex(dir, b))
}

// toStored maps a (direction, base) pair expressed in the coordinate frame
// of a walk at the given orientation back to the coordinate frame the edge
// byte is actually stored in (i.e. relative to the node's canonical,
// Forward-oriented kmer). Looking at a node from Reverse swaps incoming and
// outgoing and complements the base, since the walk is then reading the
// opposite strand.
func toStored(dir Direction, b kmer.Base, orient Orientation) (Direction, kmer.Base) {
	if orient == Forward {
		return dir, b
	}
	return dir.opposite(), b.Complement()
}

// WithOrientation resolves e's dir nibble as seen by a walk at orient: bit b
// of the result is set iff the stored edge for the corresponding (possibly
// complemented, possibly nibble-swapped) base is set. The result packs one
// bit per base at position int(b), independent of dir.
func (e Edges) WithOrientation(dir Direction, orient Orientation) Edges {
	var out Edges
	for b := kmer.Base(0); b < 4; b++ {
		sd, sb := toStored(dir, b, orient)
		if e.Has(sd, sb) {
			out |= 1 << uint(b)
		}
	}
	return out
}

// BaseSet reports whether bit b is set in a value produced by
// WithOrientation (or any other base-indexed nibble).
func (e Edges) BaseSet(b kmer.Base) bool { return e&(1<<uint(b)) != 0 }

// Popcount returns the number of set bits.
func (e Edges) Popcount() int { return bits.OnesCount8(uint8(e)) }
