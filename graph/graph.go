// Package graph implements GraphStore: the per-color edge and coverage
// satellite arrays layered over a khash.Table, plus supernode traversal and
// pruning. Nodes are addressed by khash.Key throughout; the table itself
// owns kmer storage and canonicalization.
package graph

import (
	"sync/atomic"

	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
)

// Covg is a per-node, per-color coverage counter. Saturates at
// ^uint32(0) on increment and never wraps.
type Covg = uint32

// MaxCovg is the saturation ceiling for Covg.
const MaxCovg Covg = ^Covg(0)

// Node is a (hkey, orientation) pair: the address of one strand of one
// kmer in the graph.
type Node struct {
	Hkey   khash.Key
	Orient Orientation
}

// NextNode is a neighbor reached from NextNodes, paired with the base that
// was consumed to reach it (in the walk's coordinate frame).
type NextNode struct {
	Node Node
	Base kmer.Base
}

// GraphStore layers per-color edges, coverage, and color membership over a
// khash.Table. Index into the flat per-color arrays is hkey*NumColors+color.
type GraphStore struct {
	Table     *khash.Table
	NumColors int

	colEdges []Edges
	colCovgs []Covg
	inColor  *Bitset
}

// New allocates a GraphStore backed by an already-sized khash.Table.
func New(table *khash.Table, numColors int) *GraphStore {
	cap := table.Capacity()
	return &GraphStore{
		Table:     table,
		NumColors: numColors,
		colEdges:  make([]Edges, cap*numColors),
		colCovgs:  make([]Covg, cap*numColors),
		inColor:   NewBitset(cap * numColors),
	}
}

func (g *GraphStore) index(hkey khash.Key, color int) int {
	return int(hkey)*g.NumColors + color
}

// Edges returns the stored edge byte for hkey in color.
func (g *GraphStore) Edges(hkey khash.Key, color int) Edges {
	return g.colEdges[g.index(hkey, color)]
}

// EdgesUnion ORs the edge bytes for hkey across all colors -- used for
// topology queries where color is unrestricted (supernode walks, tip
// detection).
func (g *GraphStore) EdgesUnion(hkey khash.Key) Edges {
	var e Edges
	base := int(hkey) * g.NumColors
	for c := 0; c < g.NumColors; c++ {
		e |= g.colEdges[base+c]
	}
	return e
}

// AddEdge sets the edge bit for hkey, color, direction, base. OR-semantics:
// idempotent.
func (g *GraphStore) AddEdge(hkey khash.Key, color int, dir Direction, b kmer.Base) {
	idx := g.index(hkey, color)
	g.colEdges[idx] = g.colEdges[idx].Set(dir, b)
}

// AddReciprocalEdge records a directed transition from curStrand (the
// Forward-coordinate kmer at hkey, already resolved for orient) to a
// neighbor reached by appending b, by writing both this node's Outgoing bit
// and the neighbor's Incoming bit. It is the primitive for building a graph
// from a sequence one kmer transition at a time; graphfile loading sets
// stored edge bits with AddEdge instead.
func (g *GraphStore) AddReciprocalEdge(hkey khash.Key, orient Orientation, b kmer.Base, color int, neighbor khash.Key, neighborOrient Orientation) {
	sd, sb := toStored(Outgoing, b, orient)
	g.AddEdge(hkey, color, sd, sb)

	curStrand := g.Table.Kmer(hkey)
	if orient == Reverse {
		curStrand = curStrand.ReverseComplement()
	}
	rd, rb := toStored(Incoming, curStrand.GetBase(0), neighborOrient)
	g.AddEdge(neighbor, color, rd, rb)
}

// InColor reports whether hkey carries coverage in color. The bit is set by
// CovgAdd only; AddEdge does not set it.
func (g *GraphStore) InColor(hkey khash.Key, color int) bool {
	return g.inColor.Test(g.index(hkey, color))
}

// CovgAt returns the coverage for hkey in color.
func (g *GraphStore) CovgAt(hkey khash.Key, color int) Covg {
	return atomic.LoadUint32(&g.colCovgs[g.index(hkey, color)])
}

// CovgAdd saturating-adds n to hkey's coverage in color, and sets the
// in-color bit if the result is nonzero (invariant I2).
func (g *GraphStore) CovgAdd(hkey khash.Key, color int, n Covg) {
	idx := g.index(hkey, color)
	for {
		old := atomic.LoadUint32(&g.colCovgs[idx])
		sum := old + n
		if sum < old { // overflow
			sum = MaxCovg
		}
		if atomic.CompareAndSwapUint32(&g.colCovgs[idx], old, sum) {
			if sum > 0 {
				g.inColor.Set(idx)
			}
			return
		}
	}
}

// TotalCovg sums coverage across every slot and every color -- used to
// estimate mean sequencing depth when picking a supernode cleaning
// threshold.
func (g *GraphStore) TotalCovg() uint64 {
	var sum uint64
	for _, c := range g.colCovgs {
		sum += uint64(c)
	}
	return sum
}

// clearColorData zeroes hkey's edges, coverage, and in-color bits across
// every color, as the final step before the slot is freed (invariant I3).
func (g *GraphStore) clearColorData(hkey khash.Key) {
	base := int(hkey) * g.NumColors
	for c := 0; c < g.NumColors; c++ {
		g.colEdges[base+c] = 0
		atomic.StoreUint32(&g.colCovgs[base+c], 0)
		g.inColor.Clear(base + c)
	}
}

// strand returns the kmer as seen by a walk at node's orientation: the
// stored canonical kmer itself if Forward, its reverse complement if
// Reverse.
func (g *GraphStore) strand(n Node) kmer.Packed {
	bk := g.Table.Kmer(n.Hkey)
	if n.Orient == Reverse {
		return bk.ReverseComplement()
	}
	return bk
}

// NextNodes returns, in the coordinate frame of a walk currently at
// (hkey, orient), every neighbor reachable via a set outgoing edge bit of
// edges (typically EdgesUnion(hkey) for topology, or Edges(hkey,color) to
// restrict to one color). The cardinality of the result equals
// popcount(outgoing(edges, orient)) whenever every edge bit resolves to an
// existing node (invariant I1).
func (g *GraphStore) NextNodes(hkey khash.Key, orient Orientation, edges Edges) []NextNode {
	curStrand := g.strand(Node{hkey, orient})
	outBits := edges.WithOrientation(Outgoing, orient)

	var out []NextNode
	for b := kmer.Base(0); b < 4; b++ {
		if !outBits.BaseSet(b) {
			continue
		}
		next := curStrand.ShiftAdd(b)
		canon, wasRC := kmer.Canonical(next)
		key := g.Table.Find(canon)
		if key == khash.NoKey {
			continue
		}
		nOrient := Forward
		if wasRC {
			nOrient = Reverse
		}
		out = append(out, NextNode{Node: Node{Hkey: key, Orient: nOrient}, Base: b})
	}
	return out
}

// unlinkNode clears every reciprocal edge pointing at hkey, then hkey's own
// satellite data, then deletes it from the table. Preserves invariant I1:
// both sides of every edge are cleared before the slot disappears.
func (g *GraphStore) unlinkNode(hkey khash.Key) {
	union := g.EdgesUnion(hkey)
	for _, orient := range [2]Orientation{Forward, Reverse} {
		for color := 0; color < g.NumColors; color++ {
			e := g.Edges(hkey, color)
			curStrand := g.strand(Node{hkey, orient})
			outBits := e.WithOrientation(Outgoing, orient)
			for b := kmer.Base(0); b < 4; b++ {
				if !outBits.BaseSet(b) {
					continue
				}
				next := curStrand.ShiftAdd(b)
				canon, wasRC := kmer.Canonical(next)
				nKey := g.Table.Find(canon)
				if nKey == khash.NoKey {
					continue
				}
				nOrient := Forward
				if wasRC {
					nOrient = Reverse
				}
				rd, rb := toStored(Incoming, curStrand.GetBase(0), nOrient)
				g.Table.LockSlot(nKey)
				idx := g.index(nKey, color)
				g.colEdges[idx] = g.colEdges[idx].Clear(rd, rb)
				g.Table.UnlockSlot(nKey)

				sd, sb := toStored(Outgoing, b, orient)
				ownIdx := g.index(hkey, color)
				g.colEdges[ownIdx] = g.colEdges[ownIdx].Clear(sd, sb)
			}
		}
	}
	_ = union // used only to document intent above; per-color scan is authoritative
	g.clearColorData(hkey)
	g.Table.Delete(hkey)
}

// PruneNodesLackingFlag deletes every occupied node whose bit is unset in
// keep, partitioned across nthreads goroutines over the table's buckets.
func (g *GraphStore) PruneNodesLackingFlag(nthreads int, keep *Bitset) {
	g.Table.IterateMT(nthreads, func(key khash.Key, _ int) {
		if keep.Test(int(key)) {
			return
		}
		g.unlinkNode(key)
	})
}
