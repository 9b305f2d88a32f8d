package graph

import (
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
)

// extendForward walks from start, using the union-of-colors graph, while
// the current node has exactly one outgoing edge, the next node has
// exactly one incoming edge, and the next node's kmer is not already on
// the path. Returns the path including start.
func (g *GraphStore) extendForward(start Node) []Node {
	path := []Node{start}
	cur := start
	for {
		union := g.EdgesUnion(cur.Hkey)
		nexts := g.NextNodes(cur.Hkey, cur.Orient, union)
		if len(nexts) != 1 {
			break
		}
		next := nexts[0].Node

		nUnion := g.EdgesUnion(next.Hkey)
		inBits := nUnion.WithOrientation(Incoming, next.Orient)
		if inBits.Popcount() != 1 {
			break
		}
		onPath := false
		for _, n := range path {
			if n.Hkey == next.Hkey {
				onPath = true
				break
			}
		}
		if onPath {
			// Closed a cycle, or a hairpin onto the other strand of a kmer
			// already walked; stop before adding that kmer a second time.
			break
		}
		path = append(path, next)
		cur = next
	}
	return path
}

// SupernodeFrom computes the maximal unambiguous path (in the union-of-
// colors graph) containing seed, returned in a single canonical
// orientation: the one where the first node's strand sequence is
// lexicographically no greater than the reverse complement of the last
// node's strand sequence.
func (g *GraphStore) SupernodeFrom(seed khash.Key) []Node {
	fwd := g.extendForward(Node{seed, Forward})
	bwd := g.extendForward(Node{seed, Reverse})

	full := make([]Node, 0, len(fwd)+len(bwd)-1)
	for i := len(bwd) - 1; i >= 1; i-- {
		n := bwd[i]
		full = append(full, Node{n.Hkey, n.Orient.Opposite()})
	}
	full = append(full, fwd...)

	firstKmer := g.strand(full[0])
	lastRC := g.strand(full[len(full)-1]).ReverseComplement()
	if kmer.Compare(firstKmer, lastRC) > 0 {
		full = reverseAndFlip(full)
	}
	return full
}

func reverseAndFlip(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = Node{n.Hkey, n.Orient.Opposite()}
	}
	return out
}

// SupernodesIterate visits every supernode in the graph exactly once,
// partitioning the table's buckets across nthreads goroutines. visited
// deduplicates: ownership of a supernode is claimed via a test-and-set on
// the minimum hkey among its nodes, which is the same regardless of which
// node first discovers it, so two goroutines racing to build the same
// supernode from different seeds still only emit it once.
func (g *GraphStore) SupernodesIterate(nthreads int, visited *Bitset, fn func(nodes []Node, threadID int)) {
	g.Table.IterateMT(nthreads, func(key khash.Key, tid int) {
		if visited.Test(int(key)) {
			return
		}
		nodes := g.SupernodeFrom(key)

		minKey := nodes[0].Hkey
		for _, n := range nodes {
			if n.Hkey < minKey {
				minKey = n.Hkey
			}
		}
		if visited.TestAndSet(int(minKey)) {
			return
		}
		for _, n := range nodes {
			visited.Set(int(n.Hkey))
		}
		fn(nodes, tid)
	})
}
