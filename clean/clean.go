package clean

import (
	"sync/atomic"

	"github.com/grailbio/base/log"

	"github.com/grailbio/cdbg/graph"
)

// Stats counts what a Clean pass removed, both in supernodes and in kmers.
type Stats struct {
	NumTips, NumLowCovgSupernodes, NumTipAndLowSupernodes          uint64
	NumTipKmers, NumLowCovgSupernodeKmers, NumTipAndLowSupernodeKmers uint64
}

func fetchCovgs(g *graph.GraphStore, nodes []graph.Node, color int) []uint32 {
	out := make([]uint32, len(nodes))
	for i, n := range nodes {
		out[i] = g.CovgAt(n.Hkey, color)
	}
	return out
}

// isTip reports whether nbuf's endpoints have combined union-edge degree
// <= 1, i.e. the supernode is a dead end rather than a through-path.
func isTip(g *graph.GraphStore, nodes []graph.Node) bool {
	first, last := nodes[0], nodes[len(nodes)-1]
	in := g.EdgesUnion(first.Hkey).WithOrientation(graph.Incoming, first.Orient).Popcount()
	out := g.EdgesUnion(last.Hkey).WithOrientation(graph.Outgoing, last.Orient).Popcount()
	return in+out <= 1
}

func isRemovableTip(g *graph.GraphStore, nodes []graph.Node, minKeepTip int) bool {
	return len(nodes) < minKeepTip && isTip(g, nodes)
}

// GetThreshold computes the before-cleaning coverage and length
// histograms by iterating every supernode once, then estimates a kmer
// coverage threshold from the coverage histogram via the gamma model.
func GetThreshold(g *graph.GraphStore, nthreads, color int) (threshold int, hist *Histograms, err error) {
	log.Printf("[cleaning] Calculating supernode stats with %d threads...", nthreads)
	log.Printf("[cleaning]   Using kmer gamma method")

	hist = newHistograms()
	visited := graph.NewBitset(g.Table.Capacity())
	g.SupernodesIterate(nthreads, visited, func(nodes []graph.Node, _ int) {
		covgs := fetchCovgs(g, nodes, color)
		updateKmerCovgHist(hist.CovgInit, hist.MeanCovgInit, hist.LenInit, covgs)
	})

	est, fdrUsed, alpha, beta, err := EstimateKmerThreshold(hist.CovgInit)
	if err != nil {
		return -1, hist, err
	}
	if est < 0 {
		log.Printf("[cleaning] Cannot pick a cleaning threshold")
	} else {
		log.Printf("[cleaning] FDR set to %f [alpha=%f, beta=%f]", fdrUsed, alpha, beta)
		log.Printf("[cleaning] Recommended supernode cleaning threshold: < %d", est)
	}
	return est, hist, nil
}

// Clean marks every supernode as kept or removed -- removed if its mean
// coverage is below covgThreshold, or if it is a tip shorter than
// minKeepTip -- then prunes everything not kept. A covgThreshold or
// minKeepTip of 0 disables that criterion; if both are 0, Clean is a no-op.
func Clean(g *graph.GraphStore, nthreads int, covgThreshold uint64, minKeepTip, color int) (Stats, *Histograms) {
	hist := newHistograms()
	var stats Stats

	if covgThreshold == 0 && minKeepTip == 0 {
		log.Printf("[cleaning] No cleaning specified")
		return stats, hist
	}

	if covgThreshold > 0 {
		log.Printf("[cleaning] Removing supernodes with coverage < %d...", covgThreshold)
	}
	if minKeepTip > 0 {
		log.Printf("[cleaning] Removing tips shorter than %d...", minKeepTip)
	}
	log.Printf("[cleaning]   using %d threads", nthreads)

	initKmers := g.Table.CountKmers()

	visited := graph.NewBitset(g.Table.Capacity())
	keep := graph.NewBitset(g.Table.Capacity())

	g.SupernodesIterate(nthreads, visited, func(nodes []graph.Node, _ int) {
		covgs := fetchCovgs(g, nodes, color)
		var sum uint64
		for _, c := range covgs {
			sum += uint64(c)
		}
		meanCovg := sum / uint64(len(covgs))
		lowCovg := meanCovg < covgThreshold
		tip := isRemovableTip(g, nodes, minKeepTip)

		switch {
		case lowCovg && tip:
			atomic.AddUint64(&stats.NumTipAndLowSupernodes, 1)
			atomic.AddUint64(&stats.NumTipAndLowSupernodeKmers, uint64(len(nodes)))
		case lowCovg:
			atomic.AddUint64(&stats.NumLowCovgSupernodes, 1)
			atomic.AddUint64(&stats.NumLowCovgSupernodeKmers, uint64(len(nodes)))
		case tip:
			atomic.AddUint64(&stats.NumTips, 1)
			atomic.AddUint64(&stats.NumTipKmers, uint64(len(nodes)))
		default:
			for _, n := range nodes {
				keep.Set(int(n.Hkey))
			}
			updateKmerCovgHist(hist.CovgCleaned, hist.MeanCovgCleaned, hist.LenCleaned, covgs)
		}
	})

	log.Printf("[cleaning] Removing %d low coverage supernode(s) [%d kmer(s)], "+
		"%d supernode tip(s) [%d kmer(s)] and %d of both [%d kmer(s)]",
		stats.NumLowCovgSupernodes, stats.NumLowCovgSupernodeKmers,
		stats.NumTips, stats.NumTipKmers,
		stats.NumTipAndLowSupernodes, stats.NumTipAndLowSupernodeKmers)

	g.PruneNodesLackingFlag(nthreads, keep)

	remaining := g.Table.CountKmers()
	removed := initKmers - remaining
	pct := 0.0
	if initKmers > 0 {
		pct = 100.0 * float64(removed) / float64(initKmers)
	}
	log.Printf("[cleaning] Remaining kmers: %d removed: %d (%.1f%%)", remaining, removed, pct)

	return stats, hist
}
