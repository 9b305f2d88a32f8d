// Package clean implements coverage-based error cleaning: a gamma-model
// estimator that picks a per-kmer coverage cutoff from a coverage
// histogram, a companion supernode-coverage threshold picker, and the
// two-pass supernode marking that drives graph.GraphStore's pruner.
package clean

import (
	"math"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/cdbg/graph"
)

// PickKmerThreshold fits a gamma distribution to the low end of a kmer
// coverage histogram (assumed to be sequencing error) and returns the
// smallest coverage i whose estimated false discovery rate drops below
// fdrLimit, or -1 if no such i exists in [0, len(hist)). hist[0] must be 0
// and len(hist) must be at least 10 (translated from Gil McVean's gamma-fit
// method).
func PickKmerThreshold(hist []uint64, fdrLimit float64) (thresh int, alpha, beta float64, err error) {
	if len(hist) < 10 {
		return -1, 0, 0, errors.E("clean: coverage histogram must have length >= 10")
	}
	if !(0 < fdrLimit && fdrLimit < 1) {
		return -1, 0, 0, errors.E("clean: fdrLimit must be in (0,1)")
	}
	if hist[0] != 0 {
		return -1, 0, 0, errors.E("clean: histogram must have H[0] == 0")
	}

	r1 := float64(hist[2]) / float64(hist[1])
	r2 := float64(hist[3]) / float64(hist[2])
	rr := r2 / r1

	minAEstIdx := 0
	minAEst := math.MaxFloat64
	for i := 1; i <= 200; i++ {
		aa := float64(i) * 0.01
		faa := math.Gamma(aa) * math.Gamma(aa+2) / (2 * math.Pow(math.Gamma(aa+1), 2))
		if tmp := math.Abs(faa - rr); tmp < minAEst {
			minAEst, minAEstIdx = tmp, i
		}
	}

	aEst := float64(minAEstIdx) * 0.01
	bEst := math.Gamma(aEst+1.0)/(r1*math.Gamma(aEst)) - 1.0
	if bEst < 1e-6 {
		bEst = 1e-6 // avoid negative beta
	}
	c0 := float64(hist[1]) * math.Pow(bEst/(1+bEst), -aEst)

	logBEst := math.Log(bEst)
	logOnePlusBEst := math.Log(1 + bEst)
	lgammaAEst, _ := math.Lgamma(aEst)

	// Buckets 0 and 1 are evaluated but can never be picked: H[0] == 0 makes
	// FDR(0) NaN, and E(1) reduces to H[1], so FDR(1) is 1 up to rounding.
	fdr := 2.0
	i := 0
	for ; i < len(hist); i++ {
		lgI, _ := math.Lgamma(float64(i))
		lgAPlusIMinus1, _ := math.Lgamma(aEst + float64(i) - 1)
		eCov := aEst*logBEst - lgammaAEst - lgI + lgAPlusIMinus1 - (aEst+float64(i)-1)*logOnePlusBEst
		eCovC0 := math.Exp(eCov) * c0
		fdr = 1.0 - (float64(hist[i]) - eCovC0)/float64(hist[i])
		if fdr < fdrLimit {
			break
		}
	}
	if fdr < fdrLimit {
		return i, aEst, bEst, nil
	}
	return -1, aEst, bEst, nil
}

// EstimateKmerThreshold runs PickKmerThreshold with an escalating FDR
// limit, starting at 0.001 and multiplying by 10 each retry, until a
// threshold is found or the limit reaches 1.
func EstimateKmerThreshold(hist []uint64) (thresh int, fdrUsed, alpha, beta float64, err error) {
	fdr := 0.001
	for fdr < 1 {
		t, a, b, e := PickKmerThreshold(hist, fdr)
		if e != nil {
			return -1, fdr, a, b, e
		}
		if t >= 0 {
			return t, fdr, a, b, nil
		}
		fdr *= 10
	}
	return -1, fdr, 0, 0, nil
}

// PickSupernodeThreshold derives a coverage cutoff for whole supernodes
// from a histogram of supernode mean coverages, using finite-difference
// ratios rather than the gamma model (the kmer-level model doesn't hold at
// supernode granularity). seqDepth, if <= 0, is estimated from g's total
// coverage divided by its kmer count.
func PickSupernodeThreshold(covgHist []uint64, seqDepth float64, g *graph.GraphStore) (int, error) {
	if len(covgHist) <= 5 {
		return 0, errors.E("clean: supernode coverage histogram too short")
	}
	numKmers := g.Table.CountKmers()
	if numKmers == 0 {
		return 0, errors.E("clean: graph has no kmers")
	}

	seqDepthEst := float64(g.TotalCovg()) / float64(numKmers)
	if seqDepth <= 0 {
		seqDepth = seqDepthEst
	}

	fallbackThresh := int(math.Max(1, (seqDepth+1)/2))

	d1len := len(covgHist) - 2
	delta1 := make([]float64, d1len)
	for i := 0; i < d1len; i++ {
		delta1[i] = float64(covgHist[i+1]+1) / float64(covgHist[i+2]+1)
	}

	d2len := d1len - 1
	if d1len <= 2 {
		return fallbackThresh, nil
	}

	delta2 := make([]float64, d2len)
	for i := 0; i < d2len; i++ {
		delta2[i] = delta1[i] / delta1[i+1]
	}

	f1 := 0
	for f1 < d1len && delta1[f1] >= 1 {
		f1++
	}
	f2 := 0
	for f2 < d2len && delta2[f2] > 1 {
		f2++
	}

	switch {
	case f1 < d1len && float64(f1) < seqDepth*0.75:
		return f1 + 1, nil
	case f2 < d2len:
		return f2 + 1, nil
	default:
		return fallbackThresh + 1, nil
	}
}
