package clean

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/cdbg/graph"
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
)

// cleaningTestSeq is a 1000bp synthetic reference, the same scale used to
// exercise tip removal: long enough that the whole thing is one supernode,
// short enough to build and clean instantly in a test.
const cleaningTestSeq = "" +
	"GGCTACCTAACCAGATATCTCTGTATACAGCTGCATTGTGTTTAGTCTACAACGACAGAAATCCCCTTCGACGCCCGC" +
	"GACCTCTCTTAACGGACGACGCCTTCCGGTTGCGATATCGATGGATCGACAGAACAAGCCGCTTCCCTAACAACTGCG" +
	"CATGAAATCCAAAGTGCGCCGATGCTTGCTTGACGATTCCAAATCCCCATGTGACCTGTGAAGACGACTACCGTAAGA" +
	"TGTGTCACGGGTCAGTCGCTTTTACCACCTACGGAAGGTAGACGGTTATACTCAATTATTGGCACTTTAGCTGGGCAG" +
	"GTCAAAGGGAACAAGTCTGAAGTAGATATAACCTCAGTCCTTTATACGCACGTGACCCGCGTATAATCTTGCCGGTGC" +
	"GCAACGAGGGGCTTGGATAAAACAGCTTGGGACTTATACGTTCACCCACGACCCGCCTTAGCTCAACGCTCGTAACGA" +
	"CTGAATATGAGTAACGTACCTGAGGTGGGTCCGCCTTGCGGAGGTGGTGGTTCTTACTTCTATCCTCTTGTAGAGAAA" +
	"AGAATAGGTCGTCACTAACACTCTTGTGGGGACAAACGTGTATCGATTCCCAAACGTCCGTTAGTGAATATCCTACGT" +
	"GTTCCATTCGATCACACTGGAATATGGCCTTAGTTGGCCCATCTTAGTGCGCCAAGTGTTCGCAGTGGTCGTAGGCAA" +
	"CAGGCATCGGCGGTCTAGAGTTCACGCCAAGTCGGCCGTGTGAAGTTAAGCGTAAGTGCGGGACAACAAACCGAATGT" +
	"TCCGTGGCACACATGTTCGCTTATTATCAGGTAACCCTCATCTCCAGGGAGAACGCCTCAGCAGGCTTGCACCGCTTG" +
	"TAATCCCTCCTTATCAGAAGTAATCGTCGTTGCCGAGTTAGATCATGTCGGGACGTTGCCCTCAAGACGCCCAACGGA" +
	"AAAATTCACGATAGTGGCGCTCGGGAGGAGTACGCAACTCAGCACCCCGGTGAGTAGCTCCCTT"

// snpVariant100bp carries two SNPs relative to cleaningTestSeq's first 100bp.
const snpVariant100bp = "" +
	"GGCTACCTAACCAGATATCTCTGTATcCAGCTGCATTGTGTTTAGTCTACAACGACAGAtATCCCCTTCGACGCCCGC" +
	"GACCTCTCTTAACGGACGACGC"

// snpVariant78bp carries a single SNP that creates a 5-kmer tip at k=19.
const snpVariant78bp = "GGCTACCTAACCAGATATCTCTGTATACAGCTGCATTGTGTTTAGTCTACAACGACAGAAATCCCCTTCGACGgCCGC"

func buildFromSeq(t *testing.T, g *graph.GraphStore, seq string, k, color int) {
	t.Helper()
	var prevKey khash.Key
	var prevOrient graph.Orientation
	have := false

	for i := 0; i+k <= len(seq); i++ {
		p, err := kmer.FromString(seq[i:i+k], k)
		require.NoError(t, err)
		canon, wasRC := kmer.Canonical(p)
		key, _, err := g.Table.FindOrInsert(canon)
		require.NoError(t, err)
		orient := graph.Forward
		if wasRC {
			orient = graph.Reverse
		}
		g.CovgAdd(key, color, 1)

		if have {
			b := p.GetBase(k - 1)
			g.AddReciprocalEdge(prevKey, prevOrient, b, color, key, orient)
		}
		prevKey, prevOrient, have = key, orient, true
	}
}

func TestTipRemoval1000bp(t *testing.T) {
	const k = 19
	tbl := khash.New(k, 2000)
	g := graph.New(tbl, 1)
	buildFromSeq(t, g, cleaningTestSeq, k, 0)
	require.EqualValues(t, 1000-19+1, tbl.CountKmers())

	Clean(g, 1, 0, 2, 0)
	assert.EqualValues(t, 1000-19+1, tbl.CountKmers(), "min_keep_tip=2 must not remove anything")

	Clean(g, 1, 0, 1000-19+1, 0)
	assert.EqualValues(t, 1000-19+1, tbl.CountKmers(), "min_keep_tip == supernode length must not remove it")

	Clean(g, 1, 0, 1000-19+2, 0)
	assert.EqualValues(t, 0, tbl.CountKmers(), "min_keep_tip one more than supernode length must remove everything")
}

func TestLowCoverageSupernodeCleanup(t *testing.T) {
	const k = 19
	tbl := khash.New(k, 2000)
	g := graph.New(tbl, 1)

	ref200 := cleaningTestSeq[:200]
	for i := 0; i < 3; i++ {
		buildFromSeq(t, g, ref200, k, 0)
	}
	require.EqualValues(t, 200-19+1, tbl.CountKmers())

	buildFromSeq(t, g, snpVariant100bp, k, 0)

	_, hist, err := GetThreshold(g, 1, 0)
	require.NoError(t, err)
	thresh, err := PickSupernodeThreshold(hist.MeanCovgInit, 0, g)
	require.NoError(t, err)
	assert.True(t, thresh > 1, "threshold: %d", thresh)

	Clean(g, 1, uint64(thresh), 0, 0)
	assert.EqualValues(t, 200-19+1, tbl.CountKmers())
}

func TestSNPInducedTipCleanup(t *testing.T) {
	const k = 19
	tbl := khash.New(k, 2000)
	g := graph.New(tbl, 1)

	ref200 := cleaningTestSeq[:200]
	for i := 0; i < 3; i++ {
		buildFromSeq(t, g, ref200, k, 0)
	}
	require.EqualValues(t, 200-19+1, tbl.CountKmers())

	buildFromSeq(t, g, snpVariant78bp, k, 0)
	require.EqualValues(t, 200-19+1+(23-19+1), tbl.CountKmers())

	Clean(g, 1, 0, 2*19-1, 0)
	assert.EqualValues(t, 200-19+1, tbl.CountKmers())
}

func TestGammaThresholdEstimator(t *testing.T) {
	hist := []uint64{0, 100000, 20000, 3000, 500, 200, 300, 500, 800, 1000, 1200, 900, 600, 300, 150, 80, 40, 20, 10, 5}

	thresh1, _, _, err := PickKmerThreshold(hist, 0.001)
	require.NoError(t, err)
	require.GreaterOrEqual(t, thresh1, 0, "expected a finite threshold for fdr_limit=0.001")

	thresh2, _, _, err := PickKmerThreshold(hist, 0.0001)
	require.NoError(t, err)
	if thresh2 >= 0 {
		assert.GreaterOrEqual(t, thresh2, thresh1, "threshold must be monotone non-decreasing as fdr_limit decreases")
	}
}
