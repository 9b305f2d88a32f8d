package graphfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"

	"github.com/grailbio/cdbg/graph"
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
	"github.com/grailbio/cdbg/loadstats"
)

func testHeader(k, numColors int) *Header {
	h := &Header{
		WordsPerKmer: uint32(kmer.WordsForK(k)),
		KmerSize:     uint32(k),
		Colors:       make([]ColorInfo, numColors),
	}
	for i := range h.Colors {
		h.Colors[i].SampleName = "sample"
	}
	return h
}

func buildGraph(t *testing.T, k, numColors int, seqs []string) *graph.GraphStore {
	t.Helper()
	tbl := khash.New(k, 1000)
	g := graph.New(tbl, numColors)
	for color, seq := range seqs {
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
	return g
}

func TestSaveThenProbeRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	g := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)

	path := filepath.Join(tempDir, "out.ctx")
	n, err := Save(ctx, path, g, hdr)
	require.NoError(t, err)
	assert.EqualValues(t, g.Table.CountKmers(), n)

	probed, err := Probe(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, k, probed.KmerSize)
	assert.Equal(t, 1, probed.NumColors())
	assert.Equal(t, "sample", probed.Colors[0].SampleName)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	src := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)

	path := filepath.Join(tempDir, "out.ctx")
	_, err := Save(ctx, path, src, hdr)
	require.NoError(t, err)

	dstTbl := khash.New(k, 1000)
	dst := graph.New(dstTbl, 1)
	stats := &loadstats.LoadingStats{}
	require.NoError(t, Load(ctx, path, dst, LoadPrefs{}, stats))

	assert.EqualValues(t, src.Table.CountKmers(), dst.Table.CountKmers())
	assert.EqualValues(t, src.Table.CountKmers(), stats.NumKmersLoaded)

	src.Table.Iterate(func(key khash.Key) {
		p := src.Table.Kmer(key)
		dstKey := dst.Table.Find(p)
		require.NotEqual(t, khash.NoKey, dstKey)
		assert.Equal(t, src.CovgAt(key, 0), dst.CovgAt(dstKey, 0))
		assert.Equal(t, src.Edges(key, 0), dst.Edges(dstKey, 0))
	})
}

func TestLoadBooleanCovgsClampsToOne(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	src := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGT"})
	// Add one more to every kmer's coverage so that each source kmer carries
	// coverage above 1 (the periodic sequence already repeats its kmers).
	src.Table.Iterate(func(key khash.Key) { src.CovgAdd(key, 0, 1) })
	hdr := testHeader(k, 1)
	path := filepath.Join(tempDir, "out.ctx")
	_, err := Save(ctx, path, src, hdr)
	require.NoError(t, err)

	dstTbl := khash.New(k, 1000)
	dst := graph.New(dstTbl, 1)
	stats := &loadstats.LoadingStats{}
	require.NoError(t, Load(ctx, path, dst, LoadPrefs{BooleanCovgs: true}, stats))

	dst.Table.Iterate(func(key khash.Key) {
		assert.EqualValues(t, 1, dst.CovgAt(key, 0))
	})
}

func TestLoadMustExistInGraphSkipsAbsentKmers(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	src := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)
	path := filepath.Join(tempDir, "out.ctx")
	_, err := Save(ctx, path, src, hdr)
	require.NoError(t, err)

	dstTbl := khash.New(k, 1000)
	dst := graph.New(dstTbl, 1)
	stats := &loadstats.LoadingStats{}
	require.NoError(t, Load(ctx, path, dst, LoadPrefs{MustExistInGraph: true}, stats))

	assert.EqualValues(t, 0, dst.Table.CountKmers(), "no kmers pre-existed in dst, all should be skipped")
}

func TestLoadEmptyColoursErrorsOnExistingCoverage(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	src := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)
	path := filepath.Join(tempDir, "out.ctx")
	_, err := Save(ctx, path, src, hdr)
	require.NoError(t, err)

	stats := &loadstats.LoadingStats{}
	require.NoError(t, Load(ctx, path, src, LoadPrefs{}, stats), "loading into src itself should succeed without EmptyColours")

	err = Load(ctx, path, src, LoadPrefs{EmptyColours: true}, stats)
	assert.Error(t, err)
}

func TestMergeUnionsKmersAndSumsCoverage(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	seqA := "ACGTACGTACGTACGTACGTACGT"
	seqB := "TTTTACGTACGTACGTACGTACGT"

	gA := buildGraph(t, k, 1, []string{seqA})
	gB := buildGraph(t, k, 1, []string{seqB})
	hdr := testHeader(k, 1)

	pathA := filepath.Join(tempDir, "a.ctx")
	pathB := filepath.Join(tempDir, "b.ctx")
	_, err := Save(ctx, pathA, gA, hdr)
	require.NoError(t, err)
	_, err = Save(ctx, pathB, gB, hdr)
	require.NoError(t, err)

	outPath := filepath.Join(tempDir, "merged.ctx")
	require.NoError(t, Merge(ctx, outPath, []string{pathA, pathB}, nil, "intersection"))

	merged, err := Probe(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, "intersection", merged.Colors[0].CleanedAgainstName)

	mergedTbl := khash.New(k, 1000)
	mergedGraph := graph.New(mergedTbl, 1)
	stats := &loadstats.LoadingStats{}
	require.NoError(t, Load(ctx, outPath, mergedGraph, LoadPrefs{}, stats))

	pA, err := kmer.FromString(seqA[:k], k)
	require.NoError(t, err)
	canonA, _ := kmer.Canonical(pA)
	keyA := mergedGraph.Table.Find(canonA)
	require.NotEqual(t, khash.NoKey, keyA)
	assert.EqualValues(t, 2, mergedGraph.CovgAt(keyA, 0), "kmer shared by both inputs' overlapping suffix/prefix should sum covg")
}

func TestStreamFilterCopiesEveryRecord(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	g := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)
	inPath := filepath.Join(tempDir, "in.ctx")
	wantN, err := Save(ctx, inPath, g, hdr)
	require.NoError(t, err)

	outPath := filepath.Join(tempDir, "out.ctx")
	n, err := StreamFilter(ctx, outPath, inPath, nil, hdr, nil)
	require.NoError(t, err)
	assert.EqualValues(t, wantN, n)

	in, err := Probe(ctx, inPath)
	require.NoError(t, err)
	out, err := Probe(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, in.KmerSize, out.KmerSize)
}

func TestStreamFilterDropsKmersNotInGraph(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	const k = 15
	full := buildGraph(t, k, 1, []string{"ACGTACGTACGTACGTACGTACGT"})
	hdr := testHeader(k, 1)
	inPath := filepath.Join(tempDir, "in.ctx")
	_, err := Save(ctx, inPath, full, hdr)
	require.NoError(t, err)

	emptyTbl := khash.New(k, 1000)
	empty := graph.New(emptyTbl, 1)

	outPath := filepath.Join(tempDir, "out.ctx")
	n, err := StreamFilter(ctx, outPath, inPath, empty, hdr, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "no kmer from in.ctx exists in the empty filter graph")
}
