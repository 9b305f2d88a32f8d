package graphfile

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/grailbio/base/file"

	"github.com/grailbio/cdbg/graph"
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
	"github.com/grailbio/cdbg/loadstats"
)

// Probe reads and validates path's header only, without touching any
// GraphStore. Used to discover kmer size / color count before allocating a
// table sized to hold the file.
func Probe(ctx context.Context, path string) (*Header, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "graphfile: opening %s", path)
	}
	defer f.Close(ctx)

	h, err := ReadHeader(f.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "graphfile: probing %s", path)
	}
	return h, nil
}

// LoadPrefs controls how load maps a file's colors onto a GraphStore's
// colors and how strictly it enforces the destination's existing state.
// Mirrors GraphLoadingPrefs.
type LoadPrefs struct {
	// ColorMap maps file color i to destination color ColorMap[i]. If nil,
	// file color i loads into destination color i (identity).
	ColorMap []int

	// BooleanCovgs clamps every added coverage to at most 1 per kmer per
	// color, rather than summing raw coverage values.
	BooleanCovgs bool

	// MustExistInGraph skips any record whose kmer is not already present
	// in the destination table, instead of inserting it.
	MustExistInGraph bool

	// MustExistInEdges, if non-nil, masks every loaded edge byte against
	// *MustExistInEdges before it is OR'd into the destination.
	MustExistInEdges *graph.Edges

	// EmptyColours makes it an error for a loaded kmer to already carry
	// coverage in its destination color.
	EmptyColours bool
}

func (p LoadPrefs) mapColor(fileColor int) int {
	if p.ColorMap == nil {
		return fileColor
	}
	return p.ColorMap[fileColor]
}

// ErrColorNotEmpty is returned by Load when EmptyColours is set and a loaded
// kmer already carries coverage in its destination color.
var ErrColorNotEmpty = errors.New("graphfile: kmer already has coverage in destination color")

// Load reads every record from path into g, applying prefs, and tallies
// stats. The file's kmer size must match g.Table.K(); the caller is
// responsible for sizing g's table from a prior Probe.
func Load(ctx context.Context, path string, g *graph.GraphStore, prefs LoadPrefs, stats *loadstats.LoadingStats) error {
	f, err := file.Open(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "graphfile: opening %s", path)
	}
	defer f.Close(ctx)

	r := f.Reader(ctx)
	h, err := ReadHeader(r)
	if err != nil {
		return errors.Wrapf(err, "graphfile: reading header of %s", path)
	}
	if int(h.KmerSize) != g.Table.K() {
		return errors.Errorf("graphfile: %s has kmer size %d, graph wants %d", path, h.KmerSize, g.Table.K())
	}

	for {
		rec, err := ReadRecord(r, h)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "graphfile: reading %s", path)
		}

		p := kmer.FromWords(rec.KmerWords, int(h.KmerSize))
		key := g.Table.Find(p)
		novel := key == khash.NoKey
		if novel {
			if prefs.MustExistInGraph {
				continue
			}
			key, _, err = g.Table.FindOrInsert(p)
			if err != nil {
				return errors.Wrapf(err, "graphfile: inserting kmer from %s", path)
			}
		}

		for c := 0; c < h.NumColors(); c++ {
			covg := rec.Covgs[c]
			if covg == 0 {
				continue
			}
			dst := prefs.mapColor(c)
			if prefs.EmptyColours && g.CovgAt(key, dst) != 0 {
				return errors.Wrapf(ErrColorNotEmpty, "graphfile: %s color %d -> %d", path, c, dst)
			}
			add := covg
			if prefs.BooleanCovgs {
				add = 1
			}
			g.CovgAdd(key, dst, add)

			edges := graph.Edges(rec.Edges[c])
			if prefs.MustExistInEdges != nil {
				edges &= *prefs.MustExistInEdges
			}
			for dir := graph.Incoming; dir <= graph.Outgoing; dir++ {
				for b := kmer.Base(0); b < 4; b++ {
					if edges.Has(dir, b) {
						g.AddEdge(key, dst, dir, b)
					}
				}
			}
		}

		stats.AddContig(uint64(h.KmerSize), 1)
		stats.AddKmerLoaded(novel)
	}
	return nil
}

// headerWithIntersectName returns a copy of merged with cleaned_against_name
// style bookkeeping for the merge's intersection name recorded on every
// color, matching graph_reader_merge_headers's intersect_gname handling.
func headerWithIntersectName(merged *Header, intersectName string) *Header {
	if intersectName == "" {
		return merged
	}
	out := *merged
	out.Colors = make([]ColorInfo, len(merged.Colors))
	copy(out.Colors, merged.Colors)
	for i := range out.Colors {
		out.Colors[i].CleanedAgainstName = intersectName
	}
	return &out
}

// Merge reads every file in paths, unions their kmer sets, sums per-color
// coverage and ORs per-color edges (masked by onlyLoadIfInEdges if
// non-nil) into a fresh in-memory table, then writes the result to outPath
// with header.NumColors() equal to paths[0]'s color count. All input files
// must share the same kmer size and color count.
func Merge(ctx context.Context, outPath string, paths []string, onlyLoadIfInEdges *graph.Edges, intersectName string) (err error) {
	if len(paths) == 0 {
		return errors.New("graphfile: merge requires at least one input file")
	}

	headers := make([]*Header, len(paths))
	for i, p := range paths {
		if headers[i], err = Probe(ctx, p); err != nil {
			return err
		}
	}
	k := int(headers[0].KmerSize)
	numColors := headers[0].NumColors()
	for i, h := range headers[1:] {
		if int(h.KmerSize) != k {
			return errors.Errorf("graphfile: merge: %s has kmer size %d, want %d", paths[i+1], h.KmerSize, k)
		}
		if h.NumColors() != numColors {
			return errors.Errorf("graphfile: merge: %s has %d colors, want %d", paths[i+1], h.NumColors(), numColors)
		}
	}

	table := khash.New(k, 1<<16)
	g := graph.New(table, numColors)
	stats := &loadstats.LoadingStats{}

	for i, p := range paths {
		prefs := LoadPrefs{MustExistInEdges: onlyLoadIfInEdges}
		if err := Load(ctx, p, g, prefs, stats); err != nil {
			return errors.Wrapf(err, "graphfile: merge: loading %s", paths[i])
		}
	}

	out := headerWithIntersectName(headers[0], intersectName)
	out.WordsPerKmer = uint32(kmer.WordsForK(k))
	_, err = Save(ctx, outPath, g, out)
	return err
}

// StreamFilter copies inPath's records to outPath one at a time, without
// loading them into g first. If g is non-nil, a record is emitted only if
// its kmer is already present in g (single-pass intersection filter); edges
// are masked by onlyLoadIfInEdges when non-nil. Returns the number of
// records written.
func StreamFilter(ctx context.Context, outPath, inPath string, g *graph.GraphStore, hdr *Header, onlyLoadIfInEdges *graph.Edges) (n int, err error) {
	in, err := file.Open(ctx, inPath)
	if err != nil {
		return 0, errors.Wrapf(err, "graphfile: opening %s", inPath)
	}
	defer in.Close(ctx)
	r := in.Reader(ctx)

	inHdr, err := ReadHeader(r)
	if err != nil {
		return 0, errors.Wrapf(err, "graphfile: reading header of %s", inPath)
	}

	out, err := file.Create(ctx, outPath)
	if err != nil {
		return 0, errors.Wrapf(err, "graphfile: creating %s", outPath)
	}
	defer func() {
		if cerr := out.Close(ctx); err == nil {
			err = cerr
		}
	}()
	w := out.Writer(ctx)

	if err := WriteHeader(w, hdr); err != nil {
		return 0, errors.Wrapf(err, "graphfile: writing header of %s", outPath)
	}

	for {
		rec, rerr := ReadRecord(r, inHdr)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return n, errors.Wrapf(rerr, "graphfile: reading %s", inPath)
		}

		if g != nil {
			p := kmer.FromWords(rec.KmerWords, int(inHdr.KmerSize))
			if g.Table.Find(p) == khash.NoKey {
				continue
			}
		}
		if onlyLoadIfInEdges != nil {
			for i, e := range rec.Edges {
				rec.Edges[i] = uint8(graph.Edges(e) & *onlyLoadIfInEdges)
			}
		}
		if werr := WriteRecord(w, rec); werr != nil {
			return n, errors.Wrapf(werr, "graphfile: writing %s", outPath)
		}
		n++
	}
	return n, nil
}

// Save writes header, then one record per occupied slot of g's table, in
// table-iteration order (§5 O1: not guaranteed to match any input order).
// Returns the number of records written.
func Save(ctx context.Context, path string, g *graph.GraphStore, header *Header) (uint64, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "graphfile: creating %s", path)
	}
	defer f.Close(ctx)
	w := f.Writer(ctx)

	if err := WriteHeader(w, header); err != nil {
		return 0, errors.Wrapf(err, "graphfile: writing header of %s", path)
	}

	wordsPerKmer := int(header.WordsPerKmer)
	numColors := header.NumColors()

	var n uint64
	var writeErr error
	g.Table.Iterate(func(key khash.Key) {
		if writeErr != nil {
			return
		}
		p := g.Table.Kmer(key)
		words := make([]uint64, wordsPerKmer)
		p.CopyWords(words)

		covgs := make([]uint32, numColors)
		edges := make([]uint8, numColors)
		for c := 0; c < numColors; c++ {
			covgs[c] = g.CovgAt(key, c)
			edges[c] = uint8(g.Edges(key, c))
		}

		if err := WriteRecord(w, &Record{KmerWords: words, Covgs: covgs, Edges: edges}); err != nil {
			writeErr = err
			return
		}
		n++
	})
	if writeErr != nil {
		return n, errors.Wrapf(writeErr, "graphfile: writing records to %s", path)
	}
	return n, nil
}
