package graphfile

import (
	"io"

	"github.com/pkg/errors"
)

// Record is one kmer's worth of data read from or about to be written to a
// .ctx file: the kmer itself (as raw words, word order/count per the
// header), one coverage per color, and one edge byte per color.
type Record struct {
	KmerWords []uint64
	Covgs     []uint32
	Edges     []uint8
}

// ReadRecord reads one kmer record: h.WordsPerKmer words of kmer bits,
// len(h.Colors) coverages, then len(h.Colors) edge bytes. Returns io.EOF
// (unwrapped, checkable with ==) if the stream ends cleanly before this
// record starts; any other short read is a truncated-record error.
func ReadRecord(r io.Reader, h *Header) (*Record, error) {
	words := make([]uint64, h.WordsPerKmer)
	for i := range words {
		v, err := readUint64(r)
		if err != nil {
			if i == 0 && errors.Cause(err) == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "graphfile: truncated kmer record (kmer words)")
		}
		words[i] = v
	}

	numColors := len(h.Colors)
	covgs := make([]uint32, numColors)
	for i := range covgs {
		v, err := readUint32(r)
		if err != nil {
			return nil, errors.Wrap(err, "graphfile: truncated kmer record (coverages)")
		}
		covgs[i] = v
	}

	edges := make([]uint8, numColors)
	for i := range edges {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errors.Wrap(err, "graphfile: truncated kmer record (edges)")
		}
		edges[i] = b[0]
	}

	return &Record{KmerWords: words, Covgs: covgs, Edges: edges}, nil
}

// WriteRecord writes rec in the layout ReadRecord expects.
func WriteRecord(w io.Writer, rec *Record) error {
	for _, word := range rec.KmerWords {
		if err := writeUint64(w, word); err != nil {
			return errors.Wrap(err, "graphfile: writing kmer word")
		}
	}
	for _, c := range rec.Covgs {
		if err := writeUint32(w, c); err != nil {
			return errors.Wrap(err, "graphfile: writing coverage")
		}
	}
	for _, e := range rec.Edges {
		if _, err := w.Write([]byte{e}); err != nil {
			return errors.Wrap(err, "graphfile: writing edges")
		}
	}
	return nil
}
