// Package graphfile implements the binary .ctx graph file format: header
// read/write, one-kmer-at-a-time record read/write, and the probe/load/
// merge/stream-filter/save operations built on top of them.
package graphfile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic is the fixed 6-byte marker that opens and closes every .ctx file.
const Magic = "CORTEX"

// Version is the only graph file format version this package reads or
// writes.
const Version uint32 = 6

// ErrUnsupportedVersion is wrapped by ReadHeader's error when a header's
// version field is not Version.
var ErrUnsupportedVersion = errors.New("graphfile: unsupported version")

// byteOrder is little-endian throughout: spec.md fixes the choice per
// format version without naming one explicitly, and every other
// fixed-width integer in this codebase (khash buckets, kmer words) is
// already host/little-endian, so the on-disk format follows suit.
var byteOrder = binary.LittleEndian

// ColorInfo is one color's metadata block. sample_name and
// cleaned_against_name are length-prefixed with a uint32 -- the header
// doesn't name a width for these, so this mirrors every other length field
// in the header.
type ColorInfo struct {
	MeanReadLength uint32
	TotalSequence  uint64
	SampleName     string
	SeqErrorRate   float64

	IsTipClippingApplied         bool
	HasLowCovgSupernodesRemoved  bool
	HasLowCovgKmersRemoved       bool
	IsGraphCleaned               bool
	LowCovgSupernodesThresh      uint32
	LowCovgKmerThresh            uint32
	CleanedAgainstName           string
}

// Header is a .ctx file's header: format metadata plus one ColorInfo block
// per color in the file.
type Header struct {
	WordsPerKmer uint32
	KmerSize     uint32
	Colors       []ColorInfo
}

func (h *Header) NumColors() int { return len(h.Colors) }

func readMagic(r io.Reader) error {
	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "graphfile: reading magic")
	}
	if string(buf) != Magic {
		return errors.Errorf("graphfile: bad magic %q", buf)
	}
	return nil
}

func writeMagic(w io.Writer) error {
	_, err := w.Write([]byte(Magic))
	return errors.Wrap(err, "graphfile: writing magic")
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, byteOrder, &v)
	return v, errors.Wrap(err, "graphfile: reading uint32")
}

func writeUint32(w io.Writer, v uint32) error {
	return errors.Wrap(binary.Write(w, byteOrder, v), "graphfile: writing uint32")
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, byteOrder, &v)
	return v, errors.Wrap(err, "graphfile: reading uint64")
}

func writeUint64(w io.Writer, v uint64) error {
	return errors.Wrap(binary.Write(w, byteOrder, v), "graphfile: writing uint64")
}

func readFloat64(r io.Reader) (float64, error) {
	var v float64
	err := binary.Read(r, byteOrder, &v)
	return v, errors.Wrap(err, "graphfile: reading float64")
}

func writeFloat64(w io.Writer, v float64) error {
	return errors.Wrap(binary.Write(w, byteOrder, v), "graphfile: writing float64")
}

func readBool(r io.Reader) (bool, error) {
	var v uint8
	if err := binary.Read(r, byteOrder, &v); err != nil {
		return false, errors.Wrap(err, "graphfile: reading bool")
	}
	return v != 0, nil
}

func writeBool(w io.Writer, v bool) error {
	var b uint8
	if v {
		b = 1
	}
	return errors.Wrap(binary.Write(w, byteOrder, b), "graphfile: writing bool")
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "graphfile: reading length-prefixed string")
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return errors.Wrap(err, "graphfile: writing length-prefixed string")
}

func readColorInfo(r io.Reader) (ColorInfo, error) {
	var c ColorInfo
	var err error
	if c.MeanReadLength, err = readUint32(r); err != nil {
		return c, err
	}
	if c.TotalSequence, err = readUint64(r); err != nil {
		return c, err
	}
	if c.SampleName, err = readString(r); err != nil {
		return c, err
	}
	if c.SeqErrorRate, err = readFloat64(r); err != nil {
		return c, err
	}
	if c.IsTipClippingApplied, err = readBool(r); err != nil {
		return c, err
	}
	if c.HasLowCovgSupernodesRemoved, err = readBool(r); err != nil {
		return c, err
	}
	if c.HasLowCovgKmersRemoved, err = readBool(r); err != nil {
		return c, err
	}
	if c.IsGraphCleaned, err = readBool(r); err != nil {
		return c, err
	}
	if c.LowCovgSupernodesThresh, err = readUint32(r); err != nil {
		return c, err
	}
	if c.LowCovgKmerThresh, err = readUint32(r); err != nil {
		return c, err
	}
	if c.CleanedAgainstName, err = readString(r); err != nil {
		return c, err
	}
	return c, nil
}

func writeColorInfo(w io.Writer, c ColorInfo) error {
	if err := writeUint32(w, c.MeanReadLength); err != nil {
		return err
	}
	if err := writeUint64(w, c.TotalSequence); err != nil {
		return err
	}
	if err := writeString(w, c.SampleName); err != nil {
		return err
	}
	if err := writeFloat64(w, c.SeqErrorRate); err != nil {
		return err
	}
	if err := writeBool(w, c.IsTipClippingApplied); err != nil {
		return err
	}
	if err := writeBool(w, c.HasLowCovgSupernodesRemoved); err != nil {
		return err
	}
	if err := writeBool(w, c.HasLowCovgKmersRemoved); err != nil {
		return err
	}
	if err := writeBool(w, c.IsGraphCleaned); err != nil {
		return err
	}
	if err := writeUint32(w, c.LowCovgSupernodesThresh); err != nil {
		return err
	}
	if err := writeUint32(w, c.LowCovgKmerThresh); err != nil {
		return err
	}
	return writeString(w, c.CleanedAgainstName)
}

// ReadHeader reads and validates a .ctx header: leading magic, version,
// word count, kmer size, color count, each color's metadata block, and the
// terminating magic. Returns UnsupportedVersion-wrapped error on a version
// mismatch.
func ReadHeader(r io.Reader) (*Header, error) {
	if err := readMagic(r); err != nil {
		return nil, err
	}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "graphfile: version %d (want %d)", version, Version)
	}

	h := &Header{}
	if h.WordsPerKmer, err = readUint32(r); err != nil {
		return nil, err
	}
	if h.KmerSize, err = readUint32(r); err != nil {
		return nil, err
	}
	numColors, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	h.Colors = make([]ColorInfo, numColors)
	for i := range h.Colors {
		if h.Colors[i], err = readColorInfo(r); err != nil {
			return nil, errors.Wrapf(err, "graphfile: reading color %d", i)
		}
	}

	if err := readMagic(r); err != nil {
		return nil, errors.Wrap(err, "graphfile: terminating magic")
	}
	return h, nil
}

// WriteHeader writes h in the same layout ReadHeader expects.
func WriteHeader(w io.Writer, h *Header) error {
	if err := writeMagic(w); err != nil {
		return err
	}
	if err := writeUint32(w, Version); err != nil {
		return err
	}
	if err := writeUint32(w, h.WordsPerKmer); err != nil {
		return err
	}
	if err := writeUint32(w, h.KmerSize); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(h.Colors))); err != nil {
		return err
	}
	for i, c := range h.Colors {
		if err := writeColorInfo(w, c); err != nil {
			return errors.Wrapf(err, "graphfile: writing color %d", i)
		}
	}
	return writeMagic(w)
}
