package clean

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync/atomic"
)

// Histogram array sizes: coverage/mean-coverage/length values at or above
// these are clamped into the final bucket.
const (
	CovgArrSize     = 1000
	MeanCovgArrSize = 1000
	LenArrSize      = 1000
)

// Histograms holds the before- and after-cleaning coverage and length
// distributions gathered while iterating supernodes.
type Histograms struct {
	CovgInit, CovgCleaned         []uint64
	MeanCovgInit, MeanCovgCleaned []uint64
	LenInit, LenCleaned           []uint64
}

func newHistograms() *Histograms {
	return &Histograms{
		CovgInit:       make([]uint64, CovgArrSize),
		CovgCleaned:    make([]uint64, CovgArrSize),
		MeanCovgInit:   make([]uint64, MeanCovgArrSize),
		MeanCovgCleaned: make([]uint64, MeanCovgArrSize),
		LenInit:        make([]uint64, LenArrSize),
		LenCleaned:     make([]uint64, LenArrSize),
	}
}

// updateKmerCovgHist bumps kcovgHist at each kmer coverage in covgs,
// bumps lenHist at len(covgs), and bumps ucovgHist at the supernode's mean
// coverage -- all clamped to their array's last bucket. Returns the mean.
func updateKmerCovgHist(kcovgHist, ucovgHist, lenHist []uint64, covgs []uint32) uint64 {
	for _, c := range covgs {
		idx := uint64(c)
		if idx >= uint64(len(kcovgHist)) {
			idx = uint64(len(kcovgHist) - 1)
		}
		atomic.AddUint64(&kcovgHist[idx], 1)
	}

	ln := uint64(len(covgs))
	if ln >= uint64(len(lenHist)) {
		ln = uint64(len(lenHist) - 1)
	}
	atomic.AddUint64(&lenHist[ln], 1)

	var sum uint64
	for _, c := range covgs {
		sum += uint64(c)
	}
	mean := sum / uint64(len(covgs))
	mi := mean
	if mi >= uint64(len(ucovgHist)) {
		mi = uint64(len(ucovgHist) - 1)
	}
	atomic.AddUint64(&ucovgHist[mi], 1)
	return mean
}

// WriteCovgHistogram writes the per-kmer coverage histogram as CSV:
// Covg,NumKmers,NumSupernodeMeanCovg, trimming trailing zero rows.
func WriteCovgHistogram(w io.Writer, covgHist, meanCovgHist []uint64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Covg", "NumKmers", "NumSupernodeMeanCovg"}); err != nil {
		return err
	}
	end := len(covgHist) - 1
	for end > 2 && covgHist[end] == 0 {
		end--
	}
	for i := 1; i <= end; i++ {
		if covgHist[i] == 0 {
			continue
		}
		row := []string{
			strconv.Itoa(i),
			strconv.FormatUint(covgHist[i], 10),
			strconv.FormatUint(meanCovgHist[i], 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLenHistogram writes the supernode-length histogram as CSV:
// SupernodeKmerLength,bp,Count, where bp = kmerSize + length - 1.
func WriteLenHistogram(w io.Writer, lenHist []uint64, kmerSize int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"SupernodeKmerLength", "bp", "Count"}); err != nil {
		return err
	}
	end := len(lenHist) - 1
	for end > 1 && lenHist[end] == 0 {
		end--
	}
	if err := cw.Write([]string{"1", strconv.Itoa(kmerSize), strconv.FormatUint(lenHist[1], 10)}); err != nil {
		return err
	}
	for i := 2; i <= end; i++ {
		if lenHist[i] == 0 {
			continue
		}
		row := []string{strconv.Itoa(i), strconv.Itoa(kmerSize + i - 1), strconv.FormatUint(lenHist[i], 10)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
