// Package loadstats tracks read- and kmer-loading statistics across the
// files that feed a GraphStore: how many reads/kmers were seen, how many
// were actually novel, how many bases were read versus kept.
package loadstats

import (
	"sync/atomic"

	"github.com/grailbio/base/log"
)

// LoadingStats accumulates counters for one loading pass. Every field is
// updated with sync/atomic so a single LoadingStats can be shared across
// the goroutines loading different input files concurrently.
type LoadingStats struct {
	NumSEReads, NumPEReads                 uint64
	NumGoodReads, NumBadReads               uint64
	NumDupSEReads, NumDupPEPairs            uint64
	TotalBasesRead, TotalBasesLoaded        uint64
	ContigsParsed                           uint64
	NumKmersParsed, NumKmersLoaded, NumKmersNovel uint64
}

// AddSERead records one single-ended read.
func (s *LoadingStats) AddSERead(basesRead uint64, good bool) {
	atomic.AddUint64(&s.NumSEReads, 1)
	atomic.AddUint64(&s.TotalBasesRead, basesRead)
	if good {
		atomic.AddUint64(&s.NumGoodReads, 1)
	} else {
		atomic.AddUint64(&s.NumBadReads, 1)
	}
}

// AddPERead records one half of a paired-end read.
func (s *LoadingStats) AddPERead(basesRead uint64, good bool) {
	atomic.AddUint64(&s.NumPEReads, 1)
	atomic.AddUint64(&s.TotalBasesRead, basesRead)
	if good {
		atomic.AddUint64(&s.NumGoodReads, 1)
	} else {
		atomic.AddUint64(&s.NumBadReads, 1)
	}
}

// AddDupSERead records one single-ended read dropped as a duplicate.
func (s *LoadingStats) AddDupSERead() { atomic.AddUint64(&s.NumDupSEReads, 1) }

// AddDupPEPair records one paired-end pair dropped as a duplicate.
func (s *LoadingStats) AddDupPEPair() { atomic.AddUint64(&s.NumDupPEPairs, 1) }

// AddContig records bases kept from one contiguous stretch of sequence
// (after quality trimming / N-splitting) and the kmers parsed from it.
func (s *LoadingStats) AddContig(basesLoaded, kmersParsed uint64) {
	atomic.AddUint64(&s.ContigsParsed, 1)
	atomic.AddUint64(&s.TotalBasesLoaded, basesLoaded)
	atomic.AddUint64(&s.NumKmersParsed, kmersParsed)
}

// AddKmerLoaded records one kmer inserted into the graph, novel or not.
func (s *LoadingStats) AddKmerLoaded(novel bool) {
	atomic.AddUint64(&s.NumKmersLoaded, 1)
	if novel {
		atomic.AddUint64(&s.NumKmersNovel, 1)
	}
}

// Merge adds other's counters into s.
func (s *LoadingStats) Merge(other *LoadingStats) {
	atomic.AddUint64(&s.NumSEReads, atomic.LoadUint64(&other.NumSEReads))
	atomic.AddUint64(&s.NumPEReads, atomic.LoadUint64(&other.NumPEReads))
	atomic.AddUint64(&s.NumGoodReads, atomic.LoadUint64(&other.NumGoodReads))
	atomic.AddUint64(&s.NumBadReads, atomic.LoadUint64(&other.NumBadReads))
	atomic.AddUint64(&s.NumDupSEReads, atomic.LoadUint64(&other.NumDupSEReads))
	atomic.AddUint64(&s.NumDupPEPairs, atomic.LoadUint64(&other.NumDupPEPairs))
	atomic.AddUint64(&s.TotalBasesRead, atomic.LoadUint64(&other.TotalBasesRead))
	atomic.AddUint64(&s.TotalBasesLoaded, atomic.LoadUint64(&other.TotalBasesLoaded))
	atomic.AddUint64(&s.ContigsParsed, atomic.LoadUint64(&other.ContigsParsed))
	atomic.AddUint64(&s.NumKmersParsed, atomic.LoadUint64(&other.NumKmersParsed))
	atomic.AddUint64(&s.NumKmersLoaded, atomic.LoadUint64(&other.NumKmersLoaded))
	atomic.AddUint64(&s.NumKmersNovel, atomic.LoadUint64(&other.NumKmersNovel))
}

// PrintSummary logs a human-readable summary of s, given the graph's final
// kmer count (htNumKmers) for the "total now in graph" line.
func (s *LoadingStats) PrintSummary(htNumKmers uint64) {
	log.Printf("[loading]   SE reads: %d (%d good, %d bad, %d duplicate)",
		s.NumSEReads, s.NumGoodReads, s.NumBadReads, s.NumDupSEReads)
	log.Printf("[loading]   PE read pairs: %d (%d duplicate pairs)",
		s.NumPEReads, s.NumDupPEPairs)
	log.Printf("[loading]   Bases read: %d, bases loaded: %d",
		s.TotalBasesRead, s.TotalBasesLoaded)
	log.Printf("[loading]   Contigs parsed: %d", s.ContigsParsed)
	log.Printf("[loading]   Kmers parsed: %d, loaded: %d, novel: %d",
		s.NumKmersParsed, s.NumKmersLoaded, s.NumKmersNovel)
	log.Printf("[loading]   Kmers now in graph: %d", htNumKmers)
}
