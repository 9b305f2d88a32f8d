// Package khash implements the concurrent, canonical-kmer hash table that
// is the spine of the graph: an open-addressed table partitioned into
// fixed-size buckets, each guarded by its own lock, with stable integer
// keys so that satellite arrays (edge bytes, coverage counters, in-color
// bitsets) can be indexed by key without indirection.
//
// The sharded-lock structure follows the same shape as
// bamprovider.concurrentMap (one mutex per shard, farmhash picks the
// shard), generalized from a map[string]*Record to an open-addressed array
// so that Find can stay lock-free.
package khash

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/grailbio/cdbg/kmer"
)

// Key is a stable slot index assigned at insertion (hkey in spec.md). It
// remains valid until the node is deleted.
type Key uint64

// NoKey is the HKEY_NONE sentinel: "no such node".
const NoKey Key = ^Key(0)

// BucketSize is the fixed number of slots per bucket (B in spec.md §4.2).
const BucketSize = 256

// IdealOccupancy is the target load factor a table is sized to, leaving
// headroom in every bucket for skewed hash distributions.
const IdealOccupancy = 0.75

// ErrFullBucket is returned by FindOrInsert when a bucket is saturated.
// Per spec.md §7 this is a Fatal condition -- callers that want the
// Recoverable framing should check for it before treating the error as
// fatal; Table itself does not panic on it.
var ErrFullBucket = errors.E("khash: bucket is full")

// Table is a concurrent, canonical-kmer hash table for kmers of a single
// fixed length K.
type Table struct {
	k            int
	wordsPerKmer int

	bucketCount int // power of two
	capacity    int // bucketCount * BucketSize

	words []uint64 // flat storage, slot s occupies words[s*wordsPerKmer:(s+1)*wordsPerKmer]
	occ   []uint64 // atomic bitset, one bit per slot

	locks        []sync.Mutex
	bucketCounts []uint32 // atomic, items currently in each bucket

	numKmers uint64 // atomic, maintained incrementally as a fast-path cache
}

// New allocates a table sized to hold at least minCapacity kmers of length
// k, rounding the bucket count up to a power of two so that IdealOccupancy
// leaves headroom.
func New(k int, minCapacity uint64) *Table {
	if k < kmer.MinK || k > kmer.MaxK {
		log.Fatalf("khash: k=%d out of range [%d,%d]", k, kmer.MinK, kmer.MaxK)
	}
	wantedBuckets := uint64(float64(minCapacity)/IdealOccupancy/BucketSize) + 1
	bucketCount := nextPow2(wantedBuckets)
	capacity := bucketCount * BucketSize

	t := &Table{
		k:            k,
		wordsPerKmer: kmer.WordsForK(k),
		bucketCount:  int(bucketCount),
		capacity:     int(capacity),
		words:        make([]uint64, int(capacity)*kmer.WordsForK(k)),
		occ:          make([]uint64, (capacity+63)/64),
		locks:        make([]sync.Mutex, bucketCount),
		bucketCounts: make([]uint32, bucketCount),
	}
	return t
}

func nextPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << uint(bits.Len64(n-1))
}

// K returns the kmer length this table holds.
func (t *Table) K() int { return t.k }

// Capacity returns the total number of slots.
func (t *Table) Capacity() int { return t.capacity }

func (t *Table) bucketOf(h uint64) int { return int(h) & (t.bucketCount - 1) }

func (t *Table) slotWords(slot int) []uint64 {
	return t.words[slot*t.wordsPerKmer : (slot+1)*t.wordsPerKmer]
}

func (t *Table) isOccupied(slot int) bool {
	word := atomic.LoadUint64(&t.occ[slot/64])
	return word&(uint64(1)<<uint(slot%64)) != 0
}

func (t *Table) setOccupied(slot int) {
	idx, bit := slot/64, uint64(1)<<uint(slot%64)
	for {
		old := atomic.LoadUint64(&t.occ[idx])
		if atomic.CompareAndSwapUint64(&t.occ[idx], old, old|bit) {
			return
		}
	}
}

func (t *Table) clearOccupied(slot int) {
	idx, bit := slot/64, uint64(1)<<uint(slot%64)
	for {
		old := atomic.LoadUint64(&t.occ[idx])
		if atomic.CompareAndSwapUint64(&t.occ[idx], old, old&^bit) {
			return
		}
	}
}

func (t *Table) kmerAt(slot int) kmer.Packed {
	return kmer.FromWords(t.slotWords(slot), t.k)
}

// bucketSlots returns the [start,end) slot range for bucket b.
func (t *Table) bucketSlots(b int) (int, int) {
	start := b * BucketSize
	return start, start + BucketSize
}

// FindOrInsert inserts the canonical form of p if absent, returning its
// stable key. inserted reports whether this call performed the insertion.
func (t *Table) FindOrInsert(p kmer.Packed) (key Key, inserted bool, err error) {
	canon, _ := kmer.Canonical(p)
	h := kmer.Hash64(canon)
	b := t.bucketOf(h)
	start, end := t.bucketSlots(b)

	// Lock-free pre-check: the common case (kmer already present) never
	// needs the bucket lock.
	for s := start; s < end; s++ {
		if t.isOccupied(s) && kmer.Equal(t.kmerAt(s), canon) {
			return Key(s), false, nil
		}
	}

	t.locks[b].Lock()
	defer t.locks[b].Unlock()

	// Rescan under the lock: another goroutine may have inserted the same
	// kmer (or filled the bucket) between the pre-check and the lock.
	firstEmpty := -1
	for s := start; s < end; s++ {
		if t.isOccupied(s) {
			if kmer.Equal(t.kmerAt(s), canon) {
				return Key(s), false, nil
			}
		} else if firstEmpty == -1 {
			firstEmpty = s
		}
	}
	if firstEmpty == -1 {
		return NoKey, false, ErrFullBucket
	}

	canon.CopyWords(t.slotWords(firstEmpty))
	t.setOccupied(firstEmpty)
	atomic.AddUint32(&t.bucketCounts[b], 1)
	atomic.AddUint64(&t.numKmers, 1)
	return Key(firstEmpty), true, nil
}

// Find looks up the canonical form of p. Lock-free: relies on the
// publication order in FindOrInsert (words are written before the
// occupied bit is set).
func (t *Table) Find(p kmer.Packed) Key {
	canon, _ := kmer.Canonical(p)
	h := kmer.Hash64(canon)
	b := t.bucketOf(h)
	start, end := t.bucketSlots(b)
	for s := start; s < end; s++ {
		if t.isOccupied(s) && kmer.Equal(t.kmerAt(s), canon) {
			return Key(s)
		}
	}
	return NoKey
}

// Kmer returns the canonical kmer stored at key. The caller must know key
// is currently occupied (e.g. from Find/FindOrInsert/Iterate).
func (t *Table) Kmer(key Key) kmer.Packed { return t.kmerAt(int(key)) }

// Delete clears the slot at key, freeing it for reuse.
func (t *Table) Delete(key Key) {
	slot := int(key)
	b := slot / BucketSize
	t.locks[b].Lock()
	defer t.locks[b].Unlock()
	if !t.isOccupied(slot) {
		return
	}
	for i := range t.slotWords(slot) {
		t.slotWords(slot)[i] = 0
	}
	t.clearOccupied(slot)
	atomic.AddUint32(&t.bucketCounts[b], ^uint32(0)) // -1
	atomic.AddUint64(&t.numKmers, ^uint64(0))        // -1
}

// Iterate visits every occupied key in slot order.
func (t *Table) Iterate(fn func(Key)) {
	for s := 0; s < t.capacity; s++ {
		if t.isOccupied(s) {
			fn(Key(s))
		}
	}
}

// IterateMT partitions the buckets among nthreads goroutines and visits
// every occupied key in each thread's partition, passing the thread index
// to fn. Order across threads is unspecified; order within one thread's
// partition follows slot order.
func (t *Table) IterateMT(nthreads int, fn func(key Key, threadID int)) {
	if nthreads < 1 {
		nthreads = 1
	}
	var wg sync.WaitGroup
	bucketsPerThread := (t.bucketCount + nthreads - 1) / nthreads
	for tid := 0; tid < nthreads; tid++ {
		tid := tid
		bStart := tid * bucketsPerThread
		bEnd := bStart + bucketsPerThread
		if bStart >= t.bucketCount {
			continue
		}
		if bEnd > t.bucketCount {
			bEnd = t.bucketCount
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := bStart * BucketSize; s < bEnd*BucketSize; s++ {
				if t.isOccupied(s) {
					fn(Key(s), tid)
				}
			}
		}()
	}
	wg.Wait()
}

// LockSlot locks the bucket holding key. Used by graph.GraphStore to guard
// edge-bit mutations on the same granularity as table inserts/deletes,
// since an occupied slot's satellite data (edges, coverage, color bits)
// shares the bucket lock with the slot itself.
func (t *Table) LockSlot(key Key) { t.locks[int(key)/BucketSize].Lock() }

// UnlockSlot releases the lock taken by LockSlot.
func (t *Table) UnlockSlot(key Key) { t.locks[int(key)/BucketSize].Unlock() }

// CountKmers returns the sum of per-bucket item counts. Invariant (§8):
// equal to the number of occupied slots and to the number of distinct keys
// Iterate yields.
func (t *Table) CountKmers() uint64 {
	var sum uint64
	for b := range t.bucketCounts {
		sum += uint64(atomic.LoadUint32(&t.bucketCounts[b]))
	}
	return sum
}
