package loadstats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddSEReadCountsGoodAndBad(t *testing.T) {
	var s LoadingStats
	s.AddSERead(100, true)
	s.AddSERead(50, false)

	assert.EqualValues(t, 2, s.NumSEReads)
	assert.EqualValues(t, 1, s.NumGoodReads)
	assert.EqualValues(t, 1, s.NumBadReads)
	assert.EqualValues(t, 150, s.TotalBasesRead)
}

func TestAddKmerLoadedTracksNovelty(t *testing.T) {
	var s LoadingStats
	s.AddKmerLoaded(true)
	s.AddKmerLoaded(false)
	s.AddKmerLoaded(true)

	assert.EqualValues(t, 3, s.NumKmersLoaded)
	assert.EqualValues(t, 2, s.NumKmersNovel)
}

func TestMergeSumsCounters(t *testing.T) {
	var a, b LoadingStats
	a.AddSERead(10, true)
	a.AddContig(10, 5)
	b.AddSERead(20, true)
	b.AddContig(20, 10)

	a.Merge(&b)

	assert.EqualValues(t, 2, a.NumSEReads)
	assert.EqualValues(t, 30, a.TotalBasesRead)
	assert.EqualValues(t, 2, a.ContigsParsed)
	assert.EqualValues(t, 15, a.NumKmersParsed)
}

func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	var s LoadingStats
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddSERead(1, true)
			s.AddKmerLoaded(true)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 64, s.NumSEReads)
	assert.EqualValues(t, 64, s.NumKmersLoaded)
}
