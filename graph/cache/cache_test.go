package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/cdbg/graph"
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/kmer"
)

func buildLinear(t *testing.T, g *graph.GraphStore, seq string, k, color int) graph.Node {
	t.Helper()
	var prevKey khash.Key
	var prevOrient graph.Orientation
	var firstKey khash.Key
	var firstOrient graph.Orientation
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
		} else {
			firstKey, firstOrient = key, orient
		}
		prevKey, prevOrient, have = key, orient, true
	}
	return graph.Node{Hkey: firstKey, Orient: firstOrient}
}

func TestNewStepCachesSupernodeOnce(t *testing.T) {
	const k = 11
	tbl := khash.New(k, 200)
	g := graph.New(tbl, 1)
	seq := "ACGTACGTACGTTGCAACGTGGCATCGATCGTAGCTAGCTGATCG"
	first := buildLinear(t, g, seq, k, 0)

	c := New(g, 0)
	path := c.NewPath()
	step1 := c.NewStep(path, first)
	require.Len(t, c.Snodes, 1)

	id1, ok := c.FindSupernode(first)
	require.True(t, ok)
	assert.Equal(t, 0, id1)

	step2 := c.NewStep(path, first)
	assert.Len(t, c.Snodes, 1, "second NewStep for the same node must reuse the cached supernode")
	assert.Equal(t, c.Steps[step1].Supernode, c.Steps[step2].Supernode)
}

func TestSupernodeOrientMatchesEntryPoint(t *testing.T) {
	const k = 11
	tbl := khash.New(k, 200)
	g := graph.New(tbl, 1)
	// A single linear supernode: no kmer of seq is the reverse complement of
	// another, so the walk from the first kmer covers all of it.
	seq := "ACCTAACCAGATATCTCTGTATACAGCTGCATTGTGTTTAGTCTACA"
	first := buildLinear(t, g, seq, k, 0)

	c := New(g, 0)
	path := c.NewPath()
	stepID := c.NewStep(path, first)
	assert.Equal(t, graph.Forward, c.Steps[stepID].Orient)

	nodes := c.SupernodeNodes(c.Steps[stepID].Supernode, graph.Forward)
	require.NotEmpty(t, nodes)
	assert.Equal(t, first.Hkey, nodes[0].Hkey)
	assert.Equal(t, first.Orient, nodes[0].Orient)
}

func TestSupernodeHasColourRestrictsToMembers(t *testing.T) {
	const k = 11
	tbl := khash.New(k, 200)
	g := graph.New(tbl, 2)
	seq := "ACGTACGTACGTTGCAACGTGGCATCGATCGTAGCTAGCTGATCG"
	first := buildLinear(t, g, seq, k, 0)

	c := New(g, 0)
	path := c.NewPath()
	stepID := c.NewStep(path, first)
	snodeID := c.Steps[stepID].Supernode

	assert.True(t, c.SupernodeHasColour(snodeID, 0))
	assert.False(t, c.SupernodeHasColour(snodeID, 1), "color 1 was never loaded")
}

func TestRemoveDupesKeepsOneStepPerSupernode(t *testing.T) {
	const k = 11
	tbl := khash.New(k, 200)
	g := graph.New(tbl, 1)
	seq := "ACGTACGTACGTTGCAACGTGGCATCGATCGTAGCTAGCTGATCG"
	first := buildLinear(t, g, seq, k, 0)

	c := New(g, 0)
	path := c.NewPath()
	step1 := c.NewStep(path, first)
	step2 := c.NewStep(path, first)

	deduped := c.RemoveDupes([]int{step1, step2})
	assert.Len(t, deduped, 1)
}

func TestIs3pFlankFalseForSingleStep(t *testing.T) {
	const k = 11
	tbl := khash.New(k, 200)
	g := graph.New(tbl, 1)
	seq := "ACGTACGTACGTTGCAACGTGGCATCGATCGTAGCTAGCTGATCG"
	first := buildLinear(t, g, seq, k, 0)

	c := New(g, 0)
	path := c.NewPath()
	step1 := c.NewStep(path, first)

	assert.False(t, c.Is3pFlank([]int{step1}))
}
