// Package cache implements GraphCache: a caller-facing index of supernodes
// and the paths built through them. Unlike graph.GraphStore it is not
// thread-safe -- callers (bubble/breakpoint-style path builders) build one
// path at a time and must not share a Cache across goroutines.
package cache

import (
	"sort"

	"github.com/grailbio/cdbg/graph"
)

// Supernode caches one supernode's node list plus its neighboring nodes at
// both ends, so repeated traversal of the same supernode from different
// paths doesn't have to re-walk graph.GraphStore.
type Supernode struct {
	FirstNodeID int
	NumNodes    int
	FirstStep   int // head of the intrusive list of Steps through this supernode, -1 if none

	PrevNodes [4]graph.Node
	NextNodes [4]graph.Node
	PrevBases uint8 // up to 4 bases, 2 bits each, low bits first
	NextBases uint8
	NumPrev   int
	NumNext   int
}

// Step is one path's traversal of one supernode: which orientation it was
// entered in, which path it belongs to, and the next step in its
// supernode's intrusive list (used to find sibling paths through the same
// supernode, e.g. for flank detection and duplicate removal).
type Step struct {
	Orient    graph.Orientation
	Supernode int
	PathID    int
	NextStep  int
}

// Path is a contiguous run of Steps: Steps[FirstStep : FirstStep+NumSteps].
// Only one path may be under construction at a time -- NewStep always
// appends to the end of the Steps buffer.
type Path struct {
	FirstStep int
	NumSteps  int
}

type nodeKey struct {
	hkey   uint64
	orient graph.Orientation
}

// Cache indexes supernodes discovered while building paths over g in color.
type Cache struct {
	g     *graph.GraphStore
	color int

	Nodes  []graph.Node
	Snodes []Supernode
	Steps  []Step
	Paths  []Path

	snodeOf map[nodeKey]int
}

// New allocates an empty Cache over g, restricted to color for the
// colour-membership checks (HasColour methods); traversal itself uses
// union edges, same as graph.GraphStore.SupernodeFrom.
func New(g *graph.GraphStore, color int) *Cache {
	return &Cache{g: g, color: color, snodeOf: make(map[nodeKey]int)}
}

// Reset clears the cache for a new round of path building.
func (c *Cache) Reset() {
	c.Nodes = c.Nodes[:0]
	c.Snodes = c.Snodes[:0]
	c.Steps = c.Steps[:0]
	c.Paths = c.Paths[:0]
	for k := range c.snodeOf {
		delete(c.snodeOf, k)
	}
}

// NewPath starts a new path and returns its id. The previous path (if any)
// must be finished -- paths' steps are not interleaved in the Steps buffer.
func (c *Cache) NewPath() int {
	c.Paths = append(c.Paths, Path{FirstStep: len(c.Steps), NumSteps: 0})
	return len(c.Paths) - 1
}

// NewStep appends a step through node's supernode to pathID, building and
// caching the supernode first if this is the first time any path has
// reached it. Returns the new step's id.
func (c *Cache) NewStep(pathID int, node graph.Node) int {
	snodeID := c.findOrBuildSupernode(node)
	orient := c.GetSupernodeOrient(snodeID, node)

	stepID := len(c.Steps)
	c.Steps = append(c.Steps, Step{
		Orient:    orient,
		Supernode: snodeID,
		PathID:    pathID,
		NextStep:  c.Snodes[snodeID].FirstStep,
	})
	c.Snodes[snodeID].FirstStep = stepID
	c.Paths[pathID].NumSteps++
	return stepID
}

func key(n graph.Node) nodeKey { return nodeKey{uint64(n.Hkey), n.Orient} }

// FindSupernode returns the id of the cached supernode containing node, if
// any path has reached it yet.
func (c *Cache) FindSupernode(node graph.Node) (int, bool) {
	id, ok := c.snodeOf[key(node)]
	return id, ok
}

func (c *Cache) findOrBuildSupernode(node graph.Node) int {
	if id, ok := c.snodeOf[key(node)]; ok {
		return id
	}

	nodes := c.g.SupernodeFrom(node.Hkey)
	firstNodeID := len(c.Nodes)
	c.Nodes = append(c.Nodes, nodes...)

	snode := Supernode{FirstNodeID: firstNodeID, NumNodes: len(nodes), FirstStep: -1}
	snode.PrevNodes, snode.PrevBases, snode.NumPrev = c.prevNeighbors(nodes[0])
	snode.NextNodes, snode.NextBases, snode.NumNext = c.nextNeighbors(nodes[len(nodes)-1])

	id := len(c.Snodes)
	c.Snodes = append(c.Snodes, snode)

	for _, n := range nodes {
		c.snodeOf[key(n)] = id
		c.snodeOf[key(graph.Node{Hkey: n.Hkey, Orient: n.Orient.Opposite()})] = id
	}
	return id
}

func (c *Cache) prevNeighbors(first graph.Node) ([4]graph.Node, uint8, int) {
	nbs := c.g.NextNodes(first.Hkey, first.Orient.Opposite(), c.g.EdgesUnion(first.Hkey))
	var out [4]graph.Node
	var packed uint8
	n := 0
	for _, nb := range nbs {
		if n >= 4 {
			break
		}
		out[n] = graph.Node{Hkey: nb.Node.Hkey, Orient: nb.Node.Orient.Opposite()}
		packed |= uint8(nb.Base) << uint(2*n)
		n++
	}
	return out, packed, n
}

func (c *Cache) nextNeighbors(last graph.Node) ([4]graph.Node, uint8, int) {
	nbs := c.g.NextNodes(last.Hkey, last.Orient, c.g.EdgesUnion(last.Hkey))
	var out [4]graph.Node
	var packed uint8
	n := 0
	for _, nb := range nbs {
		if n >= 4 {
			break
		}
		out[n] = nb.Node
		packed |= uint8(nb.Base) << uint(2*n)
		n++
	}
	return out, packed, n
}

// GetSupernodeOrient reports which end of snode firstNode enters from:
// Forward if it matches the cached supernode's own first node, Reverse
// otherwise. It does not check that firstNode is the complement of the
// last node.
func (c *Cache) GetSupernodeOrient(snodeID int, firstNode graph.Node) graph.Orientation {
	head := c.Nodes[c.Snodes[snodeID].FirstNodeID]
	if firstNode.Hkey == head.Hkey && firstNode.Orient == head.Orient {
		return graph.Forward
	}
	return graph.Reverse
}

// SupernodeNodes returns snode's nodes as read in orient.
func (c *Cache) SupernodeNodes(snodeID int, orient graph.Orientation) []graph.Node {
	s := c.Snodes[snodeID]
	src := c.Nodes[s.FirstNodeID : s.FirstNodeID+s.NumNodes]
	if orient == graph.Forward {
		out := make([]graph.Node, len(src))
		copy(out, src)
		return out
	}
	out := make([]graph.Node, len(src))
	for i, n := range src {
		out[len(src)-1-i] = graph.Node{Hkey: n.Hkey, Orient: n.Orient.Opposite()}
	}
	return out
}

// PathNodesBefore returns every node of pathStep's path up to, but not
// including, pathStep. Supernodes are disjoint, so each earlier step
// contributes all of its supernode's nodes.
func (c *Cache) PathNodesBefore(pathStep int) []graph.Node {
	step := c.Steps[pathStep]
	path := c.Paths[step.PathID]
	idx := pathStep - path.FirstStep

	var out []graph.Node
	for i := 0; i < idx; i++ {
		s := c.Steps[path.FirstStep+i]
		out = append(out, c.SupernodeNodes(s.Supernode, s.Orient)...)
	}
	return out
}

// SupernodeHasColour reports whether every node in snode carries coverage
// in color.
func (c *Cache) SupernodeHasColour(snodeID, color int) bool {
	s := c.Snodes[snodeID]
	for i := 0; i < s.NumNodes; i++ {
		if !c.g.InColor(c.Nodes[s.FirstNodeID+i].Hkey, color) {
			return false
		}
	}
	return true
}

// StepHasColour reports whether every node on endStep's path, up to
// endStep, carries coverage in color.
func (c *Cache) StepHasColour(endStep, color int) bool {
	for _, n := range c.PathNodesBefore(endStep) {
		if !c.g.InColor(n.Hkey, color) {
			return false
		}
	}
	return true
}

// SortStepsBySupernode orders stepIDs by their supernode id, grouping
// sibling paths that pass through the same supernode together.
// Is3pFlank and RemoveDupes do not depend on this order.
func (c *Cache) SortStepsBySupernode(stepIDs []int) {
	sort.Slice(stepIDs, func(i, j int) bool {
		return c.Steps[stepIDs[i]].Supernode < c.Steps[stepIDs[j]].Supernode
	})
}

// Is3pFlank reports whether stepIDs look like a 3' flank: a set of paths
// that converge on the same supernode from different predecessors. True
// when the steps' immediate predecessors (within their own paths) are not
// all the same supernode.
func (c *Cache) Is3pFlank(stepIDs []int) bool {
	if len(stepIDs) < 2 {
		return false
	}
	want := c.predecessorSupernode(stepIDs[0])
	for _, sid := range stepIDs[1:] {
		if c.predecessorSupernode(sid) != want {
			return true
		}
	}
	return false
}

func (c *Cache) predecessorSupernode(stepID int) int {
	step := c.Steps[stepID]
	path := c.Paths[step.PathID]
	idx := stepID - path.FirstStep
	if idx == 0 {
		return -1
	}
	return c.Steps[path.FirstStep+idx-1].Supernode
}

// RemoveDupes filters stepIDs down to one entry per distinct supernode,
// keeping the first occurrence -- multiple paths that reach the same
// supernode are the same physical path from the caller's point of view.
func (c *Cache) RemoveDupes(stepIDs []int) []int {
	seen := make(map[int]bool, len(stepIDs))
	out := stepIDs[:0]
	for _, sid := range stepIDs {
		snodeID := c.Steps[sid].Supernode
		if seen[snodeID] {
			continue
		}
		seen[snodeID] = true
		out = append(out, sid)
	}
	return out
}
