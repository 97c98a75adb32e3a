// Package callstack holds the reconstructed call-stack tree and the helpers
// the presentation layer uses to order, format and search it.
//
// Nodes live in an arena and are addressed by Handle. Besides the owning
// parent/children links every node carries two non-owning links (prev, next)
// that thread the nodes in the order their records were decoded. That list
// is what the reconciler walks to find nodes that disappeared from the
// stream.
package callstack

import (
	"slices"

	"github.com/evanschultz/memprof-client/pkg/models"
)

// Handle addresses a node in a Tree.
type Handle int32

// NoNode is the null handle.
const NoNode Handle = -1

type node struct {
	rec models.Record

	parent   Handle
	children []Handle

	// stream order, pass scoped
	prev Handle
	next Handle

	epoch uint64
	live  bool
}

// Tree is a single-rooted call-stack tree backed by an arena.
//
// A Tree is not safe for concurrent use.
type Tree struct {
	nodes []node
	free  []Handle
	root  Handle
	epoch uint64
	size  int
}

// NewTree returns a tree holding only the root.
func NewTree() *Tree {
	t := &Tree{}
	t.root = t.alloc(NoNode)
	return t
}

// Root returns the root handle. It never changes for the life of the tree.
func (t *Tree) Root() Handle { return t.root }

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int { return t.size }

// Contains reports whether h addresses a live node.
func (t *Tree) Contains(h Handle) bool {
	return h >= 0 && int(h) < len(t.nodes) && t.nodes[h].live
}

func (t *Tree) alloc(parent Handle) Handle {
	n := node{parent: parent, prev: NoNode, next: NoNode, live: true}
	var h Handle
	if k := len(t.free); k > 0 {
		h = t.free[k-1]
		t.free = t.free[:k-1]
		n.children = t.nodes[h].children[:0]
		t.nodes[h] = n
	} else {
		h = Handle(len(t.nodes))
		t.nodes = append(t.nodes, n)
	}
	t.size++
	return h
}

// AddChild creates an empty node and appends it to parent's children.
func (t *Tree) AddChild(parent Handle) Handle {
	h := t.alloc(parent)
	p := &t.nodes[parent]
	p.children = append(p.children, h)
	return h
}

// FindChild returns the child of parent whose id matches, or NoNode.
func (t *Tree) FindChild(parent Handle, id string) Handle {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].rec.ID == id {
			return c
		}
	}
	return NoNode
}

// Record returns a copy of the node's record.
func (t *Tree) Record(h Handle) models.Record { return t.nodes[h].rec }

// SetRecord overwrites the node's record.
func (t *Tree) SetRecord(h Handle, r models.Record) { t.nodes[h].rec = r }

// Level is shorthand for Record(h).Level.
func (t *Tree) Level(h Handle) int { return t.nodes[h].rec.Level }

// Parent returns the parent of h, or NoNode for the root.
func (t *Tree) Parent(h Handle) Handle { return t.nodes[h].parent }

// Children returns the children of h in insertion order.
func (t *Tree) Children(h Handle) []Handle {
	return slices.Clone(t.nodes[h].children)
}

// Next returns the stream-order successor of h.
func (t *Tree) Next(h Handle) Handle { return t.nodes[h].next }

// Prev returns the stream-order predecessor of h.
func (t *Tree) Prev(h Handle) Handle { return t.nodes[h].prev }

// Link makes h the stream-order successor of prev. A NoNode prev only clears
// h's back link.
func (t *Tree) Link(prev, h Handle) {
	t.nodes[h].prev = prev
	if prev != NoNode {
		t.nodes[prev].next = h
	}
}

// BeginPass starts a new reconciliation epoch.
func (t *Tree) BeginPass() uint64 {
	t.epoch++
	return t.epoch
}

// Mark records that h was resolved during the current epoch.
func (t *Tree) Mark(h Handle) { t.nodes[h].epoch = t.epoch }

// Marked reports whether h was resolved during the current epoch.
func (t *Tree) Marked(h Handle) bool { return t.nodes[h].epoch == t.epoch }

// Detach removes h and its whole subtree from the tree and from the stream
// list, and returns the number of nodes released. The root cannot be
// detached.
func (t *Tree) Detach(h Handle) int {
	if h == t.root || !t.Contains(h) {
		return 0
	}
	if p := t.nodes[h].parent; p != NoNode {
		siblings := t.nodes[p].children
		if i := slices.Index(siblings, h); i >= 0 {
			t.nodes[p].children = slices.Delete(siblings, i, i+1)
		}
	}
	return t.release(h)
}

func (t *Tree) release(h Handle) int {
	n := 1
	for _, c := range t.nodes[h].children {
		n += t.release(c)
	}
	t.unlink(h)
	t.nodes[h].live = false
	t.nodes[h].parent = NoNode
	t.nodes[h].children = t.nodes[h].children[:0]
	t.nodes[h].rec = models.Record{}
	t.free = append(t.free, h)
	t.size--
	return n
}

// unlink drops h from the stream list. Neighbours whose links were already
// rewritten by the current pass are left alone.
func (t *Tree) unlink(h Handle) {
	n := &t.nodes[h]
	if n.prev != NoNode && t.nodes[n.prev].next == h {
		t.nodes[n.prev].next = n.next
	}
	if n.next != NoNode && t.nodes[n.next].prev == h {
		t.nodes[n.next].prev = n.prev
	}
	n.prev, n.next = NoNode, NoNode
}

// Reset drops every node except the root and clears the root's record.
func (t *Tree) Reset() {
	for _, c := range t.Children(t.root) {
		t.Detach(c)
	}
	r := &t.nodes[t.root]
	r.rec = models.Record{}
	r.prev, r.next = NoNode, NoNode
}
