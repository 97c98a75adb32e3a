// Package reconcile folds a stream of decoded report records into a
// persistent call-stack tree.
//
// The server resends the whole report every cycle. Instead of rebuilding
// the tree each time, the reconciler walks the existing tree alongside the
// stream: records are matched to existing children by id and updated in
// place, and nodes that were decoded in the previous pass but skipped in
// this one are found by following the previous pass's stream-order links
// between two positions known to be live.
package reconcile

import (
	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/models"
)

// Reconciler is the per-session state machine. Begin, any number of Apply
// calls and Finish make up one pass.
type Reconciler struct {
	tree *callstack.Tree

	current  callstack.Handle
	previous callstack.Handle
}

// New returns a reconciler for tree.
func New(tree *callstack.Tree) *Reconciler {
	return &Reconciler{
		tree:     tree,
		current:  callstack.NoNode,
		previous: callstack.NoNode,
	}
}

// Tree returns the tree being reconciled.
func (r *Reconciler) Tree() *callstack.Tree { return r.tree }

// Current returns the node resolved by the last Apply of this pass, or
// NoNode before the first one.
func (r *Reconciler) Current() callstack.Handle { return r.current }

// Begin starts a pass. The stream-order list is not chained across passes:
// the first record of a pass has no predecessor.
func (r *Reconciler) Begin() {
	r.current = callstack.NoNode
	r.previous = callstack.NoNode
	r.tree.BeginPass()
}

// Apply folds one record into the tree. It returns the node the record was
// written to and the number of stale nodes removed on the way.
func (r *Reconciler) Apply(rec models.Record) (callstack.Handle, int) {
	t := r.tree
	pruned := 0

	if r.current == callstack.NoNode {
		r.current = t.Root()
	} else {
		r.previous = r.current
		parent := r.ascend(r.current, rec.Level)
		node := t.FindChild(parent, rec.ID)
		if node == callstack.NoNode {
			node = t.AddChild(parent)
		}
		r.current = node
	}

	if r.previous != callstack.NoNode {
		pruned = r.prune(r.previous, r.current)
	}

	t.SetRecord(r.current, rec)
	t.Link(r.previous, r.current)
	t.Mark(r.current)
	return r.current, pruned
}

// Finish removes everything the previous pass decoded after the last node
// resolved in this pass. A pass that applied nothing removes nothing.
func (r *Reconciler) Finish() int {
	if r.current == callstack.NoNode {
		return 0
	}
	return r.prune(r.current, callstack.NoNode)
}

// ascend climbs from node to the parent a record at level attaches to.
// Levels may jump by more than one, so each step consumes the real level
// difference to the parent. The climb never goes past the root.
func (r *Reconciler) ascend(node callstack.Handle, level int) callstack.Handle {
	t := r.tree
	for j := t.Level(node) - level; j >= 0; {
		parent := t.Parent(node)
		if parent == callstack.NoNode {
			break
		}
		j -= t.Level(node) - t.Level(parent)
		node = parent
	}
	return node
}

// prune detaches the stream successors of from until it reaches until, the
// end of the list, or a node already resolved in this pass.
func (r *Reconciler) prune(from, until callstack.Handle) int {
	t := r.tree
	pruned := 0
	for {
		next := t.Next(from)
		if next == callstack.NoNode || next == until || !t.Contains(next) || t.Marked(next) {
			return pruned
		}
		n := t.Detach(next)
		if n == 0 {
			return pruned
		}
		pruned += n
	}
}
