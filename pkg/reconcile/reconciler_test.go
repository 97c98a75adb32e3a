package reconcile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/models"
)

// rec is a record at level with id and name both set to id.
func rec(level int, id string) models.Record {
	return models.Record{Level: level, ID: id, Name: id, TotalBytes: 1, SelfBytes: 1}
}

// pass runs one full pass and returns the total pruned count.
func pass(r *Reconciler, records ...models.Record) int {
	r.Begin()
	pruned := 0
	for _, x := range records {
		_, n := r.Apply(x)
		pruned += n
	}
	return pruned + r.Finish()
}

// shape renders the tree as "id(child child(...))" in insertion order.
func shape(t *callstack.Tree) string {
	var b strings.Builder
	var walk func(v *callstack.ViewNode)
	walk = func(v *callstack.ViewNode) {
		b.WriteString(v.Record.ID)
		if len(v.Children) == 0 {
			return
		}
		b.WriteString("(")
		for i, c := range v.Children {
			if i > 0 {
				b.WriteString(" ")
			}
			walk(c)
		}
		b.WriteString(")")
	}
	walk(t.Export())
	return b.String()
}

func handleOf(t *callstack.Tree, path ...string) callstack.Handle {
	h := t.Root()
	for _, id := range path {
		h = t.FindChild(h, id)
		if h == callstack.NoNode {
			return h
		}
	}
	return h
}

func TestApplyBuildsTreeFromLevels(t *testing.T) {
	tests := []struct {
		name    string
		records []models.Record
		want    string
	}{
		{
			name: "levels 0,1,2,1,2,3,1",
			records: []models.Record{
				rec(0, "r"), rec(1, "a"), rec(2, "b"), rec(1, "c"),
				rec(2, "d"), rec(3, "e"), rec(1, "f"),
			},
			want: "r(a(b) c(d(e)) f)",
		},
		{
			name: "gap larger than one",
			records: []models.Record{
				rec(0, "r"), rec(1, "a"), rec(3, "deep"), rec(1, "b"),
			},
			want: "r(a(deep) b)",
		},
		{
			name: "deep gap then sibling of the deep node's parent",
			records: []models.Record{
				rec(0, "r"), rec(1, "a"), rec(2, "b"), rec(5, "x"), rec(2, "c"),
			},
			want: "r(a(b(x) c))",
		},
		{
			name: "level at root's level attaches under root",
			records: []models.Record{
				rec(0, "r"), rec(1, "a"), rec(0, "z"),
			},
			want: "r(a z)",
		},
		{
			name: "negative level clamps at root",
			records: []models.Record{
				rec(0, "r"), rec(1, "a"), rec(2, "b"), rec(-3, "z"),
			},
			want: "r(a(b) z)",
		},
		{
			name:    "root only",
			records: []models.Record{rec(0, "r")},
			want:    "r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := callstack.NewTree()
			r := New(tree)
			pass(r, tt.records...)
			assert.Equal(t, tt.want, shape(tree))
		})
	}
}

func TestFirstRecordAlwaysLandsOnRoot(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)

	h, _ := r.Apply(rec(3, "not-zero"))
	assert.Equal(t, tree.Root(), h)
	assert.Equal(t, "not-zero", tree.Record(tree.Root()).ID)
	assert.Equal(t, h, r.Current())
	assert.Same(t, tree, r.Tree())
}

func TestIdentityPreservedAcrossPasses(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	first := []models.Record{rec(0, "r"), rec(1, "a"), rec(2, "b"), rec(1, "c")}
	pass(r, first...)

	a := handleOf(tree, "a")
	b := handleOf(tree, "a", "b")
	c := handleOf(tree, "c")
	size := tree.Len()

	updated := rec(2, "b")
	updated.TotalBytes = 4096
	updated.TotalCount = 17
	pruned := pass(r, rec(0, "r"), rec(1, "a"), updated, rec(1, "c"))

	assert.Zero(t, pruned)
	assert.Equal(t, size, tree.Len())
	assert.Equal(t, a, handleOf(tree, "a"))
	assert.Equal(t, b, handleOf(tree, "a", "b"))
	assert.Equal(t, c, handleOf(tree, "c"))
	assert.Equal(t, 4096.0, tree.Record(b).TotalBytes)
	assert.Equal(t, 17, tree.Record(b).TotalCount)
}

func TestMidBranchPruning(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "A"), rec(1, "B"), rec(2, "B1"), rec(3, "B2"), rec(1, "C"))
	require.Equal(t, "r(A B(B1(B2)) C)", shape(tree))
	a, c := handleOf(tree, "A"), handleOf(tree, "C")

	pruned := pass(r, rec(0, "r"), rec(1, "A"), rec(1, "C"))

	assert.Equal(t, 3, pruned)
	assert.Equal(t, "r(A C)", shape(tree))
	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, a, handleOf(tree, "A"))
	assert.Equal(t, c, handleOf(tree, "C"), "C is matched, not recreated")
	assert.Equal(t, c, tree.Next(a))
	assert.Equal(t, a, tree.Prev(c))
}

func TestTrailingPruning(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "X"), rec(2, "Y"), rec(3, "Z"))

	r.Begin()
	r.Apply(rec(0, "r"))
	_, n := r.Apply(rec(1, "X"))
	assert.Zero(t, n)
	assert.Equal(t, "r(X(Y(Z)))", shape(tree), "nothing goes before the end of the pass")

	assert.Equal(t, 2, r.Finish())
	assert.Equal(t, "r(X)", shape(tree))
	assert.Equal(t, callstack.NoNode, tree.Next(handleOf(tree, "X")))
}

func TestChildRemovedWhenOnlyRootResent(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "root"), rec(1, "a"))
	require.Equal(t, "root(a)", shape(tree))

	pruned := pass(r, rec(0, "root"))
	assert.Equal(t, 1, pruned)
	assert.Equal(t, "root", shape(tree))
	assert.Equal(t, 1, tree.Len())
}

func TestNewChildIsAppended(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "a"))
	a := handleOf(tree, "a")

	pruned := pass(r, rec(0, "r"), rec(1, "a"), rec(1, "b"))
	assert.Zero(t, pruned)
	assert.Equal(t, "r(a b)", shape(tree))
	assert.Equal(t, a, handleOf(tree, "a"))
}

func TestInsertedNodeRebuildsLaterSiblings(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "a"), rec(1, "c"))

	pass(r, rec(0, "r"), rec(1, "a"), rec(1, "b"), rec(1, "c"))
	assert.Equal(t, "r(a b c)", shape(tree))
	assert.Equal(t, 4, tree.Len())
}

func TestReorderedSiblings(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "a"), rec(2, "a1"), rec(1, "b"))

	pass(r, rec(0, "r"), rec(1, "b"), rec(1, "a"), rec(2, "a1"))
	assert.Equal(t, "r(b a(a1))", shape(tree))
	assert.Equal(t, 4, tree.Len())
}

func TestMovedNodeIsRecreated(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "a"), rec(2, "x"), rec(1, "b"))

	// x moves from under a to under b: the walk from a to b removes the
	// old x and a new one is created under b
	pass(r, rec(0, "r"), rec(1, "a"), rec(1, "b"), rec(2, "x"))
	assert.Equal(t, "r(a b(x))", shape(tree))
	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, callstack.NoNode, handleOf(tree, "a", "x"))
	assert.True(t, tree.Contains(handleOf(tree, "b", "x")))
}

func TestPruneStopsAtLiveNodes(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "A"), rec(1, "B"))
	b := handleOf(tree, "B")

	// A shows up twice, so A's stream successor points back at B, which
	// this pass already resolved
	pruned := pass(r, rec(0, "r"), rec(1, "A"), rec(1, "B"), rec(1, "A"), rec(1, "C"))
	assert.Zero(t, pruned)
	assert.Equal(t, "r(A B C)", shape(tree))
	assert.Equal(t, b, handleOf(tree, "B"))
}

func TestFinishWithoutRecords(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	pass(r, rec(0, "r"), rec(1, "a"))

	r.Begin()
	assert.Zero(t, r.Finish())
	assert.Equal(t, "r(a)", shape(tree))
}

func TestManyPassesKeepArenaBounded(t *testing.T) {
	tree := callstack.NewTree()
	r := New(tree)
	for i := 0; i < 50; i++ {
		records := []models.Record{rec(0, "r")}
		for j := 0; j < 5; j++ {
			records = append(records, rec(1, fmt.Sprintf("f%d", (i+j)%7)), rec(2, "leaf"))
		}
		pass(r, records...)
		assert.Equal(t, 11, tree.Len(), "pass %d", i)
	}
}
