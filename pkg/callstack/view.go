package callstack

import (
	"strings"

	"github.com/evanschultz/memprof-client/pkg/models"
)

// ViewNode is an immutable copy of a subtree, safe to hand to another
// goroutine once the reconciler is done with a pass.
type ViewNode struct {
	Record   models.Record
	Children []*ViewNode
}

// Export copies the tree rooted at the root node.
func (t *Tree) Export() *ViewNode {
	return t.export(t.root)
}

func (t *Tree) export(h Handle) *ViewNode {
	n := &t.nodes[h]
	v := &ViewNode{Record: n.rec}
	if len(n.children) > 0 {
		v.Children = make([]*ViewNode, 0, len(n.children))
		for _, c := range n.children {
			v.Children = append(v.Children, t.export(c))
		}
	}
	return v
}

// Count returns the number of nodes in the subtree.
func (v *ViewNode) Count() int {
	if v == nil {
		return 0
	}
	n := 1
	for _, c := range v.Children {
		n += c.Count()
	}
	return n
}

// Snapshot converts the view into its JSON form, children in insertion order.
func (v *ViewNode) Snapshot() models.Snapshot {
	s := models.Snapshot{Record: v.Record}
	for _, c := range v.Children {
		s.Children = append(s.Children, c.Snapshot())
	}
	return s
}

// Row is one visible line of a flattened tree.
type Row struct {
	Depth       int
	Path        string
	Record      models.Record
	HasChildren bool
	Collapsed   bool
}

// PathSep joins ids in Row.Path.
const PathSep = "/"

// Flatten walks the view in pre-order with siblings ordered by cmp. Rows
// whose path is reported collapsed keep their own line but hide their
// descendants. collapsed may be nil.
func Flatten(root *ViewNode, cmp Comparator, collapsed func(path string) bool) []Row {
	if root == nil {
		return nil
	}
	var rows []Row
	var walk func(v *ViewNode, depth int, parentPath string)
	walk = func(v *ViewNode, depth int, parentPath string) {
		path := v.Record.ID
		if parentPath != "" {
			path = parentPath + PathSep + v.Record.ID
		}
		row := Row{
			Depth:       depth,
			Path:        path,
			Record:      v.Record,
			HasChildren: len(v.Children) > 0,
		}
		if row.HasChildren && collapsed != nil && collapsed(path) {
			row.Collapsed = true
		}
		rows = append(rows, row)
		if row.Collapsed {
			return
		}
		for _, c := range cmp.Sorted(v.Children) {
			walk(c, depth+1, path)
		}
	}
	walk(root, 0, "")
	return rows
}

// Ancestors returns the paths of every ancestor of path, nearest last.
func Ancestors(path string) []string {
	parts := strings.Split(path, PathSep)
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], PathSep))
	}
	return out
}
