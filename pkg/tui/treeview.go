package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/evanschultz/memprof-client/pkg/callstack"
)

const numColWidth = 10

type column struct {
	title string
	key   callstack.SortKey
	sort  bool
}

// Metric columns, left to right. Sortable ones map to keys 1-4; 5 sorts by name.
var columns = []column{
	{title: "TkBytes", key: callstack.SortTotalBytes, sort: true},
	{title: "SkBytes", key: callstack.SortSelfBytes, sort: true},
	{title: "TCount", key: callstack.SortTotalCount, sort: true},
	{title: "SCount", key: callstack.SortSelfCount, sort: true},
	{title: "SCount/F"},
	{title: "Calls/F"},
}

// TreeView shows the latest snapshot as an indented, collapsible table.
type TreeView struct {
	root      *callstack.ViewNode
	rows      []callstack.Row
	cmp       callstack.Comparator
	collapsed map[string]bool
	cursor    int
	offset    int
	width     int
	height    int
	focused   bool

	// Styles
	focusedStyle   lipgloss.Style
	unfocusedStyle lipgloss.Style
	headerStyle    lipgloss.Style
	cursorStyle    lipgloss.Style
	bulletStyle    lipgloss.Style
}

// NewTreeView creates an empty tree view sorted by cmp.
func NewTreeView(cmp callstack.Comparator) *TreeView {
	return &TreeView{
		cmp:       cmp,
		collapsed: make(map[string]bool),
		focusedStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")),
		unfocusedStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),
		cursorStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")),
		bulletStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

func (t *TreeView) Focus() tea.Cmd { t.focused = true; return nil }
func (t *TreeView) Blur() tea.Cmd  { t.focused = false; return nil }
func (t *TreeView) Focused() bool  { return t.focused }

// SetSize sets the outer size including the border.
func (t *TreeView) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.scroll()
}

// SetRoot replaces the displayed snapshot. The cursor stays on the same
// path when it still exists.
func (t *TreeView) SetRoot(root *callstack.ViewNode) {
	selected, hadSelection := t.Selected()
	t.root = root
	if root == nil {
		t.collapsed = make(map[string]bool)
	}
	t.refresh()
	if hadSelection {
		t.selectPath(selected.Path)
	}
}

// Root returns the displayed snapshot.
func (t *TreeView) Root() *callstack.ViewNode { return t.root }

// Comparator returns the sibling order.
func (t *TreeView) Comparator() callstack.Comparator { return t.cmp }

// SetComparator re-sorts the rows, keeping the cursor on its node.
func (t *TreeView) SetComparator(cmp callstack.Comparator) {
	selected, ok := t.Selected()
	t.cmp = cmp
	t.refresh()
	if ok {
		t.selectPath(selected.Path)
	}
}

// Rows returns the visible rows.
func (t *TreeView) Rows() []callstack.Row { return t.rows }

// Cursor returns the selected row index.
func (t *TreeView) Cursor() int { return t.cursor }

// Selected returns the row under the cursor.
func (t *TreeView) Selected() (callstack.Row, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return callstack.Row{}, false
	}
	return t.rows[t.cursor], true
}

// Move shifts the cursor by delta rows, clamped.
func (t *TreeView) Move(delta int) {
	t.cursor += delta
	t.clamp()
	t.scroll()
}

// Top moves to the first row.
func (t *TreeView) Top() { t.cursor = 0; t.scroll() }

// Bottom moves to the last row.
func (t *TreeView) Bottom() {
	t.cursor = len(t.rows) - 1
	t.clamp()
	t.scroll()
}

// Page is the number of rows visible at once.
func (t *TreeView) Page() int {
	// border plus header
	return max(1, t.height-3)
}

// Toggle collapses or expands the selected row.
func (t *TreeView) Toggle() {
	row, ok := t.Selected()
	if !ok || !row.HasChildren {
		return
	}
	t.setCollapsed(row.Path, !row.Collapsed)
}

// Collapse folds the selected row, or moves to its parent when it is
// already folded or a leaf.
func (t *TreeView) Collapse() {
	row, ok := t.Selected()
	if !ok {
		return
	}
	if row.HasChildren && !row.Collapsed {
		t.setCollapsed(row.Path, true)
		return
	}
	if anc := callstack.Ancestors(row.Path); len(anc) > 0 {
		t.selectPath(anc[len(anc)-1])
	}
}

// Expand unfolds the selected row.
func (t *TreeView) Expand() {
	if row, ok := t.Selected(); ok && row.Collapsed {
		t.setCollapsed(row.Path, false)
	}
}

// Find moves the cursor to the next node whose name contains query,
// searching folded subtrees too and unfolding the match's ancestors.
func (t *TreeView) Find(query string) bool {
	all := callstack.Flatten(t.root, t.cmp, nil)
	from := -1
	if row, ok := t.Selected(); ok {
		for i := range all {
			if all[i].Path == row.Path {
				from = i
				break
			}
		}
	}
	idx := callstack.FindNext(all, from, query)
	if idx < 0 {
		return false
	}
	for _, p := range callstack.Ancestors(all[idx].Path) {
		delete(t.collapsed, p)
	}
	t.refresh()
	t.selectPath(all[idx].Path)
	return true
}

func (t *TreeView) setCollapsed(path string, collapsed bool) {
	if collapsed {
		t.collapsed[path] = true
	} else {
		delete(t.collapsed, path)
	}
	t.refresh()
	t.selectPath(path)
}

func (t *TreeView) refresh() {
	t.rows = callstack.Flatten(t.root, t.cmp, func(path string) bool {
		return t.collapsed[path]
	})
	t.clamp()
	t.scroll()
}

func (t *TreeView) selectPath(path string) {
	for i := range t.rows {
		if t.rows[i].Path == path {
			t.cursor = i
			t.scroll()
			return
		}
	}
}

func (t *TreeView) clamp() {
	if t.cursor >= len(t.rows) {
		t.cursor = len(t.rows) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

func (t *TreeView) scroll() {
	page := t.Page()
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+page {
		t.offset = t.cursor - page + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// View renders the header and the visible rows inside a border.
func (t *TreeView) View() string {
	inner := max(20, t.width-2)
	nameWidth := max(8, inner-len(columns)*numColWidth)

	var content strings.Builder
	content.WriteString(t.renderHeader(nameWidth))

	if len(t.rows) == 0 {
		content.WriteString("\n")
		content.WriteString(t.bulletStyle.Render("No snapshot yet"))
	}

	end := min(len(t.rows), t.offset+t.Page())
	for i := t.offset; i < end; i++ {
		content.WriteString("\n")
		line := t.renderRow(t.rows[i], nameWidth)
		if i == t.cursor && t.focused {
			line = t.cursorStyle.Render(line)
		}
		content.WriteString(line)
	}

	style := t.unfocusedStyle
	if t.focused {
		style = t.focusedStyle
	}
	return style.Width(inner).Height(max(1, t.height-2)).Render(content.String())
}

func (t *TreeView) renderHeader(nameWidth int) string {
	cells := []string{pad("Name"+t.arrow(callstack.SortName), nameWidth)}
	for _, c := range columns {
		title := c.title
		if c.sort {
			title += t.arrow(c.key)
		}
		cells = append(cells, padLeft(title, numColWidth))
	}
	return t.headerStyle.Render(strings.Join(cells, ""))
}

func (t *TreeView) arrow(key callstack.SortKey) string {
	if t.cmp.Key != key {
		return ""
	}
	if t.cmp.Order == callstack.Ascending {
		return "▲"
	}
	return "▼"
}

func (t *TreeView) renderRow(row callstack.Row, nameWidth int) string {
	indent := strings.Repeat("  ", row.Depth)

	bullet := "•"
	switch {
	case row.Collapsed:
		bullet = "▸"
	case row.HasChildren:
		bullet = "▾"
	case row.Depth > 0:
		bullet = "◦"
	}

	r := row.Record
	name := indent + bullet + " " + r.Name
	cells := []string{
		pad(name, nameWidth),
		padLeft(callstack.FormatBytes(r.TotalBytes), numColWidth),
		padLeft(callstack.FormatBytes(r.SelfBytes), numColWidth),
		padLeft(callstack.FormatCount(r.TotalCount), numColWidth),
		padLeft(callstack.FormatCount(r.SelfCount), numColWidth),
		padLeft(callstack.FormatRate(r.SelfCountPerFrame), numColWidth),
		padLeft(callstack.FormatRate(r.CallsPerFrame), numColWidth),
	}
	return strings.Join(cells, "")
}

// pad truncates or right-pads s to exactly width cells.
func pad(s string, width int) string {
	s = truncate(s, width)
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}

func padLeft(s string, width int) string {
	s = truncate(s, width)
	return strings.Repeat(" ", max(0, width-lipgloss.Width(s))) + s
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
