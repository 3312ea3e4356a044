package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/search"
	"github.com/ectop-dev/ectop/pkg/session"
)

// treeRow is one visible line of the tree.
type treeRow struct {
	node     cache.Node
	depth    int
	expanded bool
	pending  bool // children not fetched yet
	leaf     bool // enumerated and childless
}

// treePanel renders the lazily expanded node tree. Only nodes whose
// ancestors are all expanded produce rows, and the state filter prunes
// branches with no matching descendants.
type treePanel struct {
	sess     *session.Session
	expanded map[string]bool
	filter   search.StateFilter
	pred     search.Predicate
	matches  map[string]bool // current search hits, highlighted

	rows   []treeRow
	cursor int
	offset int

	width  int
	height int
}

func newTreePanel(sess *session.Session) treePanel {
	return treePanel{
		sess:     sess,
		expanded: make(map[string]bool),
		matches:  make(map[string]bool),
	}
}

// Rebuild recomputes the visible rows from the cache. Call after every
// sync, expansion, or filter change; cursor position is preserved by
// path where possible.
func (t *treePanel) Rebuild() {
	var selected string
	if r, ok := t.Selected(); ok {
		selected = r.Path
	}

	visible := t.sess.Search().Visible(t.filter, t.pred)
	t.rows = t.rows[:0]
	for _, root := range t.sess.Cache().Roots() {
		t.appendRows(root, 0, visible)
	}

	t.cursor = 0
	for i, r := range t.rows {
		if r.node.Path == selected {
			t.cursor = i
			break
		}
	}
	t.clampScroll()
}

func (t *treePanel) appendRows(n cache.Node, depth int, visible map[string]bool) {
	if !visible[n.Path] {
		return
	}
	children, populated := t.sess.Cache().ChildrenOf(n.Path)
	row := treeRow{
		node:     n,
		depth:    depth,
		expanded: t.expanded[n.Path],
		pending:  !populated,
		leaf:     populated && len(children) == 0,
	}
	t.rows = append(t.rows, row)
	if !row.expanded || !populated {
		return
	}
	for _, c := range children {
		t.appendRows(c, depth+1, visible)
	}
}

// Selected returns the node under the cursor.
func (t *treePanel) Selected() (cache.Node, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return cache.Node{}, false
	}
	return t.rows[t.cursor].node, true
}

// CursorUp moves the selection up one row.
func (t *treePanel) CursorUp() {
	if t.cursor > 0 {
		t.cursor--
	}
	t.clampScroll()
}

// CursorDown moves the selection down one row.
func (t *treePanel) CursorDown() {
	if t.cursor < len(t.rows)-1 {
		t.cursor++
	}
	t.clampScroll()
}

// Toggle flips the expansion of the selected node. It reports the path
// needing a lazy fetch when the node's children are unknown, or "" when
// the toggle was purely local.
func (t *treePanel) Toggle() string {
	row, ok := t.selectedRow()
	if !ok || row.node.Kind == cache.KindTask {
		return ""
	}
	if t.expanded[row.node.Path] {
		delete(t.expanded, row.node.Path)
		t.Rebuild()
		return ""
	}
	t.expanded[row.node.Path] = true
	if row.pending {
		return row.node.Path
	}
	t.Rebuild()
	return ""
}

// Collapse folds the selected node, or jumps to its parent when already
// folded.
func (t *treePanel) Collapse() {
	row, ok := t.selectedRow()
	if !ok {
		return
	}
	if t.expanded[row.node.Path] {
		delete(t.expanded, row.node.Path)
		t.Rebuild()
		return
	}
	if parent := cache.ParentPath(row.node.Path); parent != "" {
		t.SelectPath(parent)
	}
}

// SelectPath expands every ancestor of path and moves the cursor to it.
// It reports the deepest unfetched ancestor when lazy data is missing.
func (t *treePanel) SelectPath(path string) string {
	path = cache.Normalize(path)
	segs := strings.Split(path, "/")
	prefix := ""
	for _, seg := range segs[:len(segs)-1] {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}
		t.expanded[prefix] = true
		if _, populated := t.sess.Cache().ChildrenOf(prefix); !populated {
			t.Rebuild()
			return prefix
		}
	}
	t.Rebuild()
	for i, r := range t.rows {
		if r.node.Path == path {
			t.cursor = i
			break
		}
	}
	t.clampScroll()
	return ""
}

// SetFilter installs the state filter and rebuilds.
func (t *treePanel) SetFilter(f search.StateFilter) {
	t.filter = f
	t.Rebuild()
}

// SetMatches highlights the given search hits.
func (t *treePanel) SetMatches(paths []string) {
	t.matches = make(map[string]bool, len(paths))
	for _, p := range paths {
		t.matches[p] = true
	}
}

func (t *treePanel) selectedRow() (treeRow, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return treeRow{}, false
	}
	return t.rows[t.cursor], true
}

func (t *treePanel) clampScroll() {
	visible := t.height - 2 // border
	if visible < 1 {
		visible = 1
	}
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+visible {
		t.offset = t.cursor - visible + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// View renders the tree panel.
func (t *treePanel) View() string {
	if t.width <= 0 {
		return ""
	}
	innerW := t.width - 2
	visible := t.height - 2
	if visible < 1 {
		visible = 1
	}

	var b strings.Builder
	end := t.offset + visible
	if end > len(t.rows) {
		end = len(t.rows)
	}
	for i := t.offset; i < end; i++ {
		b.WriteString(t.renderRow(i, innerW))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	if len(t.rows) == 0 {
		b.WriteString(treeDim.Render("(no nodes — check the filter or connection)"))
	}

	title := "Nodes"
	if t.filter != search.FilterAll {
		title = fmt.Sprintf("Nodes [%s]", t.filter.Label())
	}
	return panelBorder.Width(innerW).Height(visible).Render(
		panelTitle.Render(title) + "\n" + b.String())
}

func (t *treePanel) renderRow(i, width int) string {
	r := t.rows[i]
	n := r.node

	marker := " "
	switch {
	case n.Kind == cache.KindTask || r.leaf:
		marker = " "
	case r.expanded:
		marker = glyphExpanded
	default:
		marker = glyphCollapsed
	}

	line := fmt.Sprintf("%s%s %s %s %s",
		strings.Repeat("  ", r.depth),
		marker,
		stateGlyph(n.State),
		kindGlyph(n.Kind),
		n.Name())
	if r.pending && n.Kind != cache.KindTask {
		line += " …"
	}
	line = runewidth.Truncate(line, width, "…")

	switch {
	case i == t.cursor:
		return treeSelected.Render(line)
	case t.matches[n.Path]:
		return treeMatch.Render(line)
	default:
		return treeNormal.Render(line)
	}
}
