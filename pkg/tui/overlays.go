package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ectop-dev/ectop/pkg/session"
	"github.com/ectop-dev/ectop/pkg/trigger"
)

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayWhy
	overlayVars
	overlayConfirm
	overlayHelp
)

// --- Why inspector ---

// whyClause is one selectable line of the flattened clause tree.
type whyClause struct {
	depth  int
	status trigger.Status
	text   string
	detail string
	target string
}

// whyOverlay shows a node's dependency explanation with a cursor over
// the clauses, so Enter can jump the tree to the referenced node.
type whyOverlay struct {
	ex      *session.Explanation
	clauses []whyClause
	cursor  int
}

func (w *whyOverlay) Show(ex *session.Explanation) {
	w.ex = ex
	w.clauses = w.clauses[:0]
	w.cursor = 0
	if ex.Result != nil {
		w.flatten(ex.Result, 0)
	}
}

func (w *whyOverlay) flatten(r *trigger.Result, depth int) {
	w.clauses = append(w.clauses, whyClause{
		depth:  depth,
		status: r.Status,
		text:   r.Text,
		detail: r.Detail,
		target: r.Target,
	})
	for _, c := range r.Children {
		w.flatten(c, depth+1)
	}
}

func (w *whyOverlay) CursorUp() {
	if w.cursor > 0 {
		w.cursor--
	}
}

func (w *whyOverlay) CursorDown() {
	if w.cursor < len(w.clauses)-1 {
		w.cursor++
	}
}

// JumpTarget returns the node path the selected clause references.
func (w *whyOverlay) JumpTarget() string {
	if w.cursor < 0 || w.cursor >= len(w.clauses) {
		return ""
	}
	return w.clauses[w.cursor].target
}

func statusMark(s trigger.Status) string {
	switch s {
	case trigger.Satisfied:
		return glyphSatisfied
	case trigger.Unmet:
		return glyphUnmet
	default:
		return glyphUnknown
	}
}

func (w *whyOverlay) render(width, height int) string {
	ex := w.ex
	var b strings.Builder
	fmt.Fprintf(&b, "%s /%s %s %s\n\n",
		labelStyle.Render("Why is"), ex.Path, labelStyle.Render("in state"),
		stateGlyph(ex.State)+" "+string(ex.State))

	if ex.Reason != "" {
		fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("server:"), valueStyle.Render(ex.Reason))
	}

	switch {
	case ex.Trigger == "":
		b.WriteString(keyDescStyle.Render("no trigger expression") + "\n")
	case ex.ParseErr != nil:
		fmt.Fprintf(&b, "%s %s\n%s\n",
			labelStyle.Render("trigger:"), valueStyle.Render(ex.Trigger),
			keyDescStyle.Render(fmt.Sprintf("(not decomposable: %v)", ex.ParseErr)))
	default:
		for i, c := range w.clauses {
			line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", c.depth), statusMark(c.status), c.text)
			if c.detail != "" {
				line += keyDescStyle.Render("  " + c.detail)
			}
			if i == w.cursor {
				line = treeSelected.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	for _, l := range ex.InLimits {
		if !l.Known {
			fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("limit"), l.Name, keyDescStyle.Render("not in cache"))
			continue
		}
		mark := glyphSatisfied
		if l.Consumed >= l.Max {
			mark = glyphUnmet
		}
		fmt.Fprintf(&b, "%s %s %s %d/%d\n", mark, labelStyle.Render("limit"), l.Name, l.Consumed, l.Max)
	}
	for _, tm := range ex.Times {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("time"), tm)
	}
	for _, d := range ex.Dates {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("date"), d)
	}
	for _, c := range ex.Crons {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("cron"), c)
	}

	return centerBox(b.String(), width, height)
}

// --- Variables overlay ---

func renderVarsOverlay(path string, vars []session.VarEntry, width, height int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s /%s\n\n", labelStyle.Render("Variables of"), path)
	if len(vars) == 0 {
		b.WriteString(keyDescStyle.Render("(no variables)"))
	}
	for _, v := range vars {
		tag := ""
		switch {
		case v.Generated:
			tag = keyDescStyle.Render("  (generated)")
		case v.Inherited:
			tag = keyDescStyle.Render("  (from /" + v.Origin + ")")
		}
		fmt.Fprintf(&b, "%s = %s%s\n", labelStyle.Render(v.Name), valueStyle.Render(v.Value), tag)
	}
	return centerBox(b.String(), width, height)
}

// --- Confirmation overlay ---

// confirmOverlay asks before destructive operations.
type confirmOverlay struct {
	prompt string
	verb   string
	path   string
}

func (c *confirmOverlay) Show(verb, path string) {
	c.verb = verb
	c.path = path
	if path == "" {
		c.prompt = fmt.Sprintf("%s the server?", verb)
	} else {
		c.prompt = fmt.Sprintf("%s /%s?", verb, path)
	}
}

func (c *confirmOverlay) render(width, height int) string {
	box := confirmStyle.Render(c.prompt + "\n\n" +
		keyStyle.Render("y") + keyDescStyle.Render(":confirm") + "   " +
		keyStyle.Render("n") + keyDescStyle.Render(":cancel"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// --- Help overlay ---

const helpText = `# ectop

## Tree
| key | action |
|-----|--------|
| ↑ ↓ | move the selection |
| enter / → | expand (fetching lazily) or collapse |
| ← | collapse, or jump to the parent |
| c | cycle the state filter (all, aborted, active, suspended) |
| / | incremental search; n / N step through matches |
| r | refresh the selected subtree |

## Inspect
| key | action |
|-----|--------|
| w | why is this node not running |
| v | variables, including inherited ones |
| l | task output (tails live) |
| S | task script |
| J | generated job file |

## Control
| key | action |
|-----|--------|
| s / u | suspend / resume |
| k | kill |
| f | force complete |
| R | requeue |
| e | edit the script and push it back |
| H | halt or restart the server |
`

func renderHelpOverlay(width, height int) string {
	contentW := width - 12
	if contentW < 40 {
		contentW = 40
	}
	return centerBox(renderMarkdownWidth(helpText, contentW), width, height)
}

// centerBox wraps content in the overlay border, centered on screen.
func centerBox(content string, width, height int) string {
	contentW := width - 8
	if contentW < 50 {
		contentW = 50
	}
	box := overlayBorder.Width(contentW).Render(content)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
