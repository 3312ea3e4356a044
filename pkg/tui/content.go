package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/ectop-dev/ectop/pkg/gateway"
)

// contentPanel renders task artifacts (output, script, job file) in a
// scrollable viewport. It remembers the byte offset per path+kind so a
// refreshed output fetch can tail instead of re-downloading.
type contentPanel struct {
	viewport viewport.Model

	path string
	kind gateway.ArtifactKind
	text string
	err  string

	// offsets records how much of each artifact is already displayed,
	// keyed by "path/kind".
	offsets map[string]int64

	width  int
	height int
	ready  bool
}

func newContentPanel() contentPanel {
	return contentPanel{offsets: make(map[string]int64)}
}

// SetSize updates the viewport dimensions.
func (p *contentPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := width - 4
	contentH := height - 3
	if contentW < 1 {
		contentW = 1
	}
	if contentH < 1 {
		contentH = 1
	}

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.viewport.SetContent(p.text)
}

// Show replaces the panel content with a freshly fetched artifact.
func (p *contentPanel) Show(path string, kind gateway.ArtifactKind, data []byte) {
	p.path = path
	p.kind = kind
	p.err = ""
	p.text = string(data)
	p.offsets[path+"/"+string(kind)] = int64(len(data))
	if p.ready {
		p.viewport.SetContent(p.text)
		p.viewport.GotoBottom()
	}
}

// Append extends the current artifact with tailed bytes.
func (p *contentPanel) Append(path string, kind gateway.ArtifactKind, data []byte) {
	if path != p.path || kind != p.kind {
		p.Show(path, kind, data)
		return
	}
	p.text += string(data)
	p.offsets[path+"/"+string(kind)] += int64(len(data))
	if p.ready {
		p.viewport.SetContent(p.text)
		p.viewport.GotoBottom()
	}
}

// Offset returns how many bytes of the artifact are already shown, for
// tailing fetches.
func (p *contentPanel) Offset(path string, kind gateway.ArtifactKind) int64 {
	return p.offsets[path+"/"+string(kind)]
}

// ShowError displays a fetch failure in place of content.
func (p *contentPanel) ShowError(path string, kind gateway.ArtifactKind, err error) {
	p.path = path
	p.kind = kind
	p.err = err.Error()
	p.text = ""
	if p.ready {
		p.viewport.SetContent(errorStyle.Render(p.err))
	}
}

// Clear empties the panel.
func (p *contentPanel) Clear() {
	p.path = ""
	p.text = ""
	p.err = ""
	if p.ready {
		p.viewport.SetContent("")
	}
}

// PageUp scrolls up one page.
func (p *contentPanel) PageUp() {
	if p.ready {
		p.viewport.PageUp()
	}
}

// PageDown scrolls down one page.
func (p *contentPanel) PageDown() {
	if p.ready {
		p.viewport.PageDown()
	}
}

// View renders the content panel.
func (p *contentPanel) View() string {
	if p.width <= 0 {
		return ""
	}
	title := "Content"
	if p.path != "" {
		title = fmt.Sprintf("%s — /%s", artifactTitle(p.kind), p.path)
	}
	body := p.viewport.View()
	if p.path == "" {
		body = keyDescStyle.Render("Select a task and press l (output), S (script), or J (job file).")
	}
	return panelBorder.Width(p.width - 2).Height(p.height - 2).Render(
		panelTitle.Render(title) + "\n" + body)
}

func artifactTitle(kind gateway.ArtifactKind) string {
	switch kind {
	case gateway.ArtifactScript:
		return "Script"
	case gateway.ArtifactJob:
		return "Job file"
	default:
		return "Output"
	}
}
