// Package tui implements the full-screen terminal interface: a lazily
// expanding node tree on the left, a content pane for task output and
// scripts on the right, and overlays for the why-inspector, variables,
// and confirmations. It is a Bubble Tea app over one connected session.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ectop-dev/ectop/pkg/cache"
)

// State glyphs — convey meaning without relying on color alone.
var stateGlyphs = map[cache.State]string{
	cache.StateUnknown:   "⚪",
	cache.StateComplete:  "🟢",
	cache.StateQueued:    "🔵",
	cache.StateAborted:   "🔴",
	cache.StateSubmitted: "🟡",
	cache.StateActive:    "🔥",
	cache.StateSuspended: "🟠",
}

const (
	glyphFamily    = "📂"
	glyphTask      = "⚙️"
	glyphCollapsed = "▸"
	glyphExpanded  = "▾"
	glyphSatisfied = "✅"
	glyphUnmet     = "❌"
	glyphUnknown   = "❓"
)

func stateGlyph(s cache.State) string {
	if g, ok := stateGlyphs[s]; ok {
		return g
	}
	return stateGlyphs[cache.StateUnknown]
}

func kindGlyph(k cache.Kind) string {
	if k == cache.KindTask {
		return glyphTask
	}
	return glyphFamily
}

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

// --- Header and status bar styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var hostBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

var staleBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorRed).
	Padding(0, 1)

// --- Tree styles ---

var (
	treeNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	treeSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	treeMatch = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	treeDim = lipgloss.NewStyle().
		Faint(true)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// --- Overlay styles ---

var overlayBorder = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorCyan).
	Padding(1, 2)

var confirmStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorRed).
	Padding(1, 2).
	Bold(true)

// --- Error style ---

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var okStyle = lipgloss.NewStyle().
	Foreground(colorGreen)

// --- Spinner style ---

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
