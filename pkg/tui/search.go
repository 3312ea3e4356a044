package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ectop-dev/ectop/pkg/search"
)

// searchBar renders the incremental node search line. Every keystroke
// refines the previous cursor through the search engine in a tea.Cmd;
// the session token discards results that land after the query has
// moved on. Enter commits and jumps, Esc abandons. The session is held
// by pointer: the model is copied on every update, and the token
// counter must stay shared across those copies.
type searchBar struct {
	active bool
	input  textinput.Model

	engine  *search.Engine
	session *search.Session
	cursor  *search.Cursor
}

func newSearchBar(engine *search.Engine) searchBar {
	ti := textinput.New()
	ti.Placeholder = "node name..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	return searchBar{input: ti, engine: engine, session: &search.Session{}}
}

// Open activates the search bar and focuses the text input.
func (s *searchBar) Open() {
	s.active = true
	s.input.Reset()
	s.input.Focus()
	s.cursor = nil
}

// Close deactivates the bar and drops the current result set.
func (s *searchBar) Close() {
	s.active = false
	s.input.Blur()
	s.cursor = nil
	s.session.Reset()
}

// Update handles key events while the bar is active. committed reports
// Enter; closed reports Esc.
func (s *searchBar) Update(msg tea.KeyMsg) (closed, committed bool, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		s.Close()
		return true, false, nil
	case "enter":
		s.active = false
		s.input.Blur()
		return false, true, nil
	}

	var c tea.Cmd
	s.input, c = s.input.Update(msg)

	// Refine off the update loop; the token supersedes this command the
	// moment another keystroke begins a newer one.
	token := s.session.Begin()
	prev, engine, query := s.cursor, s.engine, s.input.Value()
	refine := func() tea.Msg {
		return searchResultMsg{token: token, cursor: engine.Refine(prev, query)}
	}
	return false, false, tea.Batch(c, refine)
}

// Deliver installs an asynchronously computed result set. It reports
// false when a newer query superseded the result.
func (s *searchBar) Deliver(msg searchResultMsg) bool {
	if !s.session.Deliver(msg.token, msg.cursor) {
		return false
	}
	s.cursor = msg.cursor
	return true
}

// IsActive reports whether the bar is accepting input.
func (s *searchBar) IsActive() bool { return s.active }

// HasQuery reports whether a committed query is still live.
func (s *searchBar) HasQuery() bool {
	return s.cursor != nil && s.cursor.Query != ""
}

// Cursor exposes the current result set.
func (s *searchBar) Cursor() *search.Cursor { return s.cursor }

// View renders the bar with match counts.
func (s *searchBar) View() string {
	if !s.active && !s.HasQuery() {
		return ""
	}
	var result string
	if s.active {
		result = s.input.View()
	} else {
		result = keyDescStyle.Render("/" + s.cursor.Query)
	}
	if s.cursor != nil && s.cursor.Query != "" {
		if s.cursor.Len() > 0 {
			result += "  " + okStyle.Render(fmt.Sprintf("%d/%d", s.cursor.Pos()+1, s.cursor.Len()))
		} else {
			result += "  " + errorStyle.Render("no matches")
		}
		if s.cursor.Partial {
			result += "  " + keyDescStyle.Render("(unexpanded subtrees not searched)")
		}
	}
	return result
}
