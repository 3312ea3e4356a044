package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Refresh  key.Binding
	Output   key.Binding
	Script   key.Binding
	Job      key.Binding
	Vars     key.Binding
	Why      key.Binding
	Edit     key.Binding
	Suspend  key.Binding
	Resume   key.Binding
	Kill     key.Binding
	Force    key.Binding
	Requeue  key.Binding
	Filter   key.Binding
	Halt     key.Binding
	Search   key.Binding
	NextHit  key.Binding
	PrevHit  key.Binding
	PgUp     key.Binding
	PgDown   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Expand: key.NewBinding(
		key.WithKeys("enter", "right"),
		key.WithHelp("enter", "expand/collapse"),
	),
	Collapse: key.NewBinding(
		key.WithKeys("left"),
		key.WithHelp("←", "collapse"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Output: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "output"),
	),
	Script: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "script"),
	),
	Job: key.NewBinding(
		key.WithKeys("J"),
		key.WithHelp("J", "job file"),
	),
	Vars: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "vars"),
	),
	Why: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "why"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit script"),
	),
	Suspend: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "suspend"),
	),
	Resume: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "resume"),
	),
	Kill: key.NewBinding(
		key.WithKeys("k"),
		key.WithHelp("k", "kill"),
	),
	Force: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "force complete"),
	),
	Requeue: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "requeue"),
	),
	Filter: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "cycle filter"),
	),
	Halt: key.NewBinding(
		key.WithKeys("H"),
		key.WithHelp("H", "halt/restart server"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	NextHit: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "next match"),
	),
	PrevHit: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "prev match"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(overlay overlayKind, searching bool) string {
	if searching {
		return keyStyle.Render("Enter") + keyDescStyle.Render(":jump") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":cancel")
	}
	switch overlay {
	case overlayWhy:
		return keyStyle.Render("↑↓") + keyDescStyle.Render(":clause") + "  " +
			keyStyle.Render("Enter") + keyDescStyle.Render(":jump to node") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":close")
	case overlayVars, overlayHelp:
		return keyStyle.Render("Esc") + keyDescStyle.Render(":close") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	case overlayConfirm:
		return keyStyle.Render("y") + keyDescStyle.Render(":confirm") + "  " +
			keyStyle.Render("n") + keyDescStyle.Render("/Esc:cancel")
	}
	return keyStyle.Render("↑↓") + keyDescStyle.Render(":move") + "  " +
		keyStyle.Render("enter") + keyDescStyle.Render(":expand") + "  " +
		keyStyle.Render("w") + keyDescStyle.Render(":why") + "  " +
		keyStyle.Render("l") + keyDescStyle.Render(":output") + "  " +
		keyStyle.Render("v") + keyDescStyle.Render(":vars") + "  " +
		keyStyle.Render("/") + keyDescStyle.Render(":search") + "  " +
		keyStyle.Render("c") + keyDescStyle.Render(":filter") + "  " +
		keyStyle.Render("?") + keyDescStyle.Render(":help") + "  " +
		keyStyle.Render("q") + keyDescStyle.Render(":quit")
}
