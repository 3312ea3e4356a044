package tui

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/logging"
	"github.com/ectop-dev/ectop/pkg/session"
)

// Config holds the parameters needed to launch the TUI.
type Config struct {
	Session *session.Session
	Host    string
	Port    int
	Refresh time.Duration
	Editor  string
	Logger  *logging.Logger
}

// Model is the top-level Bubble Tea model.
type Model struct {
	sess *session.Session
	log  *logging.Logger

	// Components
	tree    treePanel
	content contentPanel
	search  searchBar
	spinner spinner.Model

	// Overlays
	why     whyOverlay
	confirm confirmOverlay
	overlay overlayKind

	varsPath string
	varsText []session.VarEntry

	// Script editing
	editPath     string
	editOriginal string

	// Connection display
	host    string
	port    int
	refresh time.Duration
	editor  string

	syncing   bool
	statusMsg string
	statusErr bool

	width  int
	height int
}

// Run starts the TUI over an already-connected session and blocks until
// the user quits.
func Run(cfg Config) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		sess:    cfg.Session,
		log:     cfg.Logger,
		tree:    newTreePanel(cfg.Session),
		content: newContentPanel(),
		search:  newSearchBar(cfg.Session.Search()),
		spinner: sp,
		host:    cfg.Host,
		port:    cfg.Port,
		refresh: cfg.Refresh,
		editor:  cfg.Editor,
	}
	m.tree.Rebuild()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init schedules the spinner and the first refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tickCmd())
}

// --- Commands ---

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) syncCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return syncDoneMsg{err: sess.Sync().FullSync(context.Background())}
	}
}

func (m Model) expandCmd(path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return expandDoneMsg{path: path, err: sess.Sync().Expand(context.Background(), path)}
	}
}

func (m Model) refreshCmd(path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return expandDoneMsg{path: path, err: sess.Sync().Refresh(context.Background(), path)}
	}
}

func (m Model) artifactCmd(path string, kind gateway.ArtifactKind, offset int64) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		data, err := sess.Artifact(context.Background(), path, kind, offset)
		return artifactMsg{path: path, kind: kind, data: data, err: err, tail: offset > 0}
	}
}

func (m Model) opCmd(verb, path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		switch verb {
		case "suspend":
			err = sess.Ops().Suspend(ctx, path)
		case "resume":
			err = sess.Ops().Resume(ctx, path)
		case "kill":
			err = sess.Ops().Kill(ctx, path)
		case "force complete":
			err = sess.Ops().ForceComplete(ctx, path)
		case "requeue":
			err = sess.Ops().Requeue(ctx, path)
		case "halt":
			err = sess.Ops().HaltServer(ctx)
		case "restart":
			err = sess.Ops().RestartServer(ctx)
		}
		return opDoneMsg{verb: verb, path: path, err: err}
	}
}

// fetchScriptForEdit downloads the script and stages it in a temp file.
func (m Model) fetchScriptForEdit(path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		content, err := sess.Script(context.Background(), path)
		if err != nil {
			return editorStartMsg{path: path, err: err}
		}
		f, err := os.CreateTemp("", "ectop-"+filepath.Base(path)+"-*.ecf")
		if err != nil {
			return editorStartMsg{path: path, err: err}
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return editorStartMsg{path: path, err: err}
		}
		f.Close()
		return editorStartMsg{path: path, file: f.Name(), original: content}
	}
}

func (m Model) saveScriptCmd(path, file, original string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		defer os.Remove(file)
		edited, err := os.ReadFile(file)
		if err != nil {
			return scriptSavedMsg{path: path, err: err}
		}
		if string(edited) == original {
			return scriptSavedMsg{path: path, err: errUnchanged}
		}
		err = sess.Ops().SetScript(context.Background(), path, string(edited))
		return scriptSavedMsg{path: path, err: err}
	}
}

// --- Update ---

// Update processes messages and returns the updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.syncing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tickMsg:
		m.syncing = true
		cmds = append(cmds, m.syncCmd(), m.tickCmd(), m.spinner.Tick)
		// Tail the output pane while it is showing a log.
		if m.content.path != "" && m.content.kind == gateway.ArtifactJobout {
			offset := m.content.Offset(m.content.path, gateway.ArtifactJobout)
			cmds = append(cmds, m.artifactCmd(m.content.path, gateway.ArtifactJobout, offset))
		}

	case syncDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.log.Printf("sync: %v", msg.err)
		} else {
			m.tree.Rebuild()
		}

	case expandDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("fetch /%s: %v", msg.path, msg.err), true)
			m.log.Printf("expand %s: %v", msg.path, msg.err)
		} else {
			m.tree.Rebuild()
		}

	case searchResultMsg:
		if m.search.Deliver(msg) {
			if cur := m.search.Cursor(); cur != nil {
				m.tree.SetMatches(cur.Matches)
			}
			m.tree.Rebuild()
		}

	case artifactMsg:
		if msg.err != nil {
			if !msg.tail {
				m.content.ShowError(msg.path, msg.kind, msg.err)
			}
		} else if msg.tail {
			if len(msg.data) > 0 {
				m.content.Append(msg.path, msg.kind, msg.data)
			}
		} else {
			m.content.Show(msg.path, msg.kind, msg.data)
		}

	case opDoneMsg:
		target := "/" + msg.path
		if msg.path == "" {
			target = "server"
		}
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s %s: %v", msg.verb, target, msg.err), true)
			m.log.Printf("%s %s: %v", msg.verb, target, msg.err)
		} else {
			m.setStatus(fmt.Sprintf("%s %s: ok", msg.verb, target), false)
			m.tree.Rebuild()
		}

	case editorStartMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("edit /%s: %v", msg.path, msg.err), true)
			return m, nil
		}
		m.editPath = msg.path
		m.editOriginal = msg.original
		c := exec.Command(m.editor, msg.file)
		file := msg.file
		path := msg.path
		return m, tea.ExecProcess(c, func(err error) tea.Msg {
			return editorDoneMsg{path: path, file: file, err: err}
		})

	case editorDoneMsg:
		if msg.err != nil {
			os.Remove(msg.file)
			m.setStatus(fmt.Sprintf("editor: %v", msg.err), true)
			return m, nil
		}
		return m, m.saveScriptCmd(msg.path, msg.file, m.editOriginal)

	case scriptSavedMsg:
		if msg.err == errUnchanged {
			m.setStatus("script unchanged", false)
		} else if msg.err != nil {
			m.setStatus(fmt.Sprintf("push script /%s: %v", msg.path, msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("script pushed to /%s — press R to requeue", msg.path), false)
		}
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search bar captures all input while active. Highlights catch up
	// when the refined result set arrives as a searchResultMsg.
	if m.search.IsActive() {
		closed, committed, cmd := m.search.Update(msg)
		if closed {
			m.tree.SetMatches(nil)
			m.tree.Rebuild()
			return m, cmd
		}
		if committed {
			return m.jumpToMatch()
		}
		return m, cmd
	}

	if !m.search.IsActive() && key.Matches(msg, keys.Quit) && m.overlay == overlayNone {
		return m, tea.Quit
	}

	// Overlays swallow keys first.
	switch m.overlay {
	case overlayWhy:
		switch {
		case key.Matches(msg, keys.Up):
			m.why.CursorUp()
		case key.Matches(msg, keys.Down):
			m.why.CursorDown()
		case key.Matches(msg, keys.Expand):
			if target := m.why.JumpTarget(); target != "" {
				m.overlay = overlayNone
				if pending := m.tree.SelectPath(target); pending != "" {
					return m, m.expandCmd(pending)
				}
			}
		case msg.String() == "esc" || key.Matches(msg, keys.Why) || key.Matches(msg, keys.Quit):
			m.overlay = overlayNone
		}
		return m, nil
	case overlayVars, overlayHelp:
		switch msg.String() {
		case "esc", "v", "?", "q":
			m.overlay = overlayNone
		}
		return m, nil
	case overlayConfirm:
		switch msg.String() {
		case "y", "Y":
			m.overlay = overlayNone
			return m, m.opCmd(m.confirm.verb, m.confirm.path)
		case "n", "N", "esc":
			m.overlay = overlayNone
		}
		return m, nil
	}

	if msg.String() == "esc" && m.search.HasQuery() {
		m.search.Close()
		m.tree.SetMatches(nil)
		m.tree.Rebuild()
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Up):
		m.tree.CursorUp()

	case key.Matches(msg, keys.Down):
		m.tree.CursorDown()

	case key.Matches(msg, keys.Expand):
		if pending := m.tree.Toggle(); pending != "" {
			return m, m.expandCmd(pending)
		}

	case key.Matches(msg, keys.Collapse):
		m.tree.Collapse()

	case key.Matches(msg, keys.Refresh):
		if n, ok := m.tree.Selected(); ok {
			return m, m.refreshCmd(n.Path)
		}
		m.syncing = true
		return m, tea.Batch(m.syncCmd(), m.spinner.Tick)

	case key.Matches(msg, keys.Output):
		return m.fetchArtifact(gateway.ArtifactJobout)

	case key.Matches(msg, keys.Script):
		return m.fetchArtifact(gateway.ArtifactScript)

	case key.Matches(msg, keys.Job):
		return m.fetchArtifact(gateway.ArtifactJob)

	case key.Matches(msg, keys.Vars):
		if n, ok := m.tree.Selected(); ok {
			vars, err := m.sess.Variables(n.Path)
			if err != nil {
				m.setStatus(err.Error(), true)
				return m, nil
			}
			m.varsPath = n.Path
			m.varsText = vars
			m.overlay = overlayVars
		}

	case key.Matches(msg, keys.Why):
		if n, ok := m.tree.Selected(); ok {
			ex, err := m.sess.Explain(n.Path)
			if err != nil {
				m.setStatus(err.Error(), true)
				return m, nil
			}
			m.why.Show(ex)
			m.overlay = overlayWhy
		}

	case key.Matches(msg, keys.Edit):
		if n, ok := m.tree.Selected(); ok && n.Kind == cache.KindTask {
			return m, m.fetchScriptForEdit(n.Path)
		}
		m.setStatus("select a task to edit its script", true)

	case key.Matches(msg, keys.Suspend):
		if n, ok := m.tree.Selected(); ok {
			return m, m.opCmd("suspend", n.Path)
		}

	case key.Matches(msg, keys.Resume):
		if n, ok := m.tree.Selected(); ok {
			return m, m.opCmd("resume", n.Path)
		}

	case key.Matches(msg, keys.Kill):
		if n, ok := m.tree.Selected(); ok {
			m.confirm.Show("kill", n.Path)
			m.overlay = overlayConfirm
		}

	case key.Matches(msg, keys.Force):
		if n, ok := m.tree.Selected(); ok {
			m.confirm.Show("force complete", n.Path)
			m.overlay = overlayConfirm
		}

	case key.Matches(msg, keys.Requeue):
		if n, ok := m.tree.Selected(); ok {
			m.confirm.Show("requeue", n.Path)
			m.overlay = overlayConfirm
		}

	case key.Matches(msg, keys.Filter):
		m.tree.SetFilter(m.tree.filter.Next())

	case key.Matches(msg, keys.Halt):
		verb := "halt"
		if m.sess.Cache().ServerStatus() == "halted" {
			verb = "restart"
		}
		m.confirm.Show(verb, "")
		m.overlay = overlayConfirm

	case key.Matches(msg, keys.Search):
		m.search.Open()

	case key.Matches(msg, keys.NextHit):
		if cur := m.search.Cursor(); cur != nil && cur.Len() > 0 {
			cur.Next()
			return m.jumpToMatch()
		}

	case key.Matches(msg, keys.PrevHit):
		if cur := m.search.Cursor(); cur != nil && cur.Len() > 0 {
			cur.Prev()
			return m.jumpToMatch()
		}

	case key.Matches(msg, keys.PgUp):
		m.content.PageUp()

	case key.Matches(msg, keys.PgDown):
		m.content.PageDown()

	case key.Matches(msg, keys.Help):
		m.overlay = overlayHelp
	}

	return m, nil
}

// jumpToMatch moves the tree selection to the search cursor's current
// match, expanding (and fetching) ancestors as needed.
func (m Model) jumpToMatch() (tea.Model, tea.Cmd) {
	cur := m.search.Cursor()
	if cur == nil {
		return m, nil
	}
	target, ok := cur.Current()
	if !ok {
		return m, nil
	}
	if pending := m.tree.SelectPath(target); pending != "" {
		return m, m.expandCmd(pending)
	}
	return m, nil
}

// fetchArtifact requests content for the selected task.
func (m Model) fetchArtifact(kind gateway.ArtifactKind) (tea.Model, tea.Cmd) {
	n, ok := m.tree.Selected()
	if !ok {
		return m, nil
	}
	if n.Kind != cache.KindTask {
		m.setStatus("outputs and scripts belong to tasks", true)
		return m, nil
	}
	return m, m.artifactCmd(n.Path, kind, 0)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusMsg = text
	m.statusErr = isErr
}

// layoutPanels recalculates panel dimensions from the terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}
	headerH := 1
	statusH := 1
	keyH := 1
	mainH := m.height - headerH - statusH - keyH
	if mainH < 4 {
		mainH = 4
	}

	treeW := m.width * 40 / 100
	if treeW < 30 {
		treeW = 30
	}
	if treeW > 60 {
		treeW = 60
	}
	if treeW > m.width-20 {
		treeW = m.width / 2
	}

	m.tree.width = treeW
	m.tree.height = mainH
	m.content.SetSize(m.width-treeW, mainH)
}

// --- View ---

// View renders the complete interface.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	header := m.renderHeader()

	switch m.overlay {
	case overlayWhy:
		return header + "\n" + m.why.render(m.width, m.height-2) + "\n" + keyBarText(m.overlay, false)
	case overlayVars:
		return header + "\n" + renderVarsOverlay(m.varsPath, m.varsText, m.width, m.height-2) + "\n" + keyBarText(m.overlay, false)
	case overlayConfirm:
		return header + "\n" + m.confirm.render(m.width, m.height-2) + "\n" + keyBarText(m.overlay, false)
	case overlayHelp:
		return header + "\n" + renderHelpOverlay(m.width, m.height-2) + "\n" + keyBarText(m.overlay, false)
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.tree.View(), m.content.View())

	status := m.renderStatusLine()
	keyBar := keyBarText(m.overlay, m.search.IsActive())

	return header + "\n" + main + "\n" + status + "\n" + keyBar
}

// renderStatusLine shows either the search bar or the last status text.
func (m Model) renderStatusLine() string {
	if m.search.IsActive() || m.search.HasQuery() {
		return m.search.View()
	}
	if m.statusMsg != "" {
		if m.statusErr {
			return errorStyle.Render(m.statusMsg)
		}
		return okStyle.Render(m.statusMsg)
	}
	return ""
}

// renderHeader builds the top header line with connection health.
func (m Model) renderHeader() string {
	title := headerStyle.Render("ectop")
	endpoint := hostBadgeStyle.Render(fmt.Sprintf("%s:%d", m.host, m.port))

	c := m.sess.Cache()
	serverStatus := c.ServerStatus()
	if serverStatus == "" {
		serverStatus = "unknown"
	}

	st := m.sess.Sync().Status()
	var health string
	switch {
	case st.Degraded:
		since := ""
		if !st.LastSync.IsZero() {
			since = " since " + st.LastSync.Format("15:04:05")
		}
		health = staleBadgeStyle.Render("STALE" + since)
	case m.syncing:
		health = m.spinner.View() + " syncing"
	default:
		health = keyDescStyle.Render("synced " + st.LastSync.Format("15:04:05"))
	}

	left := title + " " + endpoint + "  " + valueStyle.Render(serverStatus)
	right := health

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}
