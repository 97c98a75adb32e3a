package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/session"
)

// Controller is the part of the driver loop the UI talks to.
type Controller interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	TogglePause() bool
}

const connectTimeout = 10 * time.Second

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeDetail
)

const (
	focusAddr = iota
	focusTree
)

const eventsHeight = 8

type Model struct {
	ctrl   Controller
	mode   mode
	width  int
	height int

	// Components
	addr   *addrField
	tree   *TreeView
	focus  *FocusManager
	search textinput.Model
	detail viewport.Model
	help   help.Model
	events *EventLog

	// Session state
	connecting bool
	connected  bool
	sessionID  string
	remote     string
	paused     bool
	stats      session.PassStats
	query      string
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding
	Toggle   key.Binding
	Collapse key.Binding
	Expand   key.Binding
	Connect  key.Binding
	Pause    key.Binding
	Sort     key.Binding
	Search   key.Binding
	Next     key.Binding
	Detail   key.Binding
	Events   key.Binding
	Focus    key.Binding
	Back     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "page down"),
	),
	Home: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "bottom"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "space"),
		key.WithHelp("space", "fold"),
	),
	Collapse: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "collapse"),
	),
	Expand: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "expand"),
	),
	Connect: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "connect/disconnect"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Sort: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5"),
		key.WithHelp("1-5", "sort"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Next: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "next match"),
	),
	Detail: key.NewBinding(
		key.WithKeys("enter", "d"),
		key.WithHelp("enter", "details"),
	),
	Events: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "events"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "address/tree"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
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

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Pause, k.Sort, k.Search, k.Toggle, k.Detail, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.Toggle, k.Collapse, k.Expand, k.Detail},
		{k.Connect, k.Pause, k.Sort, k.Search, k.Next},
		{k.Events, k.Focus, k.Back, k.Help, k.Quit},
	}
}

var sortKeys = map[string]callstack.SortKey{
	"1": callstack.SortTotalBytes,
	"2": callstack.SortSelfBytes,
	"3": callstack.SortTotalCount,
	"4": callstack.SortSelfCount,
	"5": callstack.SortName,
}

// NewModel creates the UI. addr pre-fills the address field and cmp is the
// initial sibling order.
func NewModel(ctrl Controller, addr string, cmp callstack.Comparator) Model {
	m := Model{
		ctrl:   ctrl,
		mode:   modeBrowse,
		addr:   newAddrField(addr),
		tree:   NewTreeView(cmp),
		help:   help.New(),
		events: NewEventLog(),
	}
	m.focus = NewFocusManager(m.addr, m.tree)

	m.search = textinput.New()
	m.search.Prompt = "/"
	m.search.Placeholder = "function name"
	m.search.CharLimit = 128

	m.detail = viewport.New(0, 0)
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()

	case connectResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.events.Add("CONNECT", fmt.Sprintf("%s: %v", msg.addr, msg.err), EventError)
		}

	case connectedMsg:
		m.connected = true
		m.sessionID = msg.sessionID
		m.remote = msg.addr
		m.events.Add("CONNECT", fmt.Sprintf("connected to %s (session %s)", msg.addr, shortID(msg.sessionID)), EventSuccess)
		cmds = append(cmds, m.focus.SetFocus(focusTree))

	case disconnectedMsg:
		m.connected = false
		m.paused = false
		m.sessionID = ""
		m.stats = session.PassStats{}
		m.tree.SetRoot(nil)
		if m.mode == modeDetail {
			m.mode = modeBrowse
		}
		if msg.cause != nil {
			m.events.Add("DISCONNECT", msg.cause.Error(), EventWarning)
		} else {
			m.events.Add("DISCONNECT", "session "+shortID(msg.sessionID)+" closed", EventInfo)
		}

	case snapshotMsg:
		if m.sessionID != "" && msg.snap.SessionID != m.sessionID {
			break
		}
		m.tree.SetRoot(msg.snap.Root)
		m.stats = msg.snap.Stats
		m.paused = msg.snap.Paused

	case errMsg:
		m.events.AddError("PROTOCOL", msg.err)

	case detailRenderedMsg:
		m.detail.SetContent(msg.content)
		m.detail.GotoTop()
		m.mode = modeDetail

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeDetail:
			return m.updateDetail(msg)
		}
		if key.Matches(msg, keys.Focus) {
			return m, m.focus.Next()
		}
		if m.focus.Current() == focusAddr {
			return m.updateAddr(msg)
		}
		return m.updateTree(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateAddr(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m.toggleConnection()
	case tea.KeyEsc:
		return m, m.focus.SetFocus(focusTree)
	}
	return m, m.addr.Update(msg)
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.search.Blur()
		m.updateSizes()
		return m, nil
	case tea.KeyEnter:
		m.mode = modeBrowse
		m.search.Blur()
		m.updateSizes()
		m.query = strings.TrimSpace(m.search.Value())
		m.find()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back), msg.String() == "d":
		m.mode = modeBrowse
		return m, nil
	case msg.String() == "q":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		m.tree.Move(-1)
	case key.Matches(msg, keys.Down):
		m.tree.Move(1)
	case key.Matches(msg, keys.PageUp):
		m.tree.Move(-m.tree.Page())
	case key.Matches(msg, keys.PageDown):
		m.tree.Move(m.tree.Page())
	case key.Matches(msg, keys.Home):
		m.tree.Top()
	case key.Matches(msg, keys.End):
		m.tree.Bottom()
	case key.Matches(msg, keys.Toggle):
		m.tree.Toggle()
	case key.Matches(msg, keys.Collapse):
		m.tree.Collapse()
	case key.Matches(msg, keys.Expand):
		m.tree.Expand()
	case key.Matches(msg, keys.Connect):
		return m.toggleConnection()
	case key.Matches(msg, keys.Pause):
		if !m.connected {
			break
		}
		m.paused = m.ctrl.TogglePause()
		if m.paused {
			m.events.Add("PAUSE", "updates paused", EventInfo)
		} else {
			m.events.Add("PAUSE", "updates resumed", EventInfo)
		}
	case key.Matches(msg, keys.Sort):
		m.tree.SetComparator(m.tree.Comparator().Select(sortKeys[msg.String()]))
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		m.updateSizes()
		m.search.SetValue(m.query)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd
	case key.Matches(msg, keys.Next):
		m.find()
	case key.Matches(msg, keys.Detail):
		if _, ok := m.tree.Selected(); ok {
			return m, m.renderDetail()
		}
	case key.Matches(msg, keys.Events):
		m.events.Toggle()
		m.updateSizes()
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.updateSizes()
	}
	return m, nil
}

func (m Model) toggleConnection() (tea.Model, tea.Cmd) {
	if m.connected {
		if err := m.ctrl.Disconnect(); err != nil {
			m.events.AddError("DISCONNECT", err)
		}
		return m, nil
	}
	if m.connecting {
		return m, nil
	}
	addr := strings.TrimSpace(m.addr.Value())
	if addr == "" {
		m.events.Add("CONNECT", "enter an address first", EventWarning)
		return m, m.focus.SetFocus(focusAddr)
	}
	m.connecting = true
	m.events.Add("CONNECT", "connecting to "+addr, EventInfo)
	return m, m.connect(addr)
}

func (m *Model) find() {
	if m.query == "" {
		return
	}
	if !m.tree.Find(m.query) {
		m.events.Add("SEARCH", fmt.Sprintf("no match for %q", m.query), EventWarning)
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("memprof"), " ", m.addr.View())

	var body string
	if m.mode == modeDetail {
		body = m.detail.View()
	} else {
		body = m.tree.View()
	}

	parts := []string{header, body}
	if m.events.IsVisible() {
		parts = append(parts, m.events.View(m.width, eventsHeight))
	}
	if m.mode == modeSearch {
		parts = append(parts, m.search.View())
	}
	parts = append(parts, m.statusLine(), m.help.View(keys))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) statusLine() string {
	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Width(m.width)

	var b strings.Builder
	switch {
	case m.connected:
		fmt.Fprintf(&b, "● %s", m.remote)
	case m.connecting:
		b.WriteString("◌ connecting")
	default:
		b.WriteString("○ disconnected")
	}
	if m.paused {
		b.WriteString(" [PAUSED]")
	}
	if m.connected {
		fmt.Fprintf(&b, " • %d nodes", m.tree.Root().Count())
		if m.stats.Lines > 0 {
			fmt.Fprintf(&b, " • last pass %s: %d records, %d pruned, %s",
				m.stats.Outcome, m.stats.Records, m.stats.Pruned, m.stats.Duration.Round(time.Millisecond))
		}
	}
	fmt.Fprintf(&b, " • sort %s", m.tree.Comparator())
	if ev, ok := m.events.Last(); ok && !m.events.IsVisible() && ev.Level == EventError {
		fmt.Fprintf(&b, " • %s", ev.Content)
	}
	return statusStyle.Render(b.String())
}

func (m *Model) updateSizes() {
	used := 1 + 1 + 1 // header, status, help
	if m.help.ShowAll {
		used += 5
	}
	if m.events.IsVisible() {
		used += eventsHeight
	}
	if m.mode == modeSearch {
		used++
	}
	bodyHeight := max(4, m.height-used)

	m.tree.SetSize(m.width, bodyHeight)
	m.detail.Width = m.width
	m.detail.Height = bodyHeight
	m.help.Width = m.width
	m.search.Width = max(10, m.width-4)
}

// Commands
func (m Model) connect(addr string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return connectResultMsg{addr: addr, err: ctrl.Connect(ctx, addr)}
	}
}

func (m Model) renderDetail() tea.Cmd {
	row, _ := m.tree.Selected()
	width := m.width
	return func() tea.Msg {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(20, width-4)),
		)
		if err != nil {
			return errMsg{err}
		}
		rendered, err := renderer.Render(detailMarkdown(row))
		if err != nil {
			return errMsg{err}
		}
		return detailRenderedMsg{content: rendered}
	}
}

// detailMarkdown describes one node for the detail pane.
func detailMarkdown(row callstack.Row) string {
	r := row.Record
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Name)
	fmt.Fprintf(&b, "`%s` at depth %d\n\n", r.ID, row.Depth)
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Total bytes | %s |\n", callstack.FormatBytes(r.TotalBytes))
	fmt.Fprintf(&b, "| Self bytes | %s |\n", callstack.FormatBytes(r.SelfBytes))
	fmt.Fprintf(&b, "| Total count | %s |\n", callstack.FormatCount(r.TotalCount))
	fmt.Fprintf(&b, "| Self count | %s |\n", callstack.FormatCount(r.SelfCount))
	fmt.Fprintf(&b, "| Self count / frame | %s |\n", callstack.FormatRate(r.SelfCountPerFrame))
	fmt.Fprintf(&b, "| Calls / frame | %s |\n", callstack.FormatRate(r.CallsPerFrame))
	if anc := callstack.Ancestors(row.Path); len(anc) > 0 {
		fmt.Fprintf(&b, "\n---\n\n**Call path:** `%s`\n", row.Path)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
