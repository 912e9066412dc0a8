package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"AccountDesk/internal/account"
	"AccountDesk/internal/client"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

const requestTimeout = 30 * time.Second

// deskClient is the part of client.Client the TUI drives.
type deskClient interface {
	ListAccounts(ctx context.Context) ([]account.Account, string, error)
	CreateSession(ctx context.Context) (client.SessionState, error)
	Select(ctx context.Context, sessionID string, id int64) (client.SessionState, string, error)
	Update(ctx context.Context, sessionID string, name string, limit decimal.Decimal) (client.Outcome, error)
	Commit(ctx context.Context, sessionID string) (client.Resolution, error)
	Rollback(ctx context.Context, sessionID string) (client.Resolution, error)
}

type focus int

const (
	focusGrid focus = iota
	focusName
	focusLimit
)

// Messages carrying server replies back into Update.
type (
	sessionMsg struct {
		state client.SessionState
		err   error
	}
	accountsMsg struct {
		rows       []account.Account
		diagnostic string
		err        error
	}
	selectMsg struct {
		state      client.SessionState
		diagnostic string
		err        error
	}
	outcomeMsg struct {
		out client.Outcome
		err error
	}
	resolveMsg struct {
		res    client.Resolution
		commit bool
		err    error
	}
)

type keyMap struct {
	Quit    key.Binding
	Select  key.Binding
	Switch  key.Binding
	Propose key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Refresh key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c/esc", "quit"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "edit row"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next field"),
		),
		Propose: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "alter"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "cancel"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh"),
		),
	}
}

// ShortHelp returns keybindings to show in the minimized help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Switch, k.Propose, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Select, k.Switch, k.Propose},
		{k.Confirm, k.Cancel},
		{k.Refresh, k.Quit},
	}
}

// Styles for the UI.
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("44")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	reviewStyle = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
)

type model struct {
	addr    string
	client  deskClient
	session string

	grid  table.Model
	name  textinput.Model
	limit textinput.Model
	focus focus

	help help.Model
	keys keyMap

	// review holds the parked change while it waits for y/n.
	pending  bool
	baseline *account.Baseline
	proposed *account.Proposed

	status  string
	loading bool
	err     error
	width   int
	height  int
}

func newModel(addr string, c deskClient) model {
	grid := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Name", Width: 28},
			{Title: "Limit", Width: 14},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	grid.SetStyles(s)

	name := textinput.New()
	name.Prompt = "Name:  "
	name.Placeholder = "select a row first"
	name.CharLimit = 120

	limit := textinput.New()
	limit.Prompt = "Limit: "
	limit.Placeholder = "0.00"
	limit.CharLimit = 32

	return model{
		addr:   addr,
		client: c,
		grid:   grid,
		name:   name,
		limit:  limit,
		help:   help.New(),
		keys:   newKeyMap(),
		status: "Connecting to " + addr,
	}
}

// Init satisfies the tea.Model interface.
func (m model) Init() tea.Cmd {
	return tea.Batch(m.openSession(), m.loadAccounts())
}

func (m model) openSession() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := c.CreateSession(ctx)
		return sessionMsg{state: st, err: err}
	}
}

func (m model) loadAccounts() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rows, diagnostic, err := c.ListAccounts(ctx)
		return accountsMsg{rows: rows, diagnostic: diagnostic, err: err}
	}
}

func (m model) selectAccount(id int64) tea.Cmd {
	c, sid := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, diagnostic, err := c.Select(ctx, sid, id)
		return selectMsg{state: st, diagnostic: diagnostic, err: err}
	}
}

func (m model) propose(name string, limit decimal.Decimal) tea.Cmd {
	c, sid := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		out, err := c.Update(ctx, sid, name, limit)
		return outcomeMsg{out: out, err: err}
	}
}

func (m model) resolve(commit bool) tea.Cmd {
	c, sid := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var (
			res client.Resolution
			err error
		)
		if commit {
			res, err = c.Commit(ctx, sid)
		} else {
			res, err = c.Rollback(ctx, sid)
		}
		return resolveMsg{res: res, commit: commit, err: err}
	}
}

// Update satisfies the tea.Model interface.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

		// title, address, blank, two inputs, blank, status, help, borders
		const chromeLines = 12
		h := m.height - chromeLines
		if m.pending {
			h -= 5
		}
		if h < 3 {
			h = 3
		}
		m.grid.SetHeight(h)
		m.name.Width = m.width - 14
		m.limit.Width = m.width - 14
		m.help.Width = m.width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionMsg:
		if msg.err != nil {
			m.fail("Could not open an edit session", msg.err)
			return m, nil
		}
		m.session = msg.state.ID
		m.status = "Connected to " + m.addr
		return m, nil

	case accountsMsg:
		m.loading = false
		if msg.err != nil {
			m.fail("Could not load accounts", msg.err)
			return m, nil
		}
		m.grid.SetRows(toRows(msg.rows))
		if msg.diagnostic != "" {
			m.err = errors.New(msg.diagnostic)
		}
		return m, nil

	case selectMsg:
		m.loading = false
		if msg.err != nil {
			m.fail("Could not select the account", msg.err)
			return m, nil
		}
		if msg.diagnostic != "" || msg.state.Baseline == nil || msg.state.Selected == nil {
			m.err = errors.New(msg.diagnostic)
			m.status = "Account could not be read"
			return m, nil
		}
		m.name.SetValue(msg.state.Baseline.Name)
		m.limit.SetValue(msg.state.Baseline.Limit.String())
		m.err = nil
		m.status = fmt.Sprintf("Editing account %d", *msg.state.Selected)
		return m, m.setFocus(focusName)

	case outcomeMsg:
		m.loading = false
		if msg.err != nil {
			m.fail("Update failed", msg.err)
			return m, nil
		}
		m.err = nil
		m.status = msg.out.Message
		if msg.out.Pending() {
			m.pending = true
			m.baseline = msg.out.Session.Baseline
			m.proposed = msg.out.Session.Proposed
			return m, m.setFocus(focusGrid)
		}
		if msg.out.Kind == "conflict" {
			// Show what is stored now; the row must be selected again.
			return m, m.loadAccounts()
		}
		return m, nil

	case resolveMsg:
		m.loading = false
		m.pending = false
		m.baseline, m.proposed = nil, nil
		if msg.err != nil {
			m.fail("Could not finish the change", msg.err)
			return m, m.loadAccounts()
		}
		m.status = msg.res.Message
		if !msg.res.OK {
			m.err = errors.New(msg.res.Message)
		} else {
			m.err = nil
		}
		m.name.SetValue("")
		m.limit.SetValue("")
		return m, m.loadAccounts()
	}

	return m.updateFocused(msg)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// esc does not abandon a parked change; ctrl+c still quits and the
	// server rolls it back when the session closes.
	if m.pending && msg.String() == "esc" {
		m.status = "Confirm (y) or cancel (n) the pending change first."
		return m, nil
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	// While a change is parked only y and n mean anything.
	if m.pending {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.loading = true
			m.status = "Saving..."
			return m, m.resolve(true)
		case key.Matches(msg, m.keys.Cancel):
			m.loading = true
			m.status = "Cancelling..."
			return m, m.resolve(false)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		m.status = "Refreshing..."
		return m, m.loadAccounts()

	case key.Matches(msg, m.keys.Switch):
		return m, m.setFocus((m.focus + 1) % 3)

	case key.Matches(msg, m.keys.Propose):
		if m.session == "" {
			m.err = errors.New("no edit session")
			return m, nil
		}
		limit, err := decimal.NewFromString(strings.TrimSpace(m.limit.Value()))
		if err != nil {
			m.err = errors.Newf("limit %q is not a number", m.limit.Value())
			return m, nil
		}
		m.loading = true
		m.status = "Applying..."
		m.err = nil
		return m, m.propose(strings.TrimSpace(m.name.Value()), limit)

	case key.Matches(msg, m.keys.Select) && m.focus == focusGrid:
		row := m.grid.SelectedRow()
		if row == nil || m.session == "" {
			return m, nil
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.loading = true
		m.status = "Reading account..."
		return m, m.selectAccount(id)
	}

	return m.updateFocused(msg)
}

// updateFocused hands msg to the component that owns the keyboard.
func (m model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusGrid:
		m.grid, cmd = m.grid.Update(msg)
	case focusName:
		m.name, cmd = m.name.Update(msg)
	case focusLimit:
		m.limit, cmd = m.limit.Update(msg)
	}
	return m, cmd
}

func (m *model) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.grid.Blur()
	m.name.Blur()
	m.limit.Blur()

	switch f {
	case focusName:
		return m.name.Focus()
	case focusLimit:
		return m.limit.Focus()
	default:
		m.grid.Focus()
		return nil
	}
}

func (m *model) fail(status string, err error) {
	m.loading = false
	m.status = status
	m.err = err
}

// View draws the entire interface.
func (m model) View() string {
	title := titleStyle.Render("AccountDesk") + " " + subtle.Render("account editor")
	addr := subtle.Render("Server: " + m.addr)

	grid := boxStyle.Render(m.grid.View())
	inputs := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, m.name.View(), m.limit.View()))

	status := m.status
	if m.loading {
		status += " (working...)"
	}
	statusLine := statusStyle.Render(status)
	if m.err != nil {
		statusLine += "\n" + errorStyle.Render(m.err.Error())
	}

	parts := []string{title, addr, "", grid, inputs}
	if m.pending {
		parts = append(parts, m.reviewView())
	}
	parts = append(parts, "", statusLine, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) reviewView() string {
	var b strings.Builder
	b.WriteString("Confirm this change? (y/n)\n")
	if m.baseline != nil {
		b.WriteString("Old: " + m.baseline.String() + "\n")
	}
	if m.proposed != nil {
		b.WriteString("New: " + m.proposed.String())
	}
	return reviewStyle.Render(b.String())
}

func toRows(accounts []account.Account) []table.Row {
	rows := make([]table.Row, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, table.Row{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			a.Limit.StringFixed(2),
		})
	}
	return rows
}
