// Package tui is the interactive editing surface: a post list, a title
// field, a markdown body and a summary pane.
package tui

import (
	"context"
	"sync"

	"smartblog/internal/app"
	"smartblog/internal/documents"
	"smartblog/internal/logging"
	"smartblog/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	sidebarWidth  = 30
	minBodyHeight = 3
)

type focus int

const (
	focusSidebar focus = iota
	focusTitle
	focusBody
	focusSummary
	focusCount
)

// Messages
type (
	// stateChangedMsg means a store changed; the model re-reads both.
	stateChangedMsg struct{}

	summaryResetMsg    struct{}
	summaryFragmentMsg struct{ text string }

	grammarResultMsg struct {
		postID string
		sel    lineSelection
		text   string
	}

	opDoneMsg struct {
		op  string
		err error
	}
)

// bridge carries store notifications and stream output from other
// goroutines into the program.
type bridge struct {
	events  chan tea.Msg
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
	unsubs  []func()
}

func newBridge() *bridge {
	return &bridge{
		events:  make(chan tea.Msg, 64),
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// notify records that state changed. Notifications coalesce.
func (b *bridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// send delivers msg unless the program has shut down.
func (b *bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// next waits for the next notification or event.
func (b *bridge) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.changed:
			return stateChangedMsg{}
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) close() {
	b.once.Do(func() {
		for _, unsub := range b.unsubs {
			unsub()
		}
		close(b.done)
	})
}

// paneOutput streams summary fragments into the program.
type paneOutput struct{ b *bridge }

func (o paneOutput) Reset()              { o.b.send(summaryResetMsg{}) }
func (o paneOutput) Append(frag string) { o.b.send(summaryFragmentMsg{text: frag}) }

// Model is the bubbletea model.
type Model struct {
	app    *app.App
	styles Styles
	bridge *bridge
	ctx    context.Context

	width, height int

	// Auth form
	email     textinput.Model
	password  textinput.Model
	authField int

	// Editor
	title     textinput.Model
	body      textarea.Model
	summaryVP viewport.Model
	summary   string
	renderer  *glamour.TermRenderer
	spinner   spinner.Model

	focus    focus
	cursor   int
	loadedID string
	mark     int

	busy       string
	generating bool
	notice     string
	errText    string

	sess session.State
	docs documents.State
}

// New builds the model over a started workspace.
func New(ctx context.Context, a *app.App) Model {
	styles := DefaultStyles()

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email    "
	email.CharLimit = 254

	password := textinput.New()
	password.Placeholder = "at least 6 characters"
	password.Prompt = "Password "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	title := textinput.New()
	title.Placeholder = "Title"
	title.Prompt = ""
	title.CharLimit = 200

	body := textarea.New()
	body.Placeholder = "Start writing. Markdown is supported."
	body.ShowLineNumbers = false
	body.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	m := Model{
		app:       a,
		styles:    styles,
		bridge:    newBridge(),
		ctx:       ctx,
		email:     email,
		password:  password,
		title:     title,
		body:      body,
		summaryVP: viewport.New(40, 4),
		spinner:   sp,
		mark:      -1,
	}
	m.bridge.unsubs = append(m.bridge.unsubs,
		a.Session.Subscribe(func(_, _ session.State) { m.bridge.notify() }),
		a.Docs.Subscribe(func(_, _ documents.State) { m.bridge.notify() }),
	)
	m.sync()
	m.layout(100, 30)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.bridge.next())
}

// Shutdown stops bridge delivery. The caller closes the workspace.
func (m Model) Shutdown() {
	m.bridge.close()
}

// sync re-reads both stores and reloads the editor when the active post changed.
func (m *Model) sync() {
	highlighted := ""
	if m.cursor < len(m.docs.Drafts) {
		highlighted = m.docs.Drafts[m.cursor].ID
	}
	m.sess = m.app.Session.State()
	m.docs = m.app.Docs.State()

	if !m.sess.Authenticated() {
		m.loadedID = ""
		m.setAuthField(m.authField)
		return
	}
	// The cursor follows the active post only when that changes; otherwise
	// it stays on the highlighted post.
	if m.docs.ActiveID != m.loadedID {
		m.loadActive()
		highlighted = m.docs.ActiveID
	}
	for i, p := range m.docs.Drafts {
		if p.ID == highlighted {
			m.cursor = i
		}
	}
	if m.cursor >= len(m.docs.Drafts) {
		m.cursor = max(0, len(m.docs.Drafts)-1)
	}
}

// loadActive fills the editor from the active post's pending edit.
func (m *Model) loadActive() {
	m.loadedID = m.docs.ActiveID
	m.mark = -1
	m.summary = ""
	m.renderSummary()

	p := m.docs.Pending
	if p == nil {
		m.title.SetValue("")
		m.body.SetValue("")
		return
	}
	m.title.SetValue(p.Title)
	m.body.SetValue(bodyOf(p))
	logging.UIDebug("Editor loaded post %s", m.loadedID)
	if m.focus == focusSidebar || m.focus == focusSummary {
		return
	}
	m.setFocus(m.focus)
}

func (m *Model) setAuthField(i int) {
	m.authField = i % 2
	if m.authField == 0 {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.email.Blur()
	}
}

func (m *Model) setFocus(f focus) {
	m.focus = f % focusCount
	m.title.Blur()
	m.body.Blur()
	switch m.focus {
	case focusTitle:
		m.title.Focus()
	case focusBody:
		m.body.Focus()
	}
}

// layout sizes every component for a width x height terminal.
func (m *Model) layout(width, height int) {
	m.width, m.height = width, height

	editorWidth := max(20, width-sidebarWidth-6)
	summaryHeight := max(3, height/4)
	// header, footer, title pane, and the borders of body and summary panes
	bodyHeight := max(minBodyHeight, height-summaryHeight-11)

	m.title.Width = editorWidth - 2
	m.body.SetWidth(editorWidth)
	m.body.SetHeight(bodyHeight)
	m.summaryVP.Width = editorWidth
	m.summaryVP.Height = summaryHeight
	m.email.Width = min(50, width-12)
	m.password.Width = min(50, width-12)

	style := "light"
	if m.styles.Theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(editorWidth-2),
	)
	if err == nil {
		m.renderer = r
	}
	m.renderSummary()
}

func (m *Model) renderSummary() {
	if m.summary == "" {
		m.summaryVP.SetContent(m.styles.Muted.Render("ctrl+g summarizes the post"))
		return
	}
	out := m.summary
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(m.summary); err == nil {
			out = rendered
		}
	}
	m.summaryVP.SetContent(out)
	m.summaryVP.GotoBottom()
}
