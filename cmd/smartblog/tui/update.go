package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"smartblog/internal/app"
	"smartblog/internal/content"
	"smartblog/internal/generation"
	"smartblog/internal/logging"
	"smartblog/internal/session"
	"smartblog/internal/types"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// shutdownFlushTimeout bounds the final save on quit.
const shutdownFlushTimeout = 5 * time.Second

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout(msg.Width, msg.Height)
		return m, nil

	case stateChangedMsg:
		m.sync()
		return m, m.bridge.next()

	case summaryResetMsg:
		m.summary = ""
		m.renderSummary()
		return m, m.bridge.next()

	case summaryFragmentMsg:
		m.summary += msg.text
		m.renderSummary()
		return m, m.bridge.next()

	case grammarResultMsg:
		if msg.postID == m.loadedID {
			m.body.SetValue(replaceLines(m.body.Value(), msg.sel, msg.text))
			m.mark = -1
			m.contentChanged()
		}
		return m, m.bridge.next()

	case opDoneMsg:
		m.finish(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdown()
			return m, tea.Quit
		}
		if !m.sess.Authenticated() {
			return m.updateAuth(msg)
		}
		return m.updateEditor(msg)
	}
	return m, nil
}

// finish records the outcome of an asynchronous operation.
func (m *Model) finish(msg opDoneMsg) {
	m.busy = ""
	if msg.op == "summary" || msg.op == "grammar" {
		m.generating = false
	}
	m.sync()

	switch {
	case msg.err == nil:
		m.errText = ""
	case errors.Is(msg.err, generation.ErrNoSelection):
		m.notice = generation.SelectionPrompt
	case errors.Is(msg.err, generation.ErrEmptyInput):
		m.notice = "Write something first, then summarize."
	case app.IsCancelled(msg.err):
		m.notice = "Generation cancelled"
	case msg.op == "auth":
		// the session records its own error
	default:
		m.errText = msg.err.Error()
		logging.Get(logging.CategoryUI).Warn("%s failed: %v", msg.op, msg.err)
	}
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.setAuthField(m.authField + 1)
		return m, nil

	case tea.KeyCtrlT:
		mode := session.ModeSignup
		if m.sess.Mode == session.ModeSignup {
			mode = session.ModeLogin
		}
		m.app.Session.SetMode(mode)
		m.sync()
		return m, nil

	case tea.KeyEnter:
		if m.busy != "" {
			return m, nil
		}
		creds := types.Credentials{
			Email:    strings.TrimSpace(m.email.Value()),
			Password: m.password.Value(),
		}
		m.busy = "Signing in"
		return m, m.run("auth", func(ctx context.Context) error {
			return m.app.Submit(ctx, creds)
		})
	}

	var cmd tea.Cmd
	if m.authField == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch msg.Type {
	case tea.KeyTab:
		m.setFocus(m.focus + 1)
		return m, nil
	case tea.KeyShiftTab:
		m.setFocus(m.focus + focusCount - 1)
		return m, nil
	case tea.KeyEsc:
		if m.generating {
			m.app.CancelGeneration()
		}
		m.mark = -1
		return m, nil

	case tea.KeyCtrlN:
		m.busy = "Creating draft"
		return m, m.run("create", func(ctx context.Context) error {
			_, err := m.app.NewDraft(ctx)
			return err
		})

	case tea.KeyCtrlP:
		if m.docs.ActiveID == "" {
			return m, nil
		}
		m.busy = "Publishing"
		return m, m.run("publish", func(ctx context.Context) error {
			_, err := m.app.Publish(ctx)
			return err
		})

	case tea.KeyCtrlX:
		id := m.docs.ActiveID
		if m.focus == focusSidebar && m.cursor < len(m.docs.Drafts) {
			id = m.docs.Drafts[m.cursor].ID
		}
		if id == "" {
			return m, nil
		}
		m.busy = "Deleting"
		return m, m.run("delete", func(ctx context.Context) error {
			return m.app.Delete(ctx, id)
		})

	case tea.KeyCtrlS:
		m.busy = "Saving"
		return m, m.run("save", m.app.Save)

	case tea.KeyCtrlO:
		m.app.CancelGeneration()
		return m, m.run("logout", m.app.Logout)

	case tea.KeyCtrlG:
		return m.startSummary()

	case tea.KeyCtrlF:
		return m.startGrammar()

	case tea.KeyCtrlK:
		if m.mark >= 0 {
			m.mark = -1
		} else {
			m.mark = m.body.Line()
			m.notice = "Mark set. Move the cursor to extend the selection, then ctrl+f."
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusSidebar:
		m.updateSidebar(msg)
	case focusTitle:
		before := m.title.Value()
		m.title, cmd = m.title.Update(msg)
		if m.title.Value() != before {
			m.contentChanged()
		}
	case focusBody:
		before := m.body.Value()
		m.body, cmd = m.body.Update(msg)
		if m.body.Value() != before {
			m.contentChanged()
		}
	case focusSummary:
		m.summaryVP, cmd = m.summaryVP.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateSidebar(msg tea.KeyMsg) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.docs.Drafts)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.docs.Drafts) {
			m.app.Select(m.docs.Drafts[m.cursor].ID)
			m.sync()
		}
	}
}

func (m Model) startSummary() (tea.Model, tea.Cmd) {
	if m.docs.ActiveID == "" {
		return m, nil
	}
	m.generating = true
	out := paneOutput{b: m.bridge}
	return m, m.runStream("summary", func(ctx context.Context) error {
		return m.app.Summarize(ctx, out)
	})
}

func (m Model) startGrammar() (tea.Model, tea.Cmd) {
	text, sel, ok := selectLines(m.body.Value(), m.mark, m.body.Line())
	if !ok {
		// No request without a selection
		m.notice = generation.SelectionPrompt
		return m, nil
	}
	m.generating = true
	postID := m.loadedID
	b := m.bridge
	surf := &surface{
		text: text,
		ok:   true,
		deliver: func(fixed string) {
			b.send(grammarResultMsg{postID: postID, sel: sel, text: fixed})
		},
	}
	return m, m.runStream("grammar", func(ctx context.Context) error {
		return m.app.FixGrammar(ctx, surf)
	})
}

// contentChanged reports the editor contents to the document store.
func (m *Model) contentChanged() {
	if err := m.app.ContentChanged(m.title.Value(), m.body.Value()); err != nil {
		m.errText = err.Error()
	}
}

// run executes fn off the update loop with the REST timeout.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	parent, d := m.ctx, m.app.Config().GetTimeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// runStream is run with the stream timeout.
func (m Model) runStream(op string, fn func(ctx context.Context) error) tea.Cmd {
	parent, d := m.ctx, m.app.Config().GetStreamTimeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// shutdown cancels generation and saves unsaved work before quitting.
func (m *Model) shutdown() {
	m.app.CancelGeneration()
	if m.app.Docs.State().Dirty() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		if err := m.app.Save(ctx); err != nil {
			logging.Get(logging.CategoryUI).Warn("Final save failed: %v", err)
		}
	}
	m.bridge.close()
}

// bodyOf returns the markdown to edit for a pending edit.
func bodyOf(p *types.PendingEdit) string {
	if md, err := content.ToMarkdown(p.Content); err == nil && strings.TrimSpace(md) != "" {
		return md
	}
	return p.Text
}
