package tui

import (
	"fmt"
	"strings"

	"smartblog/internal/session"
	"smartblog/internal/types"

	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.sess.Authenticated() {
		return m.authView()
	}
	header := m.styles.Header.Width(m.width).Render("smartblog  " + m.saveStatus())
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.editorView())
	return lipgloss.JoinVertical(lipgloss.Left, header, main, m.footerView())
}

func (m Model) authView() string {
	heading, toggle := "Log in", "ctrl+t: create an account instead"
	if m.sess.Mode == session.ModeSignup {
		heading, toggle = "Create account", "ctrl+t: log in instead"
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(heading))
	b.WriteString("\n\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	switch {
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + m.busy + "...")
	case m.sess.Error != "":
		b.WriteString(m.styles.Error.Render(m.sess.Error))
	default:
		b.WriteString(m.styles.Muted.Render("enter: submit  tab: next field  " + toggle))
	}
	return m.styles.Pane.Padding(1, 2).Render(b.String())
}

func (m Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Posts"))
	b.WriteString("\n")
	if len(m.docs.Drafts) == 0 {
		b.WriteString(m.styles.Muted.Render("Create a draft to start (ctrl+n)"))
	}
	for i, p := range m.docs.Drafts {
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		title = truncate(title, sidebarWidth-6)

		prefix := "  "
		if p.ID == m.docs.ActiveID {
			prefix = "> "
		}
		line := prefix + title
		if i == m.cursor && m.focus == focusSidebar {
			line = m.styles.Selected.Render(line)
		}
		b.WriteString("\n" + line + "\n  " + m.statusBadge(p.Status))
	}

	style := m.styles.Sidebar
	if m.focus == focusSidebar {
		style = m.styles.Focused
	}
	return style.Width(sidebarWidth).Height(max(1, m.height-4)).Render(b.String())
}

func (m Model) editorView() string {
	if m.docs.ActiveID == "" {
		return m.styles.Pane.Render(m.styles.Muted.Render("No post selected"))
	}
	pane := func(f focus, s string) string {
		if m.focus == f {
			return m.styles.Focused.Render(s)
		}
		return m.styles.Pane.Render(s)
	}

	bodyLabel := ""
	if m.mark >= 0 {
		bodyLabel = m.styles.Warning.Render(fmt.Sprintf("mark at line %d", m.mark+1)) + "\n"
	}
	summaryLabel := m.styles.Muted.Render("Summary")
	if m.generating {
		summaryLabel = m.spinner.View() + " " + summaryLabel
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		pane(focusTitle, m.title.View()),
		pane(focusBody, bodyLabel+m.body.View()),
		pane(focusSummary, summaryLabel+"\n"+m.summaryVP.View()),
	)
}

func (m Model) footerView() string {
	keys := "tab focus  ctrl+n new  ctrl+s save  ctrl+p publish  ctrl+x delete  ctrl+g summary  ctrl+k mark  ctrl+f grammar  ctrl+o logout  ctrl+c quit"
	line := m.styles.Footer.Render(keys)
	switch {
	case m.errText != "":
		return line + "\n" + m.styles.Error.Render(m.errText)
	case m.busy != "":
		return line + "\n" + m.spinner.View() + " " + m.busy + "..."
	case m.notice != "":
		return line + "\n" + m.styles.Warning.Render(m.notice)
	}
	return line + "\n"
}

// saveStatus describes the autosave state of the active post.
func (m Model) saveStatus() string {
	switch {
	case m.docs.IsSaving:
		return "Saving..."
	case m.docs.SaveError != "":
		return "Save failed: " + m.docs.SaveError
	case m.docs.Dirty():
		return "Unsaved changes"
	case !m.docs.LastSavedAt.IsZero():
		return "Saved " + m.docs.LastSavedAt.Local().Format("15:04:05")
	}
	return ""
}

func (m Model) statusBadge(s types.PostStatus) string {
	if s == types.StatusPublished {
		return m.styles.Published.Render("published")
	}
	return m.styles.Draft.Render("draft")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
