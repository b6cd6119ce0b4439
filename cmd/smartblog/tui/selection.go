package tui

import "strings"

// lineSelection is a whole-line range of the body, inclusive on both ends.
type lineSelection struct {
	start, end int
}

// selectLines returns the lines between mark and cursor. mark < 0 means no
// mark is set, which is no selection.
func selectLines(value string, mark, cursor int) (string, lineSelection, bool) {
	if mark < 0 {
		return "", lineSelection{}, false
	}
	lines := strings.Split(value, "\n")
	start, end := mark, cursor
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end {
		return "", lineSelection{}, false
	}
	text := strings.Join(lines[start:end+1], "\n")
	if strings.TrimSpace(text) == "" {
		return "", lineSelection{}, false
	}
	return text, lineSelection{start: start, end: end}, true
}

// replaceLines swaps the selected lines for text. A range that no longer
// fits the value is clamped to it.
func replaceLines(value string, sel lineSelection, text string) string {
	lines := strings.Split(value, "\n")
	start, end := sel.start, sel.end
	if start >= len(lines) {
		return strings.Join(append(lines, text), "\n")
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, text)
	out = append(out, lines[end+1:]...)
	return strings.Join(out, "\n")
}

// surface hands a captured selection to the grammar fix and reports the
// replacement through deliver.
type surface struct {
	text    string
	ok      bool
	deliver func(string)
}

func (s *surface) SelectedText() (string, bool) {
	return s.text, s.ok
}

func (s *surface) ReplaceSelection(text string) {
	s.deliver(text)
}
