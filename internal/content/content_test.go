package content

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMarkdown_TextProjection(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", ""},
		{"paragraph", "Hello world", "Hello world"},
		{"two blocks", "# Title\n\nBody text", "Title\n\nBody text"},
		{"emphasis stripped", "Some **bold** and *italic* and `code`", "Some bold and italic and code"},
		{"bullet list", "- one\n- two\n- three", "one\ntwo\nthree"},
		{"soft break", "line one\nline two", "line one\nline two"},
		{"link text", "see [docs](https://example.com)", "see docs"},
		{"code block", "```go\nx := 1\n```", "x := 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := FromMarkdown(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Text)

			// The projection recomputed from the serialized tree must agree.
			again, err := TextOf(snap.Content)
			require.NoError(t, err)
			assert.Equal(t, snap.Text, again)
		})
	}
}

func TestParse_BlockTree(t *testing.T) {
	doc := Parse("## Hi\n\n1. a\n2. b")

	var types []string
	for _, c := range doc.Root.Children {
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{"heading", "list"}, types)
	assert.Equal(t, "h2", doc.Root.Children[0].Tag)

	list := doc.Root.Children[1]
	assert.Equal(t, "number", list.ListType)
	require.Len(t, list.Children, 2)
	assert.Equal(t, 2, list.Children[1].Value)
}

func TestParse_FormatBits(t *testing.T) {
	doc := Parse("plain **bold** `code`")
	para := doc.Root.Children[0]

	got := make(map[string]int)
	for _, c := range para.Children {
		got[c.Text] = c.Format
	}
	assert.Equal(t, FormatBold, got["bold"])
	assert.Equal(t, FormatCode, got["code"])
}

func TestMarkdownRoundTrip(t *testing.T) {
	sources := []string{
		"# Title\n\nA paragraph with **bold** text.",
		"- one\n- two",
		"1. first\n2. second",
		"> quoted",
		"```\ncode here\n```",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			first := Parse(src)
			rendered := first.Markdown()
			second := Parse(rendered)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("round trip changed the tree (-first +second):\n%s", diff)
			}
		})
	}
}

func TestDecode_EmptySnapshots(t *testing.T) {
	for _, raw := range []string{"", "{}", "null", "  "} {
		md, err := ToMarkdown(json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, "", md)
	}

	_, err := Decode(json.RawMessage(`{"root":`))
	assert.Error(t, err)
}
