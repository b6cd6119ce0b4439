package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostStatus is the publish state of a post. It only ever moves draft -> published.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
)

// Merge returns the status that results from applying next on top of s.
// A published post never reverts to draft.
func (s PostStatus) Merge(next PostStatus) PostStatus {
	if s == StatusPublished {
		return StatusPublished
	}
	if next == "" {
		return s
	}
	return next
}

// Mode selects what the generation endpoint does with the input text.
type Mode string

const (
	ModeSummary Mode = "summary"
	ModeGrammar Mode = "grammar"
)

// Valid reports whether m is one of the modes the server accepts.
func (m Mode) Valid() bool {
	return m == ModeSummary || m == ModeGrammar
}

// Post is a document as the server returns it.
type Post struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"lexical_state"`
	Text      string          `json:"text_content"`
	Status    PostStatus      `json:"status"`
	CreatedAt Timestamp       `json:"created_at"`
	UpdatedAt Timestamp       `json:"updated_at"`
}

// Pending returns a pending edit seeded from the post's confirmed state.
func (p Post) Pending() *PendingEdit {
	return &PendingEdit{
		Title:   p.Title,
		Content: cloneRaw(p.Content),
		Text:    p.Text,
	}
}

// PendingEdit is the locally edited, not yet confirmed copy of a post's editable fields.
// It is replaced wholesale on every edit and never mutated in place.
type PendingEdit struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"lexical_state"`
	Text    string          `json:"text_content"`
}

// Update converts the pending edit into a full PATCH body.
func (p PendingEdit) Update() PostUpdate {
	title, text := p.Title, p.Text
	content := p.Content
	if len(content) == 0 {
		content = EmptyContent()
	}
	return PostUpdate{
		Title:   &title,
		Content: cloneRaw(content),
		Text:    &text,
	}
}

// PostUpdate is a partial update. Nil fields are left unchanged by the server.
type PostUpdate struct {
	Title   *string         `json:"title,omitempty"`
	Content json.RawMessage `json:"lexical_state,omitempty"`
	Text    *string         `json:"text_content,omitempty"`
}

// NewPost is the body sent when creating a post.
type NewPost struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"lexical_state"`
	Text    string          `json:"text_content"`
}

// DefaultNewPost returns the defaults a freshly created draft starts with.
func DefaultNewPost() NewPost {
	return NewPost{Title: "Untitled", Content: EmptyContent(), Text: ""}
}

// EmptyContent is the structured snapshot of an empty document.
func EmptyContent() json.RawMessage {
	return json.RawMessage(`{}`)
}

// Credentials is the body of the login and signup calls.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token issued by login or signup.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// GenerateRequest is the body of the streaming generation call.
type GenerateRequest struct {
	Mode Mode   `json:"mode"`
	Text string `json:"text"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// =============================================================================
// TIMESTAMPS
// =============================================================================

// zonelessLayout is what a naive server-side datetime serializes to.
const zonelessLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a server-assigned time. It accepts RFC 3339 as well as
// ISO 8601 without a zone, which is read as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(zonelessLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
