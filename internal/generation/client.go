// Package generation consumes the streaming generation endpoint and applies
// its output to the summary pane or to the editor selection.
package generation

import (
	"context"
	"errors"
	"io"
	"strings"

	"smartblog/internal/logging"
	"smartblog/internal/stream"
	"smartblog/internal/types"
)

// Prompt shown instead of calling the endpoint when grammar fix has no selection.
const SelectionPrompt = "Select text in the editor, then click Fix Grammar (Selection)."

var (
	// ErrNoSelection means grammar fix was invoked with nothing selected.
	ErrNoSelection = errors.New(SelectionPrompt)
	// ErrEmptyInput means there was no text to send.
	ErrEmptyInput = errors.New("nothing to generate from")
)

// Streamer opens the raw event stream. *apiclient.Client implements it.
type Streamer interface {
	OpenStream(ctx context.Context, token string, mode types.Mode, text string) (io.ReadCloser, error)
}

// Client issues generation requests.
type Client struct {
	api Streamer
}

// New creates a client over api.
func New(api Streamer) *Client {
	return &Client{api: api}
}

// Generate streams one request, calling onFragment with each fragment in
// arrival order. Fragments delivered before a failure are not retracted.
// Any error is a *types.Error of kind generation.
func (c *Client) Generate(ctx context.Context, token string, mode types.Mode, text string, onFragment func(string)) error {
	timer := logging.StartTimer(logging.CategoryStream, "generate "+string(mode))
	defer timer.Stop()

	body, err := c.api.OpenStream(ctx, token, mode, text)
	if err != nil {
		return types.Wrap(types.KindGeneration, "generate", err)
	}
	defer body.Close()

	// Closing the body unblocks a pending Read when ctx ends.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	n := 0
	err = stream.Consume(body, func(fragment string) {
		n++
		onFragment(fragment)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return types.Wrap(types.KindGeneration, "generate", err)
	}
	logging.Stream("generate %s: %d fragments", mode, n)
	return nil
}

// Stream is the channel form of Generate. The fragment channel closes when
// the stream ends; the error channel then yields at most one error.
func (c *Client) Stream(ctx context.Context, token string, mode types.Mode, text string) (<-chan string, <-chan error) {
	fragments := make(chan string, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(fragments)

		err := c.Generate(ctx, token, mode, text, func(f string) {
			select {
			case fragments <- f:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return fragments, errc
}

// =============================================================================
// CONSUMER POLICIES
// =============================================================================

// Output is where summary text is shown.
type Output interface {
	Reset()
	Append(fragment string)
}

// Surface is the part of the editing surface grammar fix needs.
type Surface interface {
	// SelectedText returns the current selection and whether one exists.
	SelectedText() (string, bool)
	// ReplaceSelection inserts text at the cursor, replacing the selection.
	ReplaceSelection(text string)
}

// Summarize clears out and then appends each fragment as it arrives.
// Blank input issues no request.
func (c *Client) Summarize(ctx context.Context, token, text string, out Output) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	out.Reset()
	return c.Generate(ctx, token, types.ModeSummary, text, out.Append)
}

// FixGrammar sends the current selection and, once the stream completes,
// replaces the selection with the trimmed result. With no selection it
// returns ErrNoSelection without calling the endpoint.
func (c *Client) FixGrammar(ctx context.Context, token string, surface Surface) error {
	selected, ok := surface.SelectedText()
	if !ok || strings.TrimSpace(selected) == "" {
		return ErrNoSelection
	}

	var sb strings.Builder
	if err := c.Generate(ctx, token, types.ModeGrammar, selected, func(f string) {
		sb.WriteString(f)
	}); err != nil {
		return err
	}

	fixed := strings.TrimSpace(sb.String())
	if fixed == "" {
		logging.StreamDebug("grammar fix produced no text; selection left unchanged")
		return nil
	}
	surface.ReplaceSelection(fixed)
	return nil
}
