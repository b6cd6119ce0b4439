// Package stream decodes the generation endpoint's server-sent event stream.
//
// Frames are blocks of text terminated by a blank line. A block is a data
// event only when it starts with "data: ". Bytes arrive in arbitrary reads, so
// the decoder carries both incomplete UTF-8 sequences and incomplete blocks
// over to the next read.
package stream

import (
	"errors"
	"io"
	"strings"

	"smartblog/internal/logging"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// Delimiter terminates every frame.
	Delimiter = "\n\n"
	// DataPrefix marks a data event.
	DataPrefix = "data: "
	// Done is the terminal sentinel payload. It is never delivered.
	Done = "[DONE]"

	// ReadSize is the buffer size Consume reads with.
	ReadSize = 4096
)

// Decoder turns successive reads into event payloads. It is not safe for
// concurrent use; one Decoder serves one stream.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte // undecoded trailing bytes of a split multi-byte sequence
	buf     string // decoded text not yet terminated by a delimiter
	events  int
}

// NewDecoder returns a decoder with empty buffers.
func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8.NewDecoder()}
}

// Write feeds one read and returns the payloads of every block it completed,
// in stream order. Filtered payloads are dropped.
func (d *Decoder) Write(p []byte) []string {
	d.buf += d.decode(p, false)

	parts := strings.Split(d.buf, Delimiter)
	d.buf = parts[len(parts)-1]

	var out []string
	for _, block := range parts[:len(parts)-1] {
		if payload, ok := ParseEvent(block); ok {
			out = append(out, payload)
		}
	}
	d.events += len(out)
	return out
}

// Flush ends the stream. Any remainder that never received its blank line is
// not an event; it is returned so the caller can log it.
func (d *Decoder) Flush() (remainder string) {
	remainder = d.buf + d.decode(nil, true)
	d.buf = ""
	if remainder != "" {
		logging.StreamDebug("Discarding unterminated trailing block (%d bytes)", len(remainder))
	}
	return remainder
}

// Buffered returns the decoded text waiting for a delimiter.
func (d *Decoder) Buffered() string {
	return d.buf
}

// Events returns how many payloads have been produced so far.
func (d *Decoder) Events() int {
	return d.events
}

// decode converts pending+p to text, keeping an incomplete trailing
// sequence in d.pending unless atEOF.
func (d *Decoder) decode(p []byte, atEOF bool) string {
	src := append(d.pending, p...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	dst := make([]byte, len(src)+8)
	var nDst, nSrc int
	for {
		w, r, err := d.utf8.Transform(dst[nDst:], src[nSrc:], atEOF)
		nDst += w
		nSrc += r
		if errors.Is(err, transform.ErrShortDst) {
			// Ill-formed bytes expand to U+FFFD
			grown := make([]byte, len(dst)*2+8)
			copy(grown, dst[:nDst])
			dst = grown
			continue
		}
		break
	}
	if nSrc < len(src) {
		d.pending = append([]byte(nil), src[nSrc:]...)
	}
	return string(dst[:nDst])
}

// ParseEvent extracts the payload of one block. It reports false for blocks
// that are not data events and for payloads that are empty or the sentinel.
func ParseEvent(block string) (string, bool) {
	if !strings.HasPrefix(block, DataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(block[len(DataPrefix):])
	if payload == "" || payload == Done {
		return "", false
	}
	return payload, true
}

// Consume reads r to completion, passing each payload to emit in order.
// It returns nil when r reports io.EOF and the transport error otherwise.
// Payloads decoded before a failure have already been emitted.
func Consume(r io.Reader, emit func(string)) error {
	d := NewDecoder()
	buf := make([]byte, ReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, payload := range d.Write(buf[:n]) {
				emit(payload)
			}
		}
		if errors.Is(err, io.EOF) {
			d.Flush()
			logging.StreamDebug("Stream complete: %d events", d.Events())
			return nil
		}
		if err != nil {
			logging.Get(logging.CategoryStream).Warn("Stream failed after %d events: %v", d.Events(), err)
			return err
		}
	}
}
