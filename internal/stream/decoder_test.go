package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(d *Decoder, reads ...string) []string {
	var out []string
	for _, r := range reads {
		out = append(out, d.Write([]byte(r))...)
	}
	return out
}

func TestDecoder_SplitAcrossReads(t *testing.T) {
	d := NewDecoder()
	got := feed(d, "data: Hel", "lo\n\ndata: [DONE]\n\n")
	assert.Equal(t, []string{"Hello"}, got)
	assert.Equal(t, "", d.Buffered())
}

func TestDecoder_DelimiterSplitAcrossReads(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Write([]byte("data: one\n")))
	assert.Equal(t, []string{"one"}, d.Write([]byte("\ndata: two\n\n")))
}

func TestDecoder_MultipleEventsInOneRead(t *testing.T) {
	d := NewDecoder()
	got := d.Write([]byte("data: a\n\ndata: b\n\ndata: c\n\n"))
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 3, d.Events())
}

func TestDecoder_Filtering(t *testing.T) {
	d := NewDecoder()
	got := feed(d,
		"event: ping\n\n",     // not a data block
		"data:    \n\n",       // empty after trim
		"data: [DONE]\n\n",    // sentinel
		"data:nospace\n\n",    // prefix requires the space
		"data:  padded  \n\n", // trimmed
	)
	assert.Equal(t, []string{"padded"}, got)
}

func TestDecoder_MultiByteRuneSplitAcrossReads(t *testing.T) {
	// "é" is 0xC3 0xA9, "世" is 0xE4 0xB8 0x96
	frame := []byte("data: café 世界\n\n")
	idxE := strings.Index(string(frame), "é") + 1
	idxShi := strings.Index(string(frame), "世") + 2

	d := NewDecoder()
	var got []string
	got = append(got, d.Write(frame[:idxE])...)
	got = append(got, d.Write(frame[idxE:idxShi])...)
	got = append(got, d.Write(frame[idxShi:])...)

	assert.Equal(t, []string{"café 世界"}, got)
}

func TestDecoder_ByteAtATime(t *testing.T) {
	input := "data: héllo\n\ndata: wörld\n\ndata: [DONE]\n\n"
	d := NewDecoder()
	var got []string
	for i := 0; i < len(input); i++ {
		got = append(got, d.Write([]byte{input[i]})...)
	}
	assert.Equal(t, []string{"héllo", "wörld"}, got)
}

func TestDecoder_FlushDropsUnterminatedBlock(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Write([]byte("data: partial")))
	assert.Equal(t, "data: partial", d.Flush())
	assert.Equal(t, "", d.Buffered())
}

func TestParseEvent(t *testing.T) {
	p, ok := ParseEvent("data: hi")
	assert.True(t, ok)
	assert.Equal(t, "hi", p)

	_, ok = ParseEvent(": comment")
	assert.False(t, ok)
}

// chunkReader returns one chunk per Read, then err.
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestConsume_DeliversInOrder(t *testing.T) {
	r := &chunkReader{
		chunks: []string{"data: The quick \n\nda", "ta: brown fox\n\n", "data: [DONE]\n\n"},
		err:    io.EOF,
	}
	var got []string
	require.NoError(t, Consume(r, func(s string) { got = append(got, s) }))
	assert.Equal(t, []string{"The quick", "brown fox"}, got)
}

func TestConsume_TransportFailureKeepsDelivered(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{chunks: []string{"data: first\n\ndata: sec"}, err: boom}

	var got []string
	err := Consume(r, func(s string) { got = append(got, s) })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, got)
}
