// Package sse normalizes backend response bodies into a uniform lazy
// sequence of text fragments, hiding the differences between
// server-sent-event streams and single-shot completion bodies.
package sse

import (
	"bytes"
	"io"

	"github.com/tidwall/gjson"

	"modelbridge/internal/core"
)

const (
	// dataPrefix marks an event-data line in an SSE stream.
	dataPrefix = "data:"

	// doneSentinel terminates an OpenAI-style SSE stream.
	doneSentinel = "[DONE]"
)

// deltaPaths are the provider-specific JSON paths for the incremental
// text, tried in order. Streaming frames carry the delta form; some
// backends emit the full message form on the final frame.
var deltaPaths = []string{
	"choices.0.delta.content",
	"choices.0.message.content",
}

// Decoder turns an SSE response body into a sequence of text fragments.
//
// Bytes may arrive arbitrarily chunked; the decoder accumulates them and
// only processes complete lines, so the fragment sequence is identical
// regardless of where the transport split the stream. Lines without the
// event-data prefix are ignored, the termination sentinel ends the
// sequence cleanly, and malformed frames are dropped without aborting
// the stream.
type Decoder struct {
	r      io.Reader
	buf    []byte
	done   bool
	closed bool
}

// NewDecoder creates a Decoder reading from r. If r is an io.Closer,
// Close closes it.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next text fragment, or io.EOF when the stream ends.
// A stream ends either at the termination sentinel or when the
// underlying body is exhausted.
func (d *Decoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}

	for {
		// Drain complete lines already buffered before reading more.
		for {
			idx := bytes.IndexByte(d.buf, '\n')
			if idx < 0 {
				break
			}
			line := d.buf[:idx]
			d.buf = d.buf[idx+1:]

			frag, ok, end := d.processLine(line)
			if end {
				d.done = true
				return "", io.EOF
			}
			if ok {
				return frag, nil
			}
		}

		chunk := make([]byte, 4096)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			// Body exhausted: process any trailing unterminated line,
			// then end. Errors other than EOF (including a cancelled
			// request body) still end the sequence cleanly; the
			// caller's cancellation signal decides whether that end
			// was premature.
			if len(d.buf) > 0 {
				line := d.buf
				d.buf = nil
				frag, ok, end := d.processLine(line)
				if !end && ok {
					d.done = true
					return frag, nil
				}
			}
			d.done = true
			return "", io.EOF
		}
	}
}

// processLine handles one complete line. It returns the extracted
// fragment and whether one was produced, or end=true at the sentinel.
func (d *Decoder) processLine(line []byte) (frag string, ok bool, end bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return "", false, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return "", false, false
	}
	if string(payload) == doneSentinel {
		return "", false, true
	}

	delta, ok := ExtractDelta(payload)
	return delta, ok, false
}

// Close closes the underlying reader if it is a closer.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.done = true
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ExtractDelta pulls the incremental text out of one JSON frame. It
// returns false for malformed frames and frames without a text delta;
// such frames are skipped, never fatal.
func ExtractDelta(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		return "", false
	}
	for _, path := range deltaPaths {
		if v := gjson.GetBytes(payload, path); v.Exists() && v.String() != "" {
			return v.String(), true
		}
	}
	return "", false
}

// Once wraps a complete non-streaming response body as a single-fragment
// stream: the completion text is emitted once, then the sequence ends.
// Returns a format error if the body does not contain a completion.
func Once(backend core.BackendKind, body []byte) (core.FragmentStream, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewFormatError(backend, "completion body is not valid JSON", nil)
	}
	text := gjson.GetBytes(body, "choices.0.message.content")
	if !text.Exists() {
		return nil, core.NewFormatError(backend, "completion body missing choices[0].message.content", nil)
	}
	return &single{text: text.String()}, nil
}

// single is a FragmentStream producing exactly one fragment.
type single struct {
	text    string
	emitted bool
}

func (s *single) Next() (string, error) {
	if s.emitted {
		return "", io.EOF
	}
	s.emitted = true
	return s.text, nil
}

func (s *single) Close() error {
	s.emitted = true
	return nil
}
