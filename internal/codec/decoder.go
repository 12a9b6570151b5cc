package codec

import (
	"bytes"
	"log/slog"

	"github.com/viant/scenario/internal/message"
)

// DefaultPrefix marks a record line in a text/event-stream body.
const DefaultPrefix = "data:"

const maxLoggedLine = 256

// Decoder turns stream chunks into messages. It keeps the trailing
// incomplete line between calls, so a record split across any number of
// chunks is decoded once it is complete. A Decoder serves a single stream
// and is not safe for concurrent use.
type Decoder struct {
	prefix  []byte
	pending []byte
	closed  bool
	logger  *slog.Logger
	onError func(line []byte, err error)
}

// Option customises a Decoder.
type Option func(d *Decoder)

// WithPrefix overrides the record prefix.
func WithPrefix(prefix string) Option {
	return func(d *Decoder) {
		if prefix != "" {
			d.prefix = []byte(prefix)
		}
	}
}

// WithLogger sets the logger used to report discarded records.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithErrorHandler registers a callback invoked for every record that fails to parse.
func WithErrorHandler(fn func(line []byte, err error)) Option {
	return func(d *Decoder) {
		d.onError = fn
	}
}

// New creates a decoder for one stream.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		prefix: []byte(DefaultPrefix),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode consumes chunk and returns, in stream order, every message whose
// line was completed by it. Malformed records are logged and skipped.
func (d *Decoder) Decode(chunk []byte) []*message.Message {
	if d.closed || len(chunk) == 0 {
		return nil
	}
	d.pending = append(d.pending, chunk...)
	var out []*message.Message
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx == -1 {
			break
		}
		line := d.pending[:idx]
		if m := d.line(line); m != nil {
			out = append(out, m)
		}
		d.pending = d.pending[idx+1:]
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return out
}

// Close flushes a final line that was not terminated by a line break. The
// decoder yields nothing afterwards.
func (d *Decoder) Close() []*message.Message {
	if d.closed {
		return nil
	}
	d.closed = true
	rest := d.pending
	d.pending = nil
	if m := d.line(rest); m != nil {
		return []*message.Message{m}
	}
	return nil
}

// Pending returns the number of buffered bytes of an incomplete line.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) line(line []byte) *message.Message {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, d.prefix) {
		return nil
	}
	data := bytes.TrimSpace(line[len(d.prefix):])
	if len(data) == 0 {
		return nil
	}
	m, err := message.Parse(data)
	if err != nil {
		d.logger.Warn("discarding malformed stream record", "error", err, "record", truncate(data))
		if d.onError != nil {
			d.onError(data, err)
		}
		return nil
	}
	return m
}

func truncate(data []byte) string {
	if len(data) <= maxLoggedLine {
		return string(data)
	}
	return string(data[:maxLoggedLine]) + "..."
}
