package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// readBufferSize matches the chunk size used when pulling from a streaming body.
const readBufferSize = 8192

// Decoder splits a byte stream into newline-terminated lines.
//
// Splitting happens on raw bytes, so a multi-byte UTF-8 sequence that arrives
// split across two chunks is reassembled before the line is converted to a
// string. A trailing segment without '\n' is held until more data arrives and
// is never emitted as a line.
type Decoder struct {
	pending []byte
}

// Feed appends chunk to the pending buffer and returns every complete line in
// arrival order, with the trailing '\n' removed.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.pending = append(d.pending, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(d.pending[:idx]))
		d.pending = d.pending[idx+1:]
	}
	// Compact so the backing array does not grow without bound on long streams.
	if len(d.pending) == 0 {
		d.pending = nil
	} else if cap(d.pending) > 4*readBufferSize && len(d.pending) < cap(d.pending)/4 {
		d.pending = append([]byte(nil), d.pending...)
	}
	return lines
}

// Pending reports how many bytes are buffered without a terminating newline.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Close ends the stream. The unterminated remainder is dropped and returned so
// the caller can log it; it is never treated as a line.
func (d *Decoder) Close() string {
	rest := string(d.pending)
	d.pending = nil
	return rest
}

// ReadLines drives a Decoder from r, invoking fn for each complete line until fn
// returns false, r is exhausted or ctx is cancelled. EOF is not an error. The
// unterminated tail at EOF is discarded.
func ReadLines(ctx context.Context, r io.Reader, fn func(line string) bool) error {
	var dec Decoder
	defer dec.Close()
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				if !fn(line) {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
