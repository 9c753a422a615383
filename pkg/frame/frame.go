// Package frame turns a raw byte stream into the text lines ("frames") of the
// ADP chat wire protocol.
//
// Upstream bytes arrive in chunks of arbitrary size and alignment. A frame may
// be split over any number of chunks, including in the middle of a multi-byte
// UTF-8 codepoint, and one chunk may carry many frames:
//
// ┌──────────────────┐
// │  byte chunks     │  "data: {\"Ty"  "pe\":\"reply\"...}\n\nda"  ...
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │ Splitter.Push()  │  buffers bytes until a '\n' completes a line
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │     frames       │  trimmed, non-empty, valid UTF-8
// └──────────────────┘
//
// Decoding never fails: invalid byte sequences are replaced with U+FFFD.
package frame

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Splitter is the push side of the decoder. It owns the bytes of the line
// currently being assembled. The zero value is ready to use.
type Splitter struct {
	buf []byte
}

// Push appends a chunk and returns every line it completes, in order.
// Bytes after the last newline stay buffered for the next chunk.
func (s *Splitter) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	// The buffered suffix never contains a newline, so only the new bytes
	// need scanning for the first boundary.
	scanFrom := len(s.buf)
	s.buf = append(s.buf, chunk...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(s.buf[scanFrom:], '\n')
		if i < 0 {
			break
		}
		end := scanFrom + i
		if line := decode(s.buf[start:end]); line != "" {
			lines = append(lines, line)
		}
		start = end + 1
		scanFrom = start
	}

	if start > 0 {
		n := copy(s.buf, s.buf[start:])
		s.buf = s.buf[:n]
	}

	return lines
}

// Flush returns the buffered residual as a final line when the upstream
// ends without a trailing newline. The buffer is emptied either way.
func (s *Splitter) Flush() (string, bool) {
	if len(s.buf) == 0 {
		return "", false
	}

	line := decode(s.buf)
	s.buf = s.buf[:0]
	return line, line != ""
}

// Buffered returns the number of bytes waiting for a newline.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// decode converts one line of bytes to trimmed text, substituting U+FFFD for
// malformed sequences.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(b), string(utf8.RuneError)))
}
