package frame

import (
	"errors"
	"io"
	"iter"
)

const defaultChunkSize = 32 * 1024

// Reader pulls chunks from a source io.Reader and yields decoded lines.
// A Reader is single-pass: once its source is consumed it cannot restart.
type Reader struct {
	src     io.Reader
	chunk   []byte
	split   Splitter
	pending []string
	err     error
}

// NewReader returns a Reader that decodes lines from src.
func NewReader(src io.Reader) *Reader {
	return NewReaderSize(src, defaultChunkSize)
}

// NewReaderSize returns a Reader whose reads from src are at most size bytes.
func NewReaderSize(src io.Reader, size int) *Reader {
	if size <= 0 {
		size = defaultChunkSize
	}

	return &Reader{
		src:   src,
		chunk: make([]byte, size),
	}
}

// Next returns the next decoded line. It blocks on the source until a full
// line is available.
//
// Next returns io.EOF once the source is exhausted and any residual line has
// been returned. A read error from the source is returned after the lines
// completed before it, and is returned again on every later call.
func (r *Reader) Next() (string, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return "", r.err
		}
		r.fill()
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}

func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.pending = append(r.pending, r.split.Push(r.chunk[:n])...)
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if line, ok := r.split.Flush(); ok {
			r.pending = append(r.pending, line)
		}
		r.err = io.EOF
	default:
		r.err = err
	}
}

// Lines returns an iterator over the decoded lines of src. Iteration stops
// at the end of the source; a read error is yielded once as the last pair.
func Lines(src io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		r := NewReader(src)
		for {
			line, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(line, err) || err != nil {
				return
			}
		}
	}
}
