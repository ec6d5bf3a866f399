package core

// streaming.go normalizes extract bytes before CSV parsing without loading
// the whole file:
//
//   - a leading UTF-8 BOM (written by Excel "CSV UTF-8" exports) is dropped
//   - invalid UTF-8 sequences become U+FFFD

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewExtractReader wraps r so the CSV reader sees valid UTF-8 with no BOM.
func NewExtractReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{src: br}
}

// utf8Sanitizer re-encodes its source rune by rune. bufio.Reader.ReadRune
// reports each invalid byte as utf8.RuneError with size 1, which encodes
// as U+FFFD.
type utf8Sanitizer struct {
	src     *bufio.Reader
	pending []byte // encoded bytes that did not fit the caller's buffer
	err     error  // deferred read error
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := 0
	for n < len(p) {
		if len(s.pending) > 0 {
			c := copy(p[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}
		if s.err != nil {
			break
		}

		r, _, err := s.src.ReadRune()
		if err != nil {
			s.err = err
			break
		}

		var enc [utf8.UTFMax]byte
		size := utf8.EncodeRune(enc[:], r)
		if size <= len(p)-n {
			n += copy(p[n:], enc[:size])
		} else {
			s.pending = append(s.pending[:0], enc[:size]...)
		}
	}

	if n > 0 {
		return n, nil
	}
	return 0, s.err
}
