package importer

// streaming.go wraps the input stream so rows can be decoded incrementally
// without first loading the file:
//
//   - a BOM-skipping reader drops a leading UTF-8 byte order mark
//   - a UTF-8 sanitizer replaces invalid bytes with '?'
//   - a CountingReader records how many bytes were consumed
//
// Use WrapForStreaming to apply all three in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewBOMSkippingReader returns a reader that drops a leading UTF-8 BOM.
func NewBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// sanitizeChunk is the read size used by UTF8Sanitizer.
const sanitizeChunk = 32 * 1024

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams
// through. A multi-byte sequence split across reads is carried over to the
// next fill so it is not mistaken for invalid input.
type UTF8Sanitizer struct {
	reader  io.Reader
	raw     []byte
	tail    [utf8.UTFMax]byte
	tailLen int
	out     []byte
	err     error
}

// NewUTF8Sanitizer creates a streaming sanitizer over r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{reader: r, raw: make([]byte, sanitizeChunk+utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads the next chunk and sanitizes it into s.out.
// Only called once s.out has been fully consumed.
func (s *UTF8Sanitizer) fill() {
	carried := copy(s.raw, s.tail[:s.tailLen])
	s.tailLen = 0

	n, err := s.reader.Read(s.raw[carried : carried+sanitizeChunk])
	data := s.raw[:carried+n]

	if err != nil {
		s.err = err
	} else if cut := incompleteSuffix(data); cut > 0 {
		s.tailLen = copy(s.tail[:], data[len(data)-cut:])
		data = data[:len(data)-cut]
	}

	s.out = data[:sanitizeInPlace(data)]
}

// sanitizeInPlace rewrites data replacing each invalid byte with '?' and
// returns the new length. Replacement never grows the slice.
func sanitizeInPlace(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}
	w := 0
	for r := 0; r < len(data); {
		ru, size := utf8.DecodeRune(data[r:])
		if ru == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

// incompleteSuffix returns how many trailing bytes form the start of a
// multi-byte sequence that has not been fully read yet.
func incompleteSuffix(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[len(data)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

// CountingReader tracks bytes read for logging and progress.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *CountingReader) BytesRead() int64 {
	return c.read.Load()
}

// Progress returns the read progress as a percentage (0-100), or 0 when
// the total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	return int(c.BytesRead() * 100 / c.Total)
}

// WrapForStreaming applies BOM skipping, then UTF-8 sanitization, then
// byte counting.
func WrapForStreaming(r io.Reader, total int64) *CountingReader {
	return NewCountingReader(NewUTF8Sanitizer(NewBOMSkippingReader(r)), total)
}
