package httpwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// State is the region of the response the decoder is currently consuming
type State int

const (
	ReadingHeader State = iota
	ReadingChunkSize
	ReadingChunkBody
)

func (s State) String() string {
	switch s {
	case ReadingHeader:
		return "reading_header"
	case ReadingChunkSize:
		return "reading_chunk_size"
	case ReadingChunkBody:
		return "reading_chunk_body"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxHeader is the default header block capacity in bytes
	DefaultMaxHeader = 8 << 10

	// DefaultMaxBody is the default decoded body capacity in bytes
	DefaultMaxBody = 16 << 10

	maxSizeLine = 256

	// maxSegmentSlack bounds undecoded bytes held past the body capacity
	maxSegmentSlack = 256
)

var (
	headerEnd = []byte("\r\n\r\n")
	lineEnd   = []byte("\r\n")
)

// ChunkDecoder incrementally splits a raw HTTP response into its header
// block and a chunk-decoded body. It is fed with Write and may be given the
// stream in pieces of any size.
//
// The decoder assumes the body uses chunked transfer coding and never
// inspects the header to confirm it; Chunked reports what the header said.
// Chunk-size lines are only used as delimiters, their value is ignored: each
// chunk body ends at the next CRLF and is right-trimmed of whitespace before
// being appended. Bodies containing CRLF inside a chunk are therefore not
// supported.
type ChunkDecoder struct {
	state     State
	header    []byte
	line      []byte
	body      []byte
	maxHeader int
	maxBody   int
}

// NewChunkDecoder creates a decoder with the given header and body capacities.
// Non-positive capacities select the defaults.
func NewChunkDecoder(maxHeader, maxBody int) *ChunkDecoder {
	if maxHeader <= 0 {
		maxHeader = DefaultMaxHeader
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &ChunkDecoder{
		header:    make([]byte, 0, maxHeader),
		line:      make([]byte, 0, maxBody),
		body:      make([]byte, 0, maxBody),
		maxHeader: maxHeader,
		maxBody:   maxBody,
	}
}

// Write feeds response bytes to the decoder. It fails with
// ErrResponseTooLarge once a fixed capacity would be exceeded.
func (d *ChunkDecoder) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := d.step(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func (d *ChunkDecoder) step(c byte) error {
	switch d.state {
	case ReadingHeader:
		if len(d.header) == d.maxHeader {
			return fmt.Errorf("header exceeds %d bytes: %w", d.maxHeader, ErrResponseTooLarge)
		}
		d.header = append(d.header, c)
		if bytes.HasSuffix(d.header, headerEnd) {
			d.state = ReadingChunkSize
		}

	case ReadingChunkSize:
		if len(d.line) == maxSizeLine {
			return fmt.Errorf("chunk size line exceeds %d bytes: %w", maxSizeLine, ErrResponseTooLarge)
		}
		d.line = append(d.line, c)
		if bytes.HasSuffix(d.line, lineEnd) {
			d.line = d.line[:0]
			d.state = ReadingChunkBody
		}

	case ReadingChunkBody:
		// The pending segment may hold trailing whitespace and its CRLF beyond
		// the body capacity; the trimmed segment is checked once it ends
		if len(d.body)+len(d.line) == d.maxBody+maxSegmentSlack {
			return fmt.Errorf("body exceeds %d bytes: %w", d.maxBody, ErrResponseTooLarge)
		}
		d.line = append(d.line, c)
		if bytes.HasSuffix(d.line, lineEnd) {
			segment := bytes.TrimRight(d.line, " \t\r\n")
			if len(d.body)+len(segment) > d.maxBody {
				return fmt.Errorf("body exceeds %d bytes: %w", d.maxBody, ErrResponseTooLarge)
			}
			d.body = append(d.body, segment...)
			d.line = d.line[:0]
			d.state = ReadingChunkSize
		}
	}
	return nil
}

// State returns the region currently being consumed
func (d *ChunkDecoder) State() State {
	return d.state
}

// HeaderComplete reports whether the blank line ending the header was seen
func (d *ChunkDecoder) HeaderComplete() bool {
	return d.state != ReadingHeader
}

// Header returns the raw header block, including its terminator once seen
func (d *ChunkDecoder) Header() []byte {
	return d.header
}

// Body returns the concatenation of all completed chunk bodies
func (d *ChunkDecoder) Body() []byte {
	return d.body
}

// StatusCode parses the status line, returning 0 if it is absent or malformed
func (d *ChunkDecoder) StatusCode() int {
	line, _, ok := bytes.Cut(d.header, lineEnd)
	if !ok {
		return 0
	}
	fields := strings.Fields(string(line))
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

// Chunked reports whether the header declared chunked transfer coding
func (d *ChunkDecoder) Chunked() bool {
	for _, line := range strings.Split(string(d.header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Transfer-Encoding") {
			continue
		}
		for _, coding := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(coding), "chunked") {
				return true
			}
		}
	}
	return false
}

// Reset clears the decoder for reuse without releasing its buffers
func (d *ChunkDecoder) Reset() {
	d.state = ReadingHeader
	d.header = d.header[:0]
	d.line = d.line[:0]
	d.body = d.body[:0]
}
