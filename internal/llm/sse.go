package llm

import (
	"bufio"
	"io"
)

// serverSentEventScanner reads Server-Sent Events from a stream.
type serverSentEventScanner struct {
	scanner *bufio.Scanner
}

// newServerSentEventScanner creates a new SSE scanner.
func newServerSentEventScanner(r io.Reader) *serverSentEventScanner {
	s := &serverSentEventScanner{scanner: bufio.NewScanner(r)}
	// Deltas are small but a single event line can carry a full content
	// block; allow up to 1MB per line.
	s.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return s
}

// Scan reads the next line of data.
func (s *serverSentEventScanner) Scan() bool {
	return s.scanner.Scan()
}

// Text returns the last scanned line.
func (s *serverSentEventScanner) Text() string {
	return s.scanner.Text()
}

// Err returns the first non-EOF error hit while reading the stream.
func (s *serverSentEventScanner) Err() error {
	return s.scanner.Err()
}
