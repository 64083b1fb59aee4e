package relay

import (
	"bufio"
	"bytes"
	"io"
)

// sseScanner scans Server-Sent Events streams, yielding the payload of each
// data: line and skipping comments, event names, and blank boundaries.
type sseScanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{
		scanner: bufio.NewScanner(r),
	}
}

// Scan advances to the next SSE data event.
func (s *sseScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		// Skip empty lines (event boundaries)
		if len(line) == 0 {
			continue
		}

		if bytes.HasPrefix(line, []byte("data: ")) {
			s.data = string(bytes.TrimPrefix(line, []byte("data: ")))
			return true
		}
	}

	s.err = s.scanner.Err()
	return false
}

// Data returns the current event payload.
func (s *sseScanner) Data() string {
	return s.data
}

// Err returns any scanning error.
func (s *sseScanner) Err() error {
	return s.err
}
