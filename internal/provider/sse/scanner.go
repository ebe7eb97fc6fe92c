// Package sse reads Server-Sent Events payloads from streaming HTTP
// response bodies.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize is the maximum size of a single SSE line (1 MB). The default
// bufio.Scanner limit of 64 KiB is too small for large completion events.
const maxLineSize = 1 * 1024 * 1024

// doneSentinel terminates OpenAI-compatible streams.
const doneSentinel = "[DONE]"

// Scanner reads Server-Sent Events from an io.Reader. It joins multi-line
// data fields, skips comments and blank lines, and treats the [DONE]
// sentinel as end of stream.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner creates a Scanner over the given reader.
func NewScanner(reader io.Reader) *Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{scanner: scanner}
}

// Next returns the next event's data payload. Multiple consecutive "data:"
// lines are joined with newlines. Returns io.EOF at end of stream or on the
// [DONE] sentinel.
func (s *Scanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line ends an event; flush accumulated data lines.
		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == doneSentinel {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
			continue
		}

		// Other SSE fields (event:, id:, retry:) are ignored; the payloads
		// we consume carry their own type discriminators.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse scan: %w", err)
	}

	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}

	return "", io.EOF
}
