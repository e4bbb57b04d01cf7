// Package lines implements the line source (spec §4.4): it yields JSON lines
// from a decompressor, enforcing a bounded line length and leniently handling
// invalid UTF-8.
package lines

import (
	"bufio"
	"io"
	"strings"
)

// MaxLineBytes is the line-length cap (16 MiB per spec §4.4). Lines exceeding
// this are reported as a parse warning and skipped, not treated as fatal.
const MaxLineBytes = 16 * 1024 * 1024

// Warning describes a non-fatal line-level problem encountered while scanning.
type Warning struct {
	// LineNumber is 1-based.
	LineNumber int
	Message    string
}

// Source yields successive lines from an underlying reader, stripping
// trailing CR/LF/CRLF and replacing invalid UTF-8 with U+FFFD rather than
// failing the whole file over one bad line. Unlike bufio.Scanner, an
// oversized line does not terminate the stream: it is dropped and scanning
// continues, matching spec §4.4's "not fatal" requirement.
type Source struct {
	reader     *bufio.Reader
	lineNumber int
	warnings   []Warning
	err        error
}

// NewSource wraps r (typically a zstd decoder) as a line source.
func NewSource(r io.Reader) *Source {
	return &Source{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line's text, or false when the source is exhausted
// (either cleanly at EOF or because of a read error -- callers should check
// Err after Next returns false to distinguish the two).
func (s *Source) Next() (string, bool) {
	for {
		line, tooLong, readErr := s.readOneLine()
		if readErr != nil && readErr != io.EOF {
			s.err = readErr
			return "", false
		}
		if line == nil && readErr == io.EOF {
			return "", false
		}

		s.lineNumber++
		if tooLong {
			s.warnings = append(s.warnings, Warning{
				LineNumber: s.lineNumber,
				Message:    "line exceeds maximum length, skipped",
			})
			if readErr == io.EOF {
				return "", false
			}
			continue
		}

		return toValidUTF8Lossy(line), true
	}
}

// readOneLine reads raw bytes up to (and excluding) the next line ending,
// accepting LF, CRLF, or a bare CR as the terminator. It returns tooLong if
// the line exceeded MaxLineBytes; bytes beyond the cap are discarded but the
// stream is still consumed up to (and including) the terminator, so the next
// call resumes cleanly on the following line.
func (s *Source) readOneLine() (line []byte, tooLong bool, err error) {
	var buf []byte
	sawAny := false

	for {
		b, readErr := s.reader.ReadByte()
		if readErr != nil {
			if readErr == io.EOF {
				if !sawAny {
					return nil, false, io.EOF
				}
				break
			}
			return nil, false, readErr
		}
		sawAny = true

		if b == '\n' {
			break
		}
		if b == '\r' {
			next, peekErr := s.reader.Peek(1)
			if peekErr == nil && len(next) == 1 && next[0] == '\n' {
				s.reader.ReadByte() // consume the paired LF
			}
			break
		}

		if len(buf) < MaxLineBytes {
			buf = append(buf, b)
		} else {
			tooLong = true
		}
	}

	if tooLong {
		return buf[:0], true, nil
	}
	return buf, false, nil
}

// Err returns the first non-EOF error encountered while reading.
func (s *Source) Err() error {
	return s.err
}

// Warnings returns all line-level warnings accumulated so far.
func (s *Source) Warnings() []Warning {
	return s.warnings
}

// LineNumber returns the 1-based number of the last line returned by Next.
func (s *Source) LineNumber() int {
	return s.lineNumber
}

// toValidUTF8Lossy replaces invalid UTF-8 byte sequences with U+FFFD rather
// than failing, per spec §4.4.
func toValidUTF8Lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
