package zstdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SuspectReason categorizes why Quick or Full rejected a file (spec §4.3/§4.10).
type SuspectReason string

const (
	HeaderInvalid      SuspectReason = "header-invalid"
	MidStreamCorrupt   SuspectReason = "mid-stream-corruption"
	Truncated          SuspectReason = "truncated"
	ChecksumMismatch   SuspectReason = "checksum-mismatch"
	Unreadable         SuspectReason = "unreadable"
)

// Suspect describes one file that failed an integrity probe.
type Suspect struct {
	Path   string
	Reason SuspectReason
	Err    error
}

func (s Suspect) Error() string {
	return fmt.Sprintf("%s: %s: %v", s.Path, s.Reason, s.Err)
}

// Prober runs integrity checks against zstd-framed files.
type Prober struct {
	WindowLog int
}

// Quick reads up to sampleBytes compressed bytes from path and discards the
// decoded output. Success means zstd accepted the header and produced some
// decoded bytes; it does not verify the terminal checksum.
func (p Prober) Quick(ctx context.Context, path string, sampleBytes int64) *Suspect {
	f, err := os.Open(path)
	if err != nil {
		return &Suspect{Path: path, Reason: Unreadable, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if sampleBytes > 0 {
		r = io.LimitReader(f, sampleBytes)
	}

	dec, err := NewReader(r, p.WindowLog)
	if err != nil {
		return &Suspect{Path: path, Reason: HeaderInvalid, Err: err}
	}
	defer dec.Close()

	buf := make([]byte, 32*1024)
	produced := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return &Suspect{Path: path, Reason: Unreadable, Err: err}
		}
		n, err := dec.Read(buf)
		produced += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A sampled read naturally truncates mid-frame; that's expected
			// and not itself a corruption signal unless nothing decoded at all.
			if produced > 0 {
				break
			}
			return &Suspect{Path: path, Reason: classifyDecodeError(err), Err: err}
		}
		if n == 0 {
			break
		}
	}

	if produced == 0 {
		return &Suspect{Path: path, Reason: HeaderInvalid, Err: errors.New("no bytes decoded from sample")}
	}
	return nil
}

// Full streams the entire file through the decoder, verifying the terminal
// checksum. Returns nil if the file decodes cleanly end to end.
func (p Prober) Full(ctx context.Context, path string) *Suspect {
	f, err := os.Open(path)
	if err != nil {
		return &Suspect{Path: path, Reason: Unreadable, Err: err}
	}
	defer f.Close()

	dec, err := NewReader(f, p.WindowLog)
	if err != nil {
		return &Suspect{Path: path, Reason: HeaderInvalid, Err: err}
	}
	defer dec.Close()

	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return &Suspect{Path: path, Reason: Unreadable, Err: err}
		}
		_, err := dec.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &Suspect{Path: path, Reason: classifyDecodeError(err), Err: err}
		}
	}
}

// classifyDecodeError maps a klauspost/compress/zstd decode error to a
// SuspectReason. The library doesn't export typed sentinel errors for every
// case, so classification is heuristic based on error text, which is the
// same approach the library's own tests use.
func classifyDecodeError(err error) SuspectReason {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Truncated
	}
	if errors.Is(err, zstd.ErrCRCMismatch) {
		return ChecksumMismatch
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unexpected eof"), strings.Contains(msg, "truncated"):
		return Truncated
	case strings.Contains(msg, "checksum"), strings.Contains(msg, "crc"):
		return ChecksumMismatch
	case strings.Contains(msg, "magic number mismatch"), strings.Contains(msg, "invalid input"):
		return HeaderInvalid
	default:
		return MidStreamCorrupt
	}
}
