// Package zstdio implements the streaming zstd framing contract (spec §4.3):
// transparent multi-frame decoding on read, single-frame encoding with a
// content checksum on write, and quick/full integrity probes.
package zstdio

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// DefaultWindowLog is the default window-log limit (27, i.e. 128 MiB) that
// bounds decoder memory use per spec §4.3.
const DefaultWindowLog = 27

// DefaultLevel is the default compression level used when encoding output
// (spec §4.3).
const DefaultLevel = 10

// windowLogToMaxWindow converts a window-log limit to the byte window size
// klauspost/compress/zstd's decoder option expects.
func windowLogToMaxWindow(windowLog int) uint64 {
	if windowLog <= 0 {
		windowLog = DefaultWindowLog
	}
	return uint64(1) << uint(windowLog)
}

// levelToEncoderLevel maps the spec's numeric 1-22 zstd compression level
// onto klauspost/compress/zstd's four speed presets, since the library
// exposes tuning presets rather than the reference encoder's raw level
// numbers. This is an approximation, not a 1:1 mapping.
func levelToEncoderLevel(level int) zstd.EncoderLevel {
	if level <= 0 {
		level = DefaultLevel
	}
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// NewReader opens a streaming decoder over r. The decoder transparently
// chains concatenated zstd frames until r is exhausted; a mid-frame EOF
// surfaces as an error on the next Read. windowLog bounds memory use; 0
// selects DefaultWindowLog.
func NewReader(r io.Reader, windowLog int) (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(r,
		zstd.WithDecoderMaxWindow(windowLogToMaxWindow(windowLog)),
		zstd.WithDecoderConcurrency(0),
	)
	if err != nil {
		return nil, fmt.Errorf("zstdio: open decoder: %w", err)
	}
	return dec, nil
}

// NewWriter opens a streaming single-frame encoder over w at the given
// compression level (0 selects DefaultLevel), with content checksums enabled
// per spec §4.3.
func NewWriter(w io.Writer, level int) (*zstd.Encoder, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(levelToEncoderLevel(level)),
		zstd.WithEncoderCRC(true),
	)
	if err != nil {
		return nil, fmt.Errorf("zstdio: open encoder: %w", err)
	}
	return enc, nil
}
