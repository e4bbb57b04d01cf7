package scan

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// throttle implements the adaptive memory-pressure throttle (spec §4.6): it
// samples resident memory every 500ms, and above the high watermark it
// halves per-file worker slots (to a floor of 1) and shrinks batch size to
// 25%, restoring both once usage falls back below the low watermark.
type throttle struct {
	budget    uint64
	highRatio float64
	lowRatio  float64
	logger    *slog.Logger

	throttled atomic.Bool

	sampler *rate.Limiter
}

const (
	throttleSampleInterval = 500 * time.Millisecond
	defaultHighWatermark   = 0.80
	defaultLowWatermark    = 0.60
	memoryExhaustionWindow = 30 * time.Second
)

func newThrottle(opts Options, logger *slog.Logger) *throttle {
	budget := opts.MemoryBudget
	if budget == 0 {
		budget = approxSystemRAMBudget()
	}
	return &throttle{
		budget:    budget,
		highRatio: defaultHighWatermark,
		lowRatio:  defaultLowWatermark,
		logger:    logger,
		// rate.Every paces the sampling goroutine's ticks; burst 1 means a
		// single sample per interval, no catch-up bursts after a stall.
		sampler: rate.NewLimiter(rate.Every(throttleSampleInterval), 1),
	}
}

// approxSystemRAMBudget returns 75% of an assumed 8 GiB of system RAM, i.e.
// 6 GiB. It does not query the host's actual memory, so this default is the
// same on every machine.
func approxSystemRAMBudget() uint64 {
	const fallbackSystemRAM = 8 << 30 // 8 GiB, a conservative guess
	return uint64(float64(fallbackSystemRAM) * 0.75)
}

// Start launches the background sampling goroutine and returns a stop func.
func (t *throttle) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	go t.loop(ctx)
	return cancel
}

func (t *throttle) loop(ctx context.Context) {
	var aboveSince time.Time

	for {
		if err := t.sampler.Wait(ctx); err != nil {
			return
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		usage := ms.Sys

		ratio := float64(usage) / float64(t.budget)
		wasThrottled := t.throttled.Load()

		switch {
		case ratio >= t.highRatio:
			if aboveSince.IsZero() {
				aboveSince = time.Now()
			}
			if !wasThrottled {
				t.throttled.Store(true)
				t.logger.Warn("throttle engaged", "usage_bytes", usage, "budget_bytes", t.budget, "ratio", ratio)
			}
			if time.Since(aboveSince) > memoryExhaustionWindow {
				t.logger.Error("memory pressure exhaustion: usage has not recovered below high watermark", "elapsed", time.Since(aboveSince))
			}
		case ratio <= t.lowRatio:
			aboveSince = time.Time{}
			if wasThrottled {
				t.throttled.Store(false)
				t.logger.Info("throttle released", "usage_bytes", usage, "budget_bytes", t.budget, "ratio", ratio)
			}
		}
	}
}

// workersPerFile computes P/F (minimum 1), halved further while throttled.
func (t *throttle) workersPerFile(parallelism, fileConcurrency int) int {
	n := parallelism / fileConcurrency
	if n < 1 {
		n = 1
	}
	if t.throttled.Load() {
		n = n / 2
		if n < 1 {
			n = 1
		}
	}
	return n
}

// currentBatchLimits returns the configured batch limits, or 25% of them
// while the throttle is engaged (spec §4.6).
func (t *throttle) currentBatchLimits(batchBytes, batchLines int) (int, int) {
	if !t.throttled.Load() {
		return batchBytes, batchLines
	}
	b := batchBytes / 4
	l := batchLines / 4
	if b < 1 {
		b = 1
	}
	if l < 1 {
		l = 1
	}
	return b, l
}
