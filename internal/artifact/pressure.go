package artifact

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/rpggio/fieldcam/internal/clock"
)

// Purger is anything that can drop all cached state.
type Purger interface {
	Purge()
}

// PressureMonitor polls heap usage and purges the cache when it crosses a
// soft limit.
type PressureMonitor struct {
	cache     Purger
	limit     uint64
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	heapBytes func() uint64
}

// NewPressureMonitor creates a monitor. A zero limit disables purging.
func NewPressureMonitor(cache Purger, limit uint64, interval time.Duration, clk clock.Clock, logger *slog.Logger) *PressureMonitor {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PressureMonitor{
		cache:     cache,
		limit:     limit,
		interval:  interval,
		clock:     clk,
		logger:    logger,
		heapBytes: readHeapAlloc,
	}
}

// Run checks pressure every interval until ctx is done.
func (m *PressureMonitor) Run(ctx context.Context) {
	if m.limit == 0 {
		return
	}
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check purges the cache if the heap is over the limit and reports whether
// it did.
func (m *PressureMonitor) Check() bool {
	if m.limit == 0 {
		return false
	}
	heap := m.heapBytes()
	if heap <= m.limit {
		return false
	}
	m.cache.Purge()
	m.logger.Warn("memory pressure, artifact cache purged", "heap_bytes", heap, "limit_bytes", m.limit)
	return true
}

func readHeapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
