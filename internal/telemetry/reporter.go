// ABOUTME: Periodic sampler that builds records from live sources and exports them.
// ABOUTME: Runs until its context is cancelled.

package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Source produces the current records for one component.
type Source func() []Record

// Reporter samples sources on an interval.
type Reporter struct {
	exporter *Exporter
	interval time.Duration
	sources  []Source
	logger   *slog.Logger
}

// NewReporter creates a reporter. A non-positive interval means 15s.
func NewReporter(exporter *Exporter, interval time.Duration, logger *slog.Logger, sources ...Source) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{
		exporter: exporter,
		interval: interval,
		sources:  sources,
		logger:   logger,
	}
}

// Collect samples every source once and returns the combined records.
func (r *Reporter) Collect() []Record {
	var all []Record
	for _, src := range r.sources {
		all = append(all, src()...)
	}
	r.exporter.Export(all)
	return all
}

// Run collects immediately and then on every tick until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Collect()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("telemetry reporter stopped")
			return
		case <-ticker.C:
			records := r.Collect()
			r.logger.Debug("telemetry collected", "records", len(records))
		}
	}
}
