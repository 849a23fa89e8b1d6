// ABOUTME: Tests for the Prometheus exporter and periodic reporter.
// ABOUTME: Uses a private registry and testutil to read back samples.

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExporter_Export(t *testing.T) {
	e := NewExporter(prometheus.NewRegistry())

	e.Export(BuildCacheMetrics(CacheSnapshot{Scope: "replay", Model: "memory", Hits: 3, Misses: 1}))

	got := testutil.ToFloat64(e.records.WithLabelValues("cache.hit_rate", UnitPercent, "replay", "memory"))
	assert.Equal(t, 75.0, got)

	e.Export([]Record{{MetricType: "cache.hit_rate", Unit: UnitPercent, Value: 50, Labels: map[string]string{"scope": "replay", "model": "memory"}}})
	got = testutil.ToFloat64(e.records.WithLabelValues("cache.hit_rate", UnitPercent, "replay", "memory"))
	assert.Equal(t, 50.0, got, "gauges hold the latest value")
}

func TestExporter_Counters(t *testing.T) {
	e := NewExporter(prometheus.NewRegistry())

	e.Attempt("success", 20*time.Millisecond)
	e.Attempt("retriable_http_error", time.Millisecond)
	e.Attempt("success", time.Millisecond)
	e.Request("new")

	assert.Equal(t, 2.0, testutil.ToFloat64(e.attempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.attempts.WithLabelValues("retriable_http_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.dispatchOutcomes.WithLabelValues("new")))
}

func TestExporter_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewExporter(reg)
	assert.Panics(t, func() { NewExporter(reg) })
}

func TestReporter_Collect(t *testing.T) {
	e := NewExporter(prometheus.NewRegistry())
	r := NewReporter(e, time.Hour, testLogger(),
		func() []Record { return BuildQueueMetrics(QueueSnapshot{Scope: "tasks", Queued: 2}) },
		func() []Record { return BuildCacheMetrics(CacheSnapshot{Scope: "replay"}) },
	)

	records := r.Collect()
	assert.Len(t, records, 15)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.records.WithLabelValues("queue.depth", UnitCount, "tasks", "")))
}

func TestReporter_RunStopsOnCancel(t *testing.T) {
	e := NewExporter(prometheus.NewRegistry())
	var calls atomic.Int32
	r := NewReporter(e, 5*time.Millisecond, testLogger(), func() []Record {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}
