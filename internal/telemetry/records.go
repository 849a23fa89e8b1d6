// ABOUTME: Pure metric builders for queue and cache snapshots.
// ABOUTME: Counts clamp to >= 0, percentages to [0,100], ratios guard zero denominators.

package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
)

// Units used by metric records.
const (
	UnitCount        = "count"
	UnitPercent      = "percent"
	UnitMilliseconds = "ms"
	UnitPerSecond    = "per_second"
)

// Record is one flat metric sample.
type Record struct {
	MetricType string            `json:"metricType"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// QueueSnapshot describes a work queue at one instant.
type QueueSnapshot struct {
	Scope             string
	Queued            float64
	Running           float64
	Completed         float64
	Failed            float64
	OldestQueuedAgeMs float64
	// WindowMs is the period Completed was counted over; zero disables throughput.
	WindowMs float64
}

// CacheSnapshot describes a cache or ledger at one instant.
type CacheSnapshot struct {
	Scope     string
	Model     string
	Hits      float64
	Misses    float64
	Entries   float64
	Evictions float64
	Conflicts float64
	// HitRatePct overrides the derived hit rate when set.
	HitRatePct *float64
}

// BuildQueueMetrics flattens a queue snapshot.
func BuildQueueMetrics(s QueueSnapshot) []Record {
	queued := count(s.Queued)
	running := count(s.Running)
	completed := count(s.Completed)
	failed := count(s.Failed)
	window := count(s.WindowMs)

	labels := map[string]string{"scope": scopeOr(s.Scope, "queue")}
	if window > 0 {
		labels["windowMs"] = strconv.FormatFloat(window, 'f', -1, 64)
	}

	return []Record{
		record("queue.depth", queued, UnitCount, labels),
		record("queue.in_flight", running, UnitCount, labels),
		record("queue.backlog", queued+running, UnitCount, labels),
		record("queue.completed", completed, UnitCount, labels),
		record("queue.failed", failed, UnitCount, labels),
		record("queue.failure_rate", percent(ratio(failed, completed+failed)*100), UnitPercent, labels),
		record("queue.oldest_age", count(s.OldestQueuedAgeMs), UnitMilliseconds, labels),
		record("queue.throughput", ratio(completed, window/1000), UnitPerSecond, labels),
	}
}

// BuildCacheMetrics flattens a cache snapshot.
func BuildCacheMetrics(s CacheSnapshot) []Record {
	hits := count(s.Hits)
	misses := count(s.Misses)
	lookups := hits + misses

	hitRate := ratio(hits, lookups) * 100
	if s.HitRatePct != nil {
		hitRate = *s.HitRatePct
	}

	labels := map[string]string{"scope": scopeOr(s.Scope, "cache")}
	if s.Model != "" {
		labels["model"] = s.Model
	}

	return []Record{
		record("cache.hits", hits, UnitCount, labels),
		record("cache.misses", misses, UnitCount, labels),
		record("cache.lookups", lookups, UnitCount, labels),
		record("cache.entries", count(s.Entries), UnitCount, labels),
		record("cache.evictions", count(s.Evictions), UnitCount, labels),
		record("cache.conflicts", count(s.Conflicts), UnitCount, labels),
		record("cache.hit_rate", percent(hitRate), UnitPercent, labels),
	}
}

// QueueSnapshotFromMap reads a snapshot from decoded JSON. Missing or
// non-numeric fields read as zero.
func QueueSnapshotFromMap(m map[string]any) QueueSnapshot {
	return QueueSnapshot{
		Scope:             stringOf(m["scope"]),
		Queued:            number(m["queued"]),
		Running:           number(m["running"]),
		Completed:         number(m["completed"]),
		Failed:            number(m["failed"]),
		OldestQueuedAgeMs: number(m["oldestQueuedAgeMs"]),
		WindowMs:          number(m["windowMs"]),
	}
}

// CacheSnapshotFromMap reads a snapshot from decoded JSON. Missing or
// non-numeric fields read as zero.
func CacheSnapshotFromMap(m map[string]any) CacheSnapshot {
	s := CacheSnapshot{
		Scope:     stringOf(m["scope"]),
		Model:     stringOf(m["model"]),
		Hits:      number(m["hits"]),
		Misses:    number(m["misses"]),
		Entries:   number(m["entries"]),
		Evictions: number(m["evictions"]),
		Conflicts: number(m["conflicts"]),
	}
	if raw, ok := m["hitRatePct"]; ok {
		v := number(raw)
		s.HitRatePct = &v
	}
	return s
}

func record(metricType string, value float64, unit string, labels map[string]string) Record {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return Record{MetricType: metricType, Value: value, Unit: unit, Labels: copied}
}

// count clamps v to a finite non-negative value.
func count(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func percent(v float64) float64 {
	v = count(v)
	if v > 100 {
		return 100
	}
	return v
}

func ratio(num, den float64) float64 {
	if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	return count(count(num) / den)
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func scopeOr(scope, fallback string) string {
	if scope == "" {
		return fallback
	}
	return scope
}
