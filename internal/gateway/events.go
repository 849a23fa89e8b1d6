// ABOUTME: Task change fan-out and telemetry sources for the gateway
// ABOUTME: Bridges the task registry, media queue, and ledger into events and metrics

package gateway

import (
	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/task"
	"github.com/2389/realtime-gateway/internal/telemetry"
)

// publishTask pushes a task.updated envelope to the task's session subscribers.
func (g *Gateway) publishTask(rec task.Record) {
	env := envelope.New(envelope.TypeTaskUpdated, source, rec.SessionID, map[string]any{
		"task": rec,
	})
	if rec.RunID != nil {
		env.RunID = *rec.RunID
	}
	g.events.Publish(rec.SessionID, env)
}

// telemetrySources samples the task registry, media queue, and replay ledger.
func (g *Gateway) telemetrySources() []telemetry.Source {
	return []telemetry.Source{
		func() []telemetry.Record {
			stats := g.tasks.Stats()
			return telemetry.BuildQueueMetrics(telemetry.QueueSnapshot{
				Scope:     "tasks",
				Queued:    float64(stats.ByStatus[task.StatusQueued] + stats.ByStatus[task.StatusPendingApproval]),
				Running:   float64(stats.ByStatus[task.StatusRunning]),
				Completed: float64(stats.ByStatus[task.StatusCompleted]),
				Failed:    float64(stats.ByStatus[task.StatusFailed]),
				WindowMs:  float64(g.config.Tasks.CompletedRetention.Milliseconds()),
			})
		},
		func() []telemetry.Record {
			stats := g.media.Stats()
			return telemetry.BuildQueueMetrics(telemetry.QueueSnapshot{
				Scope:             "media",
				Queued:            float64(stats.Queued),
				Running:           float64(stats.Running),
				Completed:         float64(stats.Completed),
				Failed:            float64(stats.Failed),
				OldestQueuedAgeMs: float64(stats.OldestQueuedAge.Milliseconds()),
				WindowMs:          float64(g.config.Media.Retention.Milliseconds()),
			})
		},
		func() []telemetry.Record {
			stats := g.ledger.Stats()
			return telemetry.BuildCacheMetrics(telemetry.CacheSnapshot{
				Scope:     "replay",
				Model:     g.config.Replay.Backend,
				Hits:      float64(stats.Hits),
				Misses:    float64(stats.Misses),
				Entries:   float64(stats.Entries),
				Evictions: float64(stats.Evictions),
				Conflicts: float64(stats.Conflicts),
			})
		},
	}
}
