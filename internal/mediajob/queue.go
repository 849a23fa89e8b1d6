// ABOUTME: Mutex-guarded media job queue with simulated async transitions.
// ABOUTME: Timer callbacks mutate jobs through the same locked update helper.

package mediajob

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/clock"
)

// DefaultRetention is how long terminal jobs are kept.
const DefaultRetention = time.Hour

// Config sizes a Queue. A zero Retention selects DefaultRetention.
type Config struct {
	Retention time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used for timestamps and scheduling.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithRand sets the source of uniform [0,1) samples used to decide
// simulated failures.
func WithRand(fn func() float64) Option {
	return func(q *Queue) {
		q.random = fn
	}
}

// WithLogger sets the logger for job transitions.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// Queue holds media jobs for a single process.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
	clock     clock.Clock
	random    func() float64
	logger    *slog.Logger
}

// NewQueue creates an empty queue.
func NewQueue(cfg Config, opts ...Option) *Queue {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	q := &Queue{
		jobs:      make(map[string]*Job),
		retention: retention,
		clock:     clock.Real(),
		random:    rand.Float64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// CreateVideoJob registers a video job and, in simulated mode, schedules
// its transitions.
func (q *Queue) CreateVideoJob(p CreateParams) Job {
	now := q.clock.Now()
	mode := p.Mode
	if mode != ModeFallback {
		mode = ModeSimulated
	}
	segment := p.SegmentIndex
	if segment < 0 {
		segment = 0
	}

	job := &Job{
		JobID:        "media-" + uuid.New().String(),
		Kind:         KindVideo,
		SessionID:    p.SessionID,
		RunID:        p.RunID,
		AssetID:      p.AssetID,
		AssetRef:     p.AssetRef,
		SegmentIndex: segment,
		Provider:     p.Provider,
		Model:        p.Model,
		Mode:         mode,
		Status:       StatusQueued,
		RequestedAt:  now,
		UpdatedAt:    now,
	}
	if mode == ModeFallback {
		started, completed := now, now
		job.Status = StatusCompleted
		job.Attempts = 1
		job.StartedAt = &started
		job.CompletedAt = &completed
	}

	q.mu.Lock()
	q.sweepLocked(now)
	q.jobs[job.JobID] = job
	out := job.clone()
	q.mu.Unlock()

	if mode == ModeSimulated {
		q.schedule(job.JobID, segment, clampRate(p.FailureRate))
	}
	q.logger.Debug("media job created", "job_id", out.JobID, "mode", out.Mode, "segment", segment)
	return out
}

func (q *Queue) schedule(id string, segment int, failureRate float64) {
	q.clock.AfterFunc(StartDelay(segment), func() {
		q.update(id, func(j *Job, now time.Time) {
			j.Status = StatusRunning
			j.Attempts = 1
			started := now
			j.StartedAt = &started
		})

		q.clock.AfterFunc(RunDuration(segment), func() {
			failed := q.random() < failureRate
			q.update(id, func(j *Job, now time.Time) {
				completed := now
				j.CompletedAt = &completed
				if failed {
					msg := SimulatedFailureMessage
					j.Status = StatusFailed
					j.Error = &msg
					return
				}
				j.Status = StatusCompleted
			})
		})
	})
}

// update applies fn to the job with the given id and stamps UpdatedAt.
// Jobs swept before their timer fires are ignored.
func (q *Queue) update(id string, fn func(*Job, time.Time)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return
	}
	now := q.clock.Now()
	fn(job, now)
	job.UpdatedAt = now
	q.logger.Debug("media job transition", "job_id", id, "status", job.Status)
}

// GetByIDs returns the known jobs among ids, in input order.
func (q *Queue) GetByIDs(ids []string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked(q.clock.Now())
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := q.jobs[id]; ok {
			out = append(out, job.clone())
		}
	}
	return out
}

// Stats summarizes the queue for telemetry.
type Stats struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
	// OldestQueuedAge is the age of the oldest job still queued.
	OldestQueuedAge time.Duration
}

// Stats counts jobs by status after a retention sweep.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.sweepLocked(now)
	s := Stats{Total: len(q.jobs)}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			s.Queued++
			if age := now.Sub(job.RequestedAt); age > s.OldestQueuedAge {
				s.OldestQueuedAge = age
			}
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

func (q *Queue) sweepLocked(now time.Time) {
	for id, job := range q.jobs {
		if job.Status.Terminal() && now.Sub(job.UpdatedAt) > q.retention {
			delete(q.jobs, id)
		}
	}
}
