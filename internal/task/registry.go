// ABOUTME: Mutex-guarded task registry with start/update/get/list operations.
// ABOUTME: Runs retention sweep and capacity eviction after each mutation.

package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/clock"
)

const (
	// MinRetention is the smallest accepted CompletedRetention.
	MinRetention = time.Second
	// MinEntries is the smallest accepted MaxEntries.
	MinEntries = 50

	DefaultRetention  = 10 * time.Minute
	DefaultMaxEntries = 1000

	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Config sizes a Registry. Zero values select defaults; values below the
// floors are raised to them.
type Config struct {
	CompletedRetention time.Duration
	MaxEntries         int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for timestamps and retention.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithOnChange registers fn to receive every started or updated record.
// fn runs after the registry lock is released.
func WithOnChange(fn func(Record)) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// Registry tracks tasks for a single gateway process.
type Registry struct {
	mu         sync.Mutex
	tasks      map[string]*Record
	retention  time.Duration
	maxEntries int
	clock      clock.Clock
	onChange   func(Record)
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	retention := cfg.CompletedRetention
	if retention == 0 {
		retention = DefaultRetention
	}
	if retention < MinRetention {
		retention = MinRetention
	}
	maxEntries := cfg.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxEntries < MinEntries {
		maxEntries = MinEntries
	}

	r := &Registry{
		tasks:      make(map[string]*Record),
		retention:  retention,
		maxEntries: maxEntries,
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a task, or reactivates the one with the same id.
func (r *Registry) Start(p StartParams) Record {
	r.mu.Lock()
	now := r.clock.Now()

	id := p.TaskID
	if id == "" {
		id = "task-" + uuid.New().String()
	}

	rec, ok := r.tasks[id]
	switch {
	case !ok:
		rec = &Record{
			TaskID:      id,
			SessionID:   p.SessionID,
			RunID:       optional(p.RunID),
			Intent:      optional(p.Intent),
			Route:       optional(p.Route),
			Status:      StatusQueued,
			ProgressPct: 0,
			Stage:       p.Stage,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if rec.Stage == "" {
			rec.Stage = string(StatusQueued)
		}
		r.tasks[id] = rec
	case rec.Status.Terminal():
		rec.Status = StatusRunning
		rec.ProgressPct = 0
		rec.Error = nil
		if rec.Stage == string(StatusCompleted) || rec.Stage == string(StatusFailed) {
			rec.Stage = string(StatusRunning)
		}
		applyStart(rec, p, now)
	default:
		applyStart(rec, p, now)
	}

	out := rec.clone()
	r.maintainLocked(now)
	r.mu.Unlock()

	r.notify(out)
	return out
}

func applyStart(rec *Record, p StartParams, now time.Time) {
	if p.SessionID != "" {
		rec.SessionID = p.SessionID
	}
	if p.RunID != "" {
		rec.RunID = optional(p.RunID)
	}
	if p.Intent != "" {
		rec.Intent = optional(p.Intent)
	}
	if p.Route != "" {
		rec.Route = optional(p.Route)
	}
	if p.Stage != "" {
		rec.Stage = p.Stage
	}
	rec.UpdatedAt = now
}

// Update merges p into the task with the given id. It returns false if the
// task is unknown.
func (r *Registry) Update(taskID string, p UpdateParams) (Record, bool) {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return Record{}, false
	}
	now := r.clock.Now()

	if p.Status != "" {
		rec.Status = p.Status
	}
	switch {
	case p.ProgressPct != nil:
		rec.ProgressPct = clampProgress(*p.ProgressPct)
	case p.Status.Terminal():
		rec.ProgressPct = 100
	}
	if p.Stage != "" {
		rec.Stage = p.Stage
	}
	if p.Route != "" {
		rec.Route = optional(p.Route)
	}
	if p.Error != nil {
		rec.Error = copyString(p.Error)
	}
	rec.UpdatedAt = now

	out := rec.clone()
	r.maintainLocked(now)
	r.mu.Unlock()

	r.notify(out)
	return out, true
}

// Get returns a copy of the task with the given id.
func (r *Registry) Get(taskID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// ListActive returns non-terminal tasks, most recently updated first.
func (r *Registry) ListActive(p ListParams) []Record {
	limit := p.Limit
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 1:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	r.mu.Lock()
	out := make([]Record, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if rec.Status.Terminal() {
			continue
		}
		if p.SessionID != "" && rec.SessionID != p.SessionID {
			continue
		}
		out = append(out, rec.clone())
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats counts tasks by status.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Total: len(r.tasks), ByStatus: make(map[Status]int)}
	for _, rec := range r.tasks {
		s.ByStatus[rec.Status]++
		if !rec.Status.Terminal() {
			s.Active++
		}
	}
	return s
}

// maintainLocked sweeps expired terminal tasks and evicts terminal tasks
// oldest-first while over capacity. Must be called with mu held.
func (r *Registry) maintainLocked(now time.Time) {
	r.sweepLocked(now)
	if len(r.tasks) <= r.maxEntries {
		return
	}

	all := make([]*Record, 0, len(r.tasks))
	for _, rec := range r.tasks {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.Before(all[j].UpdatedAt)
	})
	for _, rec := range all {
		if len(r.tasks) <= r.maxEntries {
			break
		}
		if rec.Status.Terminal() {
			delete(r.tasks, rec.TaskID)
		}
	}
	r.sweepLocked(now)
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, rec := range r.tasks {
		if rec.Status.Terminal() && now.Sub(rec.UpdatedAt) > r.retention {
			delete(r.tasks, id)
		}
	}
}

func (r *Registry) notify(rec Record) {
	if r.onChange != nil {
		r.onChange(rec)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
