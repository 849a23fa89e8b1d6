// ABOUTME: Media job record, mode and status values, and creation parameters.
// ABOUTME: Timing helpers compute the staggered simulated transition delays.

package mediajob

import "time"

// Mode selects how a job is executed.
type Mode string

const (
	ModeFallback  Mode = "fallback"
	ModeSimulated Mode = "simulated"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// KindVideo is the only job kind produced today.
const KindVideo = "video"

// SimulatedFailureMessage is the error recorded on simulated failures.
const SimulatedFailureMessage = "simulated media generation failed"

// Job is a snapshot of one media job.
type Job struct {
	JobID        string     `json:"jobId"`
	Kind         string     `json:"kind"`
	SessionID    string     `json:"sessionId"`
	RunID        string     `json:"runId"`
	AssetID      string     `json:"assetId"`
	AssetRef     string     `json:"assetRef"`
	SegmentIndex int        `json:"segmentIndex"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Mode         Mode       `json:"mode"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	RequestedAt  time.Time  `json:"requestedAt"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Error        *string    `json:"error"`
}

func (j *Job) clone() Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

// CreateParams describes a video job. An empty Mode means ModeSimulated.
type CreateParams struct {
	SessionID    string  `json:"sessionId"`
	RunID        string  `json:"runId"`
	AssetID      string  `json:"assetId"`
	AssetRef     string  `json:"assetRef"`
	SegmentIndex int     `json:"segmentIndex"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Mode         Mode    `json:"mode"`
	FailureRate  float64 `json:"failureRate"`
}

// StartDelay is how long a simulated job stays queued.
func StartDelay(segment int) time.Duration {
	return time.Duration(120+35*segment) * time.Millisecond
}

// RunDuration is how long a simulated job runs before finishing.
func RunDuration(segment int) time.Duration {
	return time.Duration(900+110*segment) * time.Millisecond
}

func clampRate(rate float64) float64 {
	if rate != rate || rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
