package jobs

import (
	"time"

	"hevcbatch/internal/ffmpeg"
)

// Status represents the current state of a conversion task
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage marks which phase a running conversion is in
type Stage string

const (
	StageProbing    Stage = "probing"
	StageEncoding   Stage = "encoding"
	StageFinalizing Stage = "finalizing"
)

// Task wraps one conversion request with its lifecycle state. Tasks are
// owned by the Orchestrator; callers see copies.
type Task struct {
	ID          string          `json:"id"`
	Request     ffmpeg.Request  `json:"request"`
	Status      Status          `json:"status"`
	Stage       Stage           `json:"stage,omitempty"`
	Progress    ffmpeg.Progress `json:"progress"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	Result      *Result         `json:"result,omitempty"`
}

// IsTerminal returns true if the task has reached a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed || t.Status == StatusCancelled
}

// Result is the immutable outcome of one task, produced exactly once when
// the task reaches a terminal state
type Result struct {
	TaskID      string        `json:"task_id"`
	Status      Status        `json:"status"` // succeeded, failed or cancelled
	InputPath   string        `json:"input_path"`
	OutputPath  string        `json:"output_path,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	InputSize   int64         `json:"input_size"`
	OutputSize  int64         `json:"output_size,omitempty"`
	SpaceSaved  int64         `json:"space_saved,omitempty"` // InputSize - OutputSize
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Report aggregates a batch of conversions. Results appear in completion
// order, not submission order.
type Report struct {
	Submitted       int      `json:"submitted"`
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	Cancelled       int      `json:"cancelled"`
	TotalSpaceSaved int64    `json:"total_space_saved"`
	Results         []Result `json:"results"`
}

// Done reports whether every submitted task has a terminal outcome
func (r *Report) Done() bool {
	return r.Succeeded+r.Failed+r.Cancelled == r.Submitted
}
