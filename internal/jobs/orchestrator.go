package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"hevcbatch/internal/ffmpeg"
)

// Prober supplies source metadata; the duration scales progress percentages
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Runner executes one encoder invocation for one request
type Runner interface {
	Run(ctx context.Context, req ffmpeg.Request, totalDuration time.Duration, onProgress func(ffmpeg.Progress)) *ffmpeg.RunResult
}

// Guard delays task dispatch until the host has headroom for another
// encode. Implementations must return promptly once the context is done.
type Guard interface {
	Wait(ctx context.Context) error
}

// ProgressFunc receives live progress for a task
type ProgressFunc func(taskID string, p ffmpeg.Progress)

// CompletionFunc receives the result of a task exactly once
type CompletionFunc func(res Result)

// Orchestrator owns the conversion queue: it bounds concurrency, dispatches
// queued tasks FIFO, serializes all task and report mutation behind one
// lock, and aggregates results into a batch report. One task's failure
// never aborts its siblings.
type Orchestrator struct {
	maxConcurrent int
	prober        Prober
	runner        Runner
	guard         Guard
	log           *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[string]*Task
	pending []string // queued task IDs, FIFO
	cancels map[string]context.CancelFunc
	running int
	report  Report

	progressCb   ProgressFunc
	completionCb CompletionFunc
}

// New creates an Orchestrator. maxConcurrent bounds the number of external
// encoder processes running at once; values below 1 are treated as 1.
func New(maxConcurrent int, prober Prober, runner Runner) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	o := &Orchestrator{
		maxConcurrent: maxConcurrent,
		prober:        prober,
		runner:        runner,
		log:           logrus.WithField("component", "orchestrator"),
		tasks:         make(map[string]*Task),
		cancels:       make(map[string]context.CancelFunc),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// SetResourceGuard installs an optional dispatch guard. Must be called
// before the first Submit.
func (o *Orchestrator) SetResourceGuard(g Guard) {
	o.guard = g
}

// OnProgress registers the progress callback. Progress for a given task is
// delivered in the order the encoder produced it.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progressCb = fn
}

// OnCompletion registers the completion callback, invoked exactly once per
// task with its result
func (o *Orchestrator) OnCompletion(fn CompletionFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completionCb = fn
}

// Submit enqueues a conversion request and returns its task ID without
// blocking. Submission order is dispatch order for tasks that have not yet
// started.
func (o *Orchestrator) Submit(req ffmpeg.Request) string {
	task := &Task{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.pending = append(o.pending, task.ID)
	o.report.Submitted++
	o.dispatchLocked()
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{"task": task.ID, "input": req.InputPath}).Info("task queued")
	return task.ID
}

// Status returns a copy of the task's current state
func (o *Orchestrator) Status(taskID string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns copies of all known tasks in submission order
func (o *Orchestrator) Tasks() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		out = append(out, *task)
	}
	return out
}

// Cancel requests cancellation of a task. Queued tasks transition to
// cancelled immediately; running tasks have their process signaled and the
// call returns without waiting for it to exit.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("task not found: %s", taskID)
	}
	if task.IsTerminal() {
		o.mu.Unlock()
		return fmt.Errorf("task already in terminal state: %s", task.Status)
	}

	if task.Status == StatusQueued {
		o.removePendingLocked(taskID)
		res := Result{
			TaskID:      taskID,
			Status:      StatusCancelled,
			InputPath:   task.Request.InputPath,
			Error:       "cancelled before start",
			CompletedAt: time.Now(),
		}
		cb := o.finishLocked(task, res)
		o.mu.Unlock()
		if cb != nil {
			cb(res)
		}
		return nil
	}

	cancel := o.cancels[taskID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.log.WithField("task", taskID).Info("cancellation signaled")
	return nil
}

// WaitForBatch blocks until the queue is empty and every dispatched task
// has reached a terminal state, then returns the finalized report
func (o *Orchestrator) WaitForBatch() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.pending) > 0 || o.running > 0 {
		o.cond.Wait()
	}

	report := o.report
	report.Results = make([]Result, len(o.report.Results))
	copy(report.Results, o.report.Results)
	return report
}

// dispatchLocked starts queued tasks while running slots are free.
// Must be called with o.mu held.
func (o *Orchestrator) dispatchLocked() {
	for o.running < o.maxConcurrent && len(o.pending) > 0 {
		taskID := o.pending[0]
		o.pending = o.pending[1:]

		task := o.tasks[taskID]
		task.Status = StatusRunning
		task.Stage = StageProbing
		task.StartedAt = time.Now()
		o.running++

		ctx, cancel := context.WithCancel(context.Background())
		o.cancels[taskID] = cancel

		go o.runTask(ctx, cancel, taskID)
	}
}

// runTask drives one task through probe, encode and finalize. All shared
// state mutation funnels back through the orchestrator lock.
func (o *Orchestrator) runTask(ctx context.Context, cancel context.CancelFunc, taskID string) {
	defer cancel()

	o.mu.Lock()
	req := o.tasks[taskID].Request
	o.mu.Unlock()

	if o.guard != nil {
		if err := o.guard.Wait(ctx); err != nil {
			o.complete(taskID, cancelledResult(taskID, req, err))
			return
		}
	}

	var totalDuration time.Duration
	probe, err := o.prober.Probe(ctx, req.InputPath)
	switch {
	case ctx.Err() == context.Canceled:
		o.complete(taskID, cancelledResult(taskID, req, ctx.Err()))
		return
	case err != nil:
		// Unreadable input is a launch error: terminal for this task only
		o.complete(taskID, Result{
			TaskID:      taskID,
			Status:      StatusFailed,
			InputPath:   req.InputPath,
			Error:       fmt.Sprintf("probe failed: %v", err),
			CompletedAt: time.Now(),
		})
		return
	default:
		totalDuration = probe.Duration
	}

	o.setStage(taskID, StageEncoding)
	run := o.runner.Run(ctx, req, totalDuration, func(p ffmpeg.Progress) {
		o.handleProgress(taskID, p)
	})

	o.setStage(taskID, StageFinalizing)
	res := Result{
		TaskID:      taskID,
		InputPath:   run.InputPath,
		OutputPath:  run.OutputPath,
		Elapsed:     run.Elapsed,
		InputSize:   run.InputSize,
		OutputSize:  run.OutputSize,
		Error:       run.ErrorDetail,
		CompletedAt: time.Now(),
	}
	switch run.Outcome {
	case ffmpeg.OutcomeCompleted:
		res.Status = StatusSucceeded
		res.SpaceSaved = run.InputSize - run.OutputSize
		res.Error = ""
	case ffmpeg.OutcomeCancelled:
		res.Status = StatusCancelled
	default:
		res.Status = StatusFailed
	}

	o.complete(taskID, res)
}

func cancelledResult(taskID string, req ffmpeg.Request, err error) Result {
	detail := "conversion cancelled"
	if err != nil && err != context.Canceled {
		detail = err.Error()
	}
	return Result{
		TaskID:      taskID,
		Status:      StatusCancelled,
		InputPath:   req.InputPath,
		Error:       detail,
		CompletedAt: time.Now(),
	}
}

func (o *Orchestrator) setStage(taskID string, stage Stage) {
	o.mu.Lock()
	if task, ok := o.tasks[taskID]; ok && task.Status == StatusRunning {
		task.Stage = stage
	}
	o.mu.Unlock()
}

// handleProgress stores the latest sample on the task and re-emits it.
// The displayed percentage never regresses: a late or out-of-order sample
// keeps the maximum seen so far.
func (o *Orchestrator) handleProgress(taskID string, p ffmpeg.Progress) {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok || task.Status != StatusRunning {
		o.mu.Unlock()
		return
	}
	if p.Percent < task.Progress.Percent {
		p.Percent = task.Progress.Percent
	}
	task.Progress = p
	cb := o.progressCb
	o.mu.Unlock()

	// Per-task ordering holds because each task has a single reader
	// goroutine delivering samples sequentially.
	if cb != nil {
		cb(taskID, p)
	}
}

// complete records a terminal result for a running task, frees its slot
// and dispatches the next queued task
func (o *Orchestrator) complete(taskID string, res Result) {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok || task.IsTerminal() {
		o.mu.Unlock()
		return
	}
	o.running--
	delete(o.cancels, taskID)
	cb := o.finishLocked(task, res)
	o.dispatchLocked()
	o.mu.Unlock()

	if cb != nil {
		cb(res)
	}
}

// finishLocked applies a terminal result to a task and the report.
// Must be called with o.mu held; returns the completion callback to invoke
// after the lock is released.
func (o *Orchestrator) finishLocked(task *Task, res Result) CompletionFunc {
	task.Status = res.Status
	task.Stage = ""
	task.CompletedAt = res.CompletedAt
	task.Result = &res
	if res.Status == StatusSucceeded {
		task.Progress.Percent = 100
	}

	o.report.Results = append(o.report.Results, res)
	switch res.Status {
	case StatusSucceeded:
		o.report.Succeeded++
		o.report.TotalSpaceSaved += res.SpaceSaved
	case StatusFailed:
		o.report.Failed++
	case StatusCancelled:
		o.report.Cancelled++
	}

	o.log.WithFields(logrus.Fields{
		"task":   task.ID,
		"status": res.Status,
	}).Info("task finished")

	o.cond.Broadcast()
	return o.completionCb
}

// removePendingLocked drops a task ID from the pending queue.
// Must be called with o.mu held.
func (o *Orchestrator) removePendingLocked(taskID string) {
	for i, id := range o.pending {
		if id == taskID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}
