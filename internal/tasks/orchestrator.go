package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/catalog"
	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
	"github.com/cropsight-lab/cropsight/internal/pipeline"
)

// ErrHardTimeout marks a task forcibly terminated at the hard wall-clock
// ceiling. Never retried: the work may still be running and a retry would
// duplicate it.
var ErrHardTimeout = errors.New("task exceeded hard time limit")

// ErrQueueFull is returned when the task queue cannot accept more work.
var ErrQueueFull = errors.New("task queue is full")

// ErrUnknownTask is returned by Status for expired or never-seen handles.
var ErrUnknownTask = errors.New("unknown task handle")

const (
	defaultWorkerCount       = 2
	defaultMaxAttempts       = 3
	defaultRetryDelay        = 60 * time.Second
	defaultImageryRetryDelay = 120 * time.Second
	defaultSoftTimeout       = 9 * time.Minute
	defaultHardTimeout       = 10 * time.Minute
	defaultResultTTL         = time.Hour
	defaultQueueSize         = 256

	janitorInterval = time.Minute
)

// Options tune the orchestrator. Zero values take the defaults above.
// Heavy raster work is deliberately throttled to a small worker count to
// bound memory and avoid saturating the remote catalog.
type Options struct {
	Runner *pipeline.Runner
	Client catalog.Client
	Farms  storage.FarmStore

	WorkerCount       int
	MaxAttempts       int
	RetryDelay        time.Duration
	ImageryRetryDelay time.Duration
	SoftTimeout       time.Duration
	HardTimeout       time.Duration
	ResultTTL         time.Duration
	QueueSize         int

	Now func() time.Time
}

func (o Options) normalized() Options {
	n := o
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = defaultMaxAttempts
	}
	if n.RetryDelay <= 0 {
		n.RetryDelay = defaultRetryDelay
	}
	if n.ImageryRetryDelay <= 0 {
		n.ImageryRetryDelay = defaultImageryRetryDelay
	}
	if n.SoftTimeout <= 0 {
		n.SoftTimeout = defaultSoftTimeout
	}
	if n.HardTimeout <= 0 {
		n.HardTimeout = defaultHardTimeout
	}
	if n.ResultTTL <= 0 {
		n.ResultTTL = defaultResultTTL
	}
	if n.QueueSize <= 0 {
		n.QueueSize = defaultQueueSize
	}
	if n.Now == nil {
		n.Now = time.Now
	}
	return n
}

// task is the internal queued unit: the record plus how to run it.
type task struct {
	id         uuid.UUID
	kind       string
	retryDelay time.Duration
	run        func(ctx context.Context) (any, error)
}

// Orchestrator owns the in-process task queue, the worker pool and the
// result table. Construct with NewOrchestrator, then Start.
type Orchestrator struct {
	opts Options

	jobs chan *task
	wg   sync.WaitGroup

	mu      sync.Mutex
	records map[uuid.UUID]*Record
	started bool
	ctx     context.Context
}

func NewOrchestrator(opts Options) *Orchestrator {
	n := opts.normalized()
	return &Orchestrator{
		opts:    n,
		jobs:    make(chan *task, n.QueueSize),
		records: make(map[uuid.UUID]*Record),
	}
}

// Start launches the worker pool and the result janitor. Workers run until
// the context is cancelled; Wait blocks until they have all exited.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.ctx = ctx
	o.mu.Unlock()

	slog.Info("[Orchestrator] Starting worker pool",
		"workers", o.opts.WorkerCount,
		"max_attempts", o.opts.MaxAttempts,
		"soft_timeout", o.opts.SoftTimeout,
		"hard_timeout", o.opts.HardTimeout,
	)

	for i := 0; i < o.opts.WorkerCount; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
	o.wg.Add(1)
	go o.janitor(ctx)
}

// Wait blocks until all workers and the janitor have stopped.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ScheduleAnalysis queues a full pipeline run and returns its handle.
// Malformed boundaries are rejected here, before any acquisition begins.
func (o *Orchestrator) ScheduleAnalysis(req pipeline.Request) (uuid.UUID, error) {
	if ring := req.Boundary.Ring(); len(ring) > 0 {
		if _, err := geometry.NewPolygon(ring); err != nil {
			return uuid.Nil, err
		}
	}
	return o.enqueue(KindAnalysis, o.opts.RetryDelay, func(ctx context.Context) (any, error) {
		return o.opts.Runner.Run(ctx, req)
	})
}

// SceneReport is the result of an imagery-fetch task.
type SceneReport struct {
	SceneID    string    `json:"scene_id"`
	CapturedAt time.Time `json:"captured_at"`
	CloudCover float64   `json:"cloud_cover"`
	Candidates int       `json:"candidates"`
}

// ScheduleImageryFetch queues a catalog-only task: search scenes covering
// the boundary and report the best candidate. Uses the longer retry delay
// since the catalog is the only collaborator involved.
func (o *Orchestrator) ScheduleImageryFetch(boundary geometry.Polygon, opts catalog.SearchOptions) (uuid.UUID, error) {
	if _, err := geometry.NewPolygon(boundary.Ring()); err != nil {
		return uuid.Nil, err
	}
	return o.enqueue(KindImageryFetch, o.opts.ImageryRetryDelay, func(ctx context.Context) (any, error) {
		scenes, err := o.opts.Client.SearchScenes(ctx, boundary, opts)
		if err != nil {
			return nil, err
		}
		if len(scenes) == 0 {
			return nil, errors.New("no scenes found for boundary")
		}
		best := scenes[0]
		return &SceneReport{
			SceneID:    best.ID,
			CapturedAt: best.CapturedAt,
			CloudCover: best.CloudCover,
			Candidates: len(scenes),
		}, nil
	})
}

// RunFleetScan queues an analysis for every farm and returns how many were
// queued. Fire-and-forget from the caller's perspective.
func (o *Orchestrator) RunFleetScan(ctx context.Context) (int, error) {
	farms, err := o.opts.Farms.ListFarms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list farms: %w", err)
	}

	queued := 0
	for _, farm := range farms {
		_, err := o.ScheduleAnalysis(pipeline.Request{
			UserID:   farm.OwnerID,
			FarmID:   farm.ID,
			Boundary: farm.Boundary,
		})
		if err != nil {
			slog.Warn("[Orchestrator] Fleet scan could not queue farm",
				"farm_id", farm.ID,
				"error", err,
			)
			continue
		}
		queued++
	}

	slog.Info("[Orchestrator] Fleet scan queued", "farms", queued)
	return queued, nil
}

// Status returns the current snapshot for a task handle.
func (o *Orchestrator) Status(id uuid.UUID) (Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return Record{}, ErrUnknownTask
	}
	return *rec, nil
}

func (o *Orchestrator) enqueue(kind string, retryDelay time.Duration, run func(ctx context.Context) (any, error)) (uuid.UUID, error) {
	t := &task{
		id:         uuid.New(),
		kind:       kind,
		retryDelay: retryDelay,
		run:        run,
	}

	o.mu.Lock()
	o.records[t.id] = &Record{
		ID:        t.id,
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: o.opts.Now().UTC(),
	}
	o.mu.Unlock()

	select {
	case o.jobs <- t:
		return t.id, nil
	default:
		o.mu.Lock()
		delete(o.records, t.id)
		o.mu.Unlock()
		return uuid.Nil, ErrQueueFull
	}
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[Orchestrator] Worker stopping", "worker", id)
			return
		case t := <-o.jobs:
			o.execute(ctx, t)
		}
	}
}

// execute runs one task through its retry policy. The record is only
// finalized after the last attempt, so a poll during backoff sees
// "retrying", not "failed".
func (o *Orchestrator) execute(ctx context.Context, t *task) {
	attempt := 0
	var result any

	operation := func() error {
		attempt++
		o.update(t.id, func(r *Record) {
			r.Status = StatusRunning
			r.Attempts = attempt
		})

		res, err := o.runAttempt(ctx, t)
		if err == nil {
			result = res
			return nil
		}

		if permanentFailure(err) {
			return backoff.Permanent(err)
		}

		if attempt < o.opts.MaxAttempts {
			slog.Warn("[Orchestrator] Task attempt failed, will retry",
				"task_id", t.id,
				"kind", t.kind,
				"attempt", attempt,
				"retry_delay", t.retryDelay,
				"error", err,
			)
			o.update(t.id, func(r *Record) { r.Status = StatusRetrying })
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.retryDelay), uint64(o.opts.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)

	completed := o.opts.Now().UTC()
	o.update(t.id, func(r *Record) {
		r.CompletedAt = &completed
		if err != nil {
			r.Status = StatusFailed
			r.Error = err.Error()
			return
		}
		r.Status = StatusSucceeded
		r.Result = result
	})

	if err != nil {
		slog.Error("[Orchestrator] Task failed permanently",
			"task_id", t.id,
			"kind", t.kind,
			"attempts", attempt,
			"error", err,
		)
		return
	}
	slog.Info("[Orchestrator] Task succeeded",
		"task_id", t.id,
		"kind", t.kind,
		"attempts", attempt,
	)
}

// runAttempt enforces the two ceilings: the soft deadline cancels the
// attempt's context so the pipeline can return early on its next I/O call;
// the hard ceiling abandons the attempt outright. An abandoned attempt's
// goroutine is left to finish against its cancelled context.
func (o *Orchestrator) runAttempt(ctx context.Context, t *task) (any, error) {
	softCtx, cancel := context.WithTimeout(ctx, o.opts.SoftTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := t.run(softCtx)
		done <- outcome{result: res, err: err}
	}()

	hard := time.NewTimer(o.opts.HardTimeout)
	defer hard.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-hard.C:
		cancel()
		return nil, ErrHardTimeout
	}
}

// janitor drops completed records once their retention window passes, so
// the result table cannot grow without bound.
func (o *Orchestrator) janitor(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.expireResults()
		}
	}
}

func (o *Orchestrator) expireResults() {
	cutoff := o.opts.Now().UTC().Add(-o.opts.ResultTTL)

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, rec := range o.records {
		if rec.done() && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(o.records, id)
		}
	}
}

func (o *Orchestrator) update(id uuid.UUID, fn func(*Record)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[id]; ok {
		fn(rec)
	}
}

// permanentFailure reports errors that must never be retried: malformed
// boundaries and hard-ceiling terminations.
func permanentFailure(err error) bool {
	return errors.Is(err, geometry.ErrTooFewPoints) ||
		errors.Is(err, geometry.ErrRingNotClosed) ||
		errors.Is(err, ErrHardTimeout)
}
