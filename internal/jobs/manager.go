package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apresai/roleplay/internal/observability"
	"github.com/apresai/roleplay/internal/progress"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/apresai/roleplay/internal/jobs")

const (
	defaultMaxJobs  = 5
	defaultThrottle = 2 * time.Second
	failTimeout     = 5 * time.Second
)

// RunFunc is the work a job performs. It reports progress through
// onProgress and returns result fields (IDs, file names) for the job record.
type RunFunc func(ctx context.Context, onProgress progress.Callback) (map[string]string, error)

// Manager runs jobs in background goroutines with a concurrency cap.
type Manager struct {
	store   Store
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown

	// Throttle bounds progress writes within one stage. Stage changes always
	// write.
	Throttle time.Duration

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	cancelled map[string]bool
	maxJobs   int
	running   int
	wg        sync.WaitGroup
}

// NewManager creates a job manager. baseCtx should be cancelled on SIGTERM
// so running jobs can be marked failed before exit.
func NewManager(store Store, maxJobs int, logger *slog.Logger, baseCtx context.Context) *Manager {
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &Manager{
		store:     store,
		log:       logger,
		baseCtx:   baseCtx,
		Throttle:  defaultThrottle,
		cancels:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
		maxJobs:   maxJobs,
	}
}

// Store returns the backing job store.
func (m *Manager) Store() Store { return m.store }

// Start records a new job and runs fn in a goroutine. It returns the job ID
// without waiting for fn.
func (m *Manager) Start(ctx context.Context, kind string, fn RunFunc) (string, error) {
	m.mu.Lock()
	if m.running >= m.maxJobs {
		m.mu.Unlock()
		return "", fmt.Errorf("%w (%d)", ErrCapacity, m.maxJobs)
	}
	m.running++
	m.mu.Unlock()

	job, err := m.store.Create(ctx, kind)
	if err != nil {
		m.release("")
		return "", fmt.Errorf("create job: %w", err)
	}

	// The job outlives the request that started it, so it hangs off baseCtx
	// and only borrows the request's trace.
	jobCtx := observability.DetachTraceContextFrom(ctx, m.baseCtx)
	jobCtx, cancel := context.WithCancel(jobCtx)

	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(jobCtx, job.ID, kind, fn)
	return job.ID, nil
}

// Cancel stops a running job. It reports whether the job was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.cancels[id]
	if ok {
		m.cancelled[id] = true
		cancel()
	}
	return ok
}

// Running returns the number of jobs in flight.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	if id != "" {
		if cancel, ok := m.cancels[id]; ok {
			cancel()
		}
		delete(m.cancels, id)
		delete(m.cancelled, id)
	}
	m.running--
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, id, kind string, fn RunFunc) {
	defer m.wg.Done()

	ctx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job_id", id),
			attribute.String("job_kind", kind),
		),
	)
	defer span.End()

	log := m.log.With("job_id", id, "kind", kind)
	start := time.Now()

	defer func() {
		if ctx.Err() != nil {
			m.mu.Lock()
			byUser := m.cancelled[id]
			m.mu.Unlock()
			reason := "server shutdown during processing"
			if byUser {
				reason = "cancelled"
			}
			m.fail(id, reason)
			log.Info("Marked job as failed", "reason", reason)
		}
		m.release(id)
	}()

	// Throttle store writes: at most one per Throttle except on stage changes.
	var (
		pmu       sync.Mutex
		lastWrite time.Time
		lastStage progress.Stage
	)
	onProgress := func(evt progress.Event) {
		// Completion is recorded once fn returns with its result.
		if evt.Stage == progress.StageComplete {
			return
		}
		pmu.Lock()
		defer pmu.Unlock()
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		if !stageChanged && now.Sub(lastWrite) < m.Throttle {
			return
		}
		if stageChanged {
			span.AddEvent("stage_transition", trace.WithAttributes(
				attribute.String("stage", string(evt.Stage)),
				attribute.Float64("percent", evt.Percent),
			))
		}
		status := mapStage(evt.Stage)
		_, err := m.store.Update(ctx, id, func(j *Job) {
			j.Status = status
			j.Percent = evt.Percent
			j.Message = evt.Message
		})
		if err != nil {
			log.WarnContext(ctx, "Update progress failed", "error", err)
		}
		lastWrite = now
		lastStage = evt.Stage
	}

	log.InfoContext(ctx, "Job starting")
	result, runErr := fn(ctx, onProgress)
	elapsed := time.Since(start).Round(time.Millisecond)

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "interrupted")
		return
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "job failed")
		log.ErrorContext(ctx, "Job failed", "error", runErr, "elapsed", elapsed.String())
		m.fail(id, runErr.Error())
		return
	}

	_, err := m.store.Update(ctx, id, func(j *Job) {
		j.Status = StatusComplete
		j.Percent = 1
		j.Message = "Complete"
		j.Result = result
	})
	if err != nil {
		log.ErrorContext(ctx, "Complete job failed", "error", err)
	}
	for k, v := range result {
		span.SetAttributes(attribute.String("result."+k, v))
	}
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Job complete", "elapsed", elapsed.String())
}

func (m *Manager) fail(id, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()
	_, err := m.store.Update(ctx, id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = msg
		j.Message = "Failed: " + msg
	})
	if err != nil {
		m.log.Warn("Fail job failed", "job_id", id, "error", err)
	}
}

// mapStage maps a pipeline progress stage to a job status.
func mapStage(stage progress.Stage) Status {
	switch stage {
	case progress.StageIngest:
		return StatusIngesting
	case progress.StageExtract:
		return StatusExtracting
	case progress.StagePersona:
		return StatusPersona
	case progress.StagePrompt:
		return StatusPrompt
	case progress.StageDrift:
		return StatusTesting
	case progress.StageComplete:
		return StatusComplete
	default:
		return StatusSubmitted
	}
}
