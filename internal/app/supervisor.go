package app

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"

	"github.com/Sharonmee/OpenEye/internal/interfaces"
	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/progress"
	"github.com/Sharonmee/OpenEye/internal/scan"
	"github.com/Sharonmee/OpenEye/internal/store"
)

// Supervisor owns the population of scan runs: it creates jobs, launches at
// most one orchestrator run per job, bounds how many run concurrently and
// answers status/results/cancel queries scoped to the requesting owner.
type Supervisor struct {
	cfg    *Config
	engine interfaces.Engine
	store  *store.Store
	logger logging.Logger
	orch   *Orchestrator

	sem *semaphore.Weighted

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// run is the in-memory side of one launched job: its cancellation handle and
// the event channel websocket watchers drain.
type run struct {
	cancel context.CancelFunc
	events chan Event
}

// NewSupervisor wires a Supervisor and its Orchestrator.
func NewSupervisor(cfg *Config, engine interfaces.Engine, st *store.Store, logger logging.Logger) *Supervisor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxConcurrentScans < 1 {
		cfg.MaxConcurrentScans = 1
	}
	s := &Supervisor{
		cfg:    cfg,
		engine: engine,
		store:  st,
		logger: logger,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentScans),
		runs:   make(map[string]*run),
	}
	s.orch = NewOrchestrator(cfg, engine, st, logger, s.emit)
	return s
}

// Submit validates the request, persists a pending job and launches its run.
// The run may wait for a concurrency slot; the job stays pending until one
// frees up.
func (s *Supervisor) Submit(ctx context.Context, owner, targetURL string, tool scan.Tool, cfg scan.Config) (*scan.Job, error) {
	if targetURL == "" {
		return nil, fmt.Errorf("%w: target_url is required", scan.ErrValidation)
	}
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: target_url must be an absolute http(s) URL", scan.ErrValidation)
	}
	if tool == "" {
		tool = scan.ToolZAP
	}
	if !scan.SupportedTool(tool) {
		return nil, fmt.Errorf("%w: unsupported tool %q", scan.ErrValidation, tool)
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = scan.DefaultConfig().MaxChildren
	}
	if cfg.ScanPolicy == "" {
		cfg.ScanPolicy = scan.DefaultConfig().ScanPolicy
	}

	// Reporting scope. IP literals are their own scope; for names the
	// registrable domain, falling back to the bare host when there is no
	// public suffix (localhost and friends).
	scope := u.Hostname()
	if net.ParseIP(scope) == nil {
		if registrable, err := publicsuffix.EffectiveTLDPlusOne(scope); err == nil {
			scope = registrable
		}
	}

	job := &scan.Job{
		ID:        uuid.New().String(),
		Owner:     owner,
		TargetURL: targetURL,
		Scope:     scope,
		Tool:      tool,
		Config:    cfg,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.startRun(job); err != nil {
		return nil, err
	}
	s.logger.Info("scan submitted",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "target", Value: targetURL},
		logging.Field{Key: "scope", Value: scope},
		logging.Field{Key: "tool", Value: string(tool)})
	return job, nil
}

// startRun launches the single orchestrator run bound to job. Refuses a
// second run for an id that already has one.
func (s *Supervisor) startRun(job *scan.Job) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is shut down")
	}
	if _, exists := s.runs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s already has an active run", job.ID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, events: make(chan Event, 16)}
	s.runs[job.ID] = r
	s.wg.Add(1)
	s.mu.Unlock()

	s.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusPending})

	go func() {
		defer s.wg.Done()
		defer s.finishRun(job.ID)
		defer cancel()

		// Wait for a concurrency slot; the job is pending until then.
		if err := s.sem.Acquire(runCtx, 1); err != nil {
			// Cancelled while queued. No engine traffic has happened.
			if err := s.store.MarkCancelled(context.Background(), job.ID); err != nil {
				s.logger.Warn("cancelling queued job",
					logging.Field{Key: "job_id", Value: job.ID},
					logging.Field{Key: "error", Value: err.Error()})
				return
			}
			s.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusCancelled})
			return
		}
		defer s.sem.Release(1)

		s.orch.Run(runCtx, job)
	}()
	return nil
}

// finishRun removes the run and closes its event channel so watchers drain
// out cleanly.
func (s *Supervisor) finishRun(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[jobID]; ok {
		delete(s.runs, jobID)
		close(r.events)
	}
}

// emit publishes an event to the job's watchers. Non-blocking; dropped when
// the buffer is full. The map lock is held across the send so a concurrent
// finishRun cannot close the channel under us.
func (s *Supervisor) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[ev.JobID]
	if !ok {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}

// JobView is the owner-facing status projection of a job.
type JobView struct {
	JobID           string      `json:"job_id"`
	Status          scan.Status `json:"status"`
	ProgressPercent float64     `json:"progress_percent"`
	Phase           string      `json:"phase"`
	TargetURL       string      `json:"target_url"`
	Scope           string      `json:"scope"`
	Tool            scan.Tool   `json:"tool"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	DurationSeconds *float64    `json:"duration_seconds,omitempty"`
}

// ResultsView is the owner-facing projection of a completed job's findings.
type ResultsView struct {
	JobID     string       `json:"job_id"`
	TargetURL string       `json:"target_url"`
	Scope     string       `json:"scope"`
	Tool      scan.Tool    `json:"tool"`
	Alerts    []scan.Alert `json:"alerts"`
	Summary   scan.Summary `json:"summary"`
}

// ownedJob loads a job and hides it from everyone but its owner.
func (s *Supervisor) ownedJob(ctx context.Context, jobID, owner string) (*scan.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, scan.ErrNotFound
	}
	return job, nil
}

// Status returns the job view with estimated progress. Live engine samples
// take precedence; the elapsed-time schedule covers jobs with none.
func (s *Supervisor) Status(ctx context.Context, jobID, owner string) (*JobView, error) {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return nil, err
	}
	return s.view(job), nil
}

func (s *Supervisor) view(job *scan.Job) *JobView {
	percent, phase := progress.Estimate(job.Status, time.Since(job.CreatedAt))
	if job.Status == scan.StatusRunning && job.ProgressPhase != "" {
		if live, ok := progress.FromLive(job.ProgressPhase, job.ProgressPercent); ok {
			percent, phase = live, job.ProgressPhase
		}
	}

	v := &JobView{
		JobID:           job.ID,
		Status:          job.Status,
		ProgressPercent: percent,
		Phase:           phase,
		TargetURL:       job.TargetURL,
		Scope:           job.Scope,
		Tool:            job.Tool,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
	if d, ok := job.DurationSeconds(); ok {
		v.DurationSeconds = &d
	}
	return v
}

// List returns the owner's jobs as status views, newest first.
func (s *Supervisor) List(ctx context.Context, owner string) ([]*JobView, error) {
	jobs, err := s.store.ListJobsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]*JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, s.view(j))
	}
	return views, nil
}

// Results returns the aggregated findings of a completed job.
func (s *Supervisor) Results(ctx context.Context, jobID, owner string) (*ResultsView, error) {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return nil, err
	}
	if job.Status != scan.StatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", scan.ErrNotReady, job.Status)
	}
	return &ResultsView{
		JobID:     job.ID,
		TargetURL: job.TargetURL,
		Scope:     job.Scope,
		Tool:      job.Tool,
		Alerts:    job.Results.Alerts,
		Summary:   job.Results.Summary,
	}, nil
}

// Cancel requests cooperative cancellation of a pending or running job.
func (s *Supervisor) Cancel(ctx context.Context, jobID, owner string) error {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job is already %s", scan.ErrInvalidTransition, job.Status)
	}

	s.mu.Lock()
	r, ok := s.runs[jobID]
	s.mu.Unlock()
	if ok {
		r.cancel()
		return nil
	}

	// No live run (e.g. process restarted with the job still pending in the
	// store); record the cancellation directly.
	return s.store.MarkCancelled(ctx, jobID)
}

// Watch returns the event channel for a job's active run. active is false
// when the run already finished; callers should fall back to a final status
// snapshot.
func (s *Supervisor) Watch(ctx context.Context, jobID, owner string) (<-chan Event, bool, error) {
	if _, err := s.ownedJob(ctx, jobID, owner); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[jobID]
	if !ok {
		return nil, false, nil
	}
	return r.events, true, nil
}

// EngineHealth reports engine liveness; transport errors read as down.
func (s *Supervisor) EngineHealth(ctx context.Context) bool {
	return s.engine.Probe(ctx)
}

// Close cancels all active runs and waits for them to reach terminal states.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
