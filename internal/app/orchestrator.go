package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sharonmee/OpenEye/internal/interfaces"
	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/progress"
	"github.com/Sharonmee/OpenEye/internal/scan"
	"github.com/Sharonmee/OpenEye/internal/store"
)

// ErrPhaseTimeout marks a phase that exceeded its configured maximum wait.
var ErrPhaseTimeout = errors.New("scan phase timed out")

// Orchestrator drives one scan job through the engine's two phases:
// crawl, then active scan, then result aggregation. Run owns every write to
// its job's status, results and completion timestamp; nothing else touches
// them while the run is live.
type Orchestrator struct {
	cfg    *Config
	engine interfaces.Engine
	store  *store.Store
	logger logging.Logger

	// emit publishes run events to watchers. Never nil.
	emit func(Event)
}

// NewOrchestrator ties together config, engine, store and logger. emit may be
// nil when nobody streams events.
func NewOrchestrator(cfg *Config, engine interfaces.Engine, st *store.Store, logger logging.Logger, emit func(Event)) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Orchestrator{
		cfg:    cfg,
		engine: engine,
		store:  st,
		logger: logger,
		emit:   emit,
	}
}

// Run executes the scan for job and always leaves it in a terminal state.
// ctx cancellation is observed cooperatively at phase-poll boundaries; the
// remote phase is stopped best-effort when that happens.
func (o *Orchestrator) Run(ctx context.Context, job *scan.Job) {
	// Persistence must survive run cancellation, or a cancelled job could
	// never record its own terminal state.
	sctx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scan run panicked",
				logging.Field{Key: "job_id", Value: job.ID},
				logging.Field{Key: "panic", Value: fmt.Sprint(r)})
			o.fail(sctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Cancelled before the run got a slot: terminal without engine traffic.
	select {
	case <-ctx.Done():
		o.cancelled(sctx, job)
		return
	default:
	}

	if err := o.store.MarkRunning(sctx, job.ID); err != nil {
		// A cancel may have landed first; either way this run never started.
		o.logger.Warn("could not mark job running",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	o.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusRunning})
	o.logger.Info("scan started",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "target", Value: job.TargetURL})

	if !o.engine.Probe(ctx) {
		// A false probe may also mean the run was cancelled while the probe
		// request was in flight; finishOnError sorts the two apart.
		o.finishOnError(ctx, sctx, job, errors.New("scan engine is not running or not accessible"))
		return
	}

	// Phase 1: crawl.
	spiderHandle, err := o.engine.StartSpider(ctx, job.TargetURL, job.Config.MaxChildren)
	if err != nil {
		o.finishOnError(ctx, sctx, job, fmt.Errorf("start crawl: %w", err))
		return
	}
	err = o.waitForPhase(ctx, sctx, job, progress.PhaseSpider, spiderHandle,
		o.engine.SpiderStatus, o.cfg.SpiderPollInterval, o.cfg.SpiderMaxWait)
	if err != nil {
		if ctx.Err() != nil {
			o.stopRemote(sctx, job, o.engine.StopSpider, spiderHandle)
		}
		o.finishOnError(ctx, sctx, job, err)
		return
	}

	// Phase 2: active scan.
	activeHandle, err := o.engine.StartActiveScan(ctx, job.TargetURL, job.Config.ScanPolicy)
	if err != nil {
		o.finishOnError(ctx, sctx, job, fmt.Errorf("start active scan: %w", err))
		return
	}
	err = o.waitForPhase(ctx, sctx, job, progress.PhaseActive, activeHandle,
		o.engine.ActiveScanStatus, o.cfg.ActivePollInterval, o.cfg.ActiveMaxWait)
	if err != nil {
		if ctx.Err() != nil {
			o.stopRemote(sctx, job, o.engine.StopActiveScan, activeHandle)
		}
		o.finishOnError(ctx, sctx, job, err)
		return
	}

	// Phase 3: aggregate results.
	if err := o.store.SetLiveProgress(sctx, job.ID, progress.PhaseReport, 0); err != nil {
		o.logger.Warn("recording report phase",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err.Error()})
	}
	o.emit(Event{JobID: job.ID, Type: EventProgress, Phase: progress.PhaseReport})

	alerts, err := o.engine.Alerts(ctx, job.TargetURL)
	if err != nil {
		o.finishOnError(ctx, sctx, job, fmt.Errorf("fetch alerts: %w", err))
		return
	}

	results := scan.Results{Alerts: alerts, Summary: scan.Summarize(alerts)}
	if err := o.store.Complete(sctx, job.ID, results); err != nil {
		o.logger.Error("persisting completed scan",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	o.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusCompleted})
	o.logger.Info("scan completed",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "alert_count", Value: len(alerts)})
}

// waitForPhase polls statusFn until the engine reports >=100, the phase
// exceeds maxWait, too many consecutive polls fail, or ctx is cancelled.
// Each successful poll stores the live sample and emits a progress event.
func (o *Orchestrator) waitForPhase(ctx, sctx context.Context, job *scan.Job, phase, handle string,
	statusFn func(context.Context, string) (int, error), interval, maxWait time.Duration) error {

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pct, err := statusFn(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			o.logger.Warn("phase status poll failed",
				logging.Field{Key: "job_id", Value: job.ID},
				logging.Field{Key: "phase", Value: phase},
				logging.Field{Key: "failures", Value: failures},
				logging.Field{Key: "error", Value: err.Error()})
			if failures >= o.cfg.MaxPollFailures {
				return fmt.Errorf("%s phase: %w", phase, err)
			}
		} else {
			failures = 0
			if err := o.store.SetLiveProgress(sctx, job.ID, phase, pct); err != nil {
				o.logger.Warn("recording live progress",
					logging.Field{Key: "job_id", Value: job.ID},
					logging.Field{Key: "error", Value: err.Error()})
			}
			o.emit(Event{JobID: job.ID, Type: EventProgress, Phase: phase, Percent: pct})
			if pct >= 100 {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s phase exceeded %s", ErrPhaseTimeout, phase, maxWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// finishOnError maps a run error to the right terminal state: context
// cancellation becomes cancelled, everything else failed.
func (o *Orchestrator) finishOnError(ctx, sctx context.Context, job *scan.Job, err error) {
	if ctx.Err() != nil {
		o.cancelled(sctx, job)
		return
	}
	o.fail(sctx, job, err.Error())
}

func (o *Orchestrator) fail(sctx context.Context, job *scan.Job, cause string) {
	if err := o.store.Fail(sctx, job.ID, cause); err != nil {
		o.logger.Error("persisting failed scan",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	o.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusFailed, Error: cause})
	o.logger.Warn("scan failed",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "cause", Value: cause})
}

func (o *Orchestrator) cancelled(sctx context.Context, job *scan.Job) {
	if err := o.store.MarkCancelled(sctx, job.ID); err != nil {
		o.logger.Warn("persisting cancelled scan",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	o.emit(Event{JobID: job.ID, Type: EventStatus, Status: scan.StatusCancelled})
	o.logger.Info("scan cancelled", logging.Field{Key: "job_id", Value: job.ID})
}

// stopRemote asks the engine to abort an in-flight phase after a local
// cancellation. Best-effort: the engine may refuse or be unreachable, in
// which case the remote scan keeps running and only local state records the
// cancellation.
func (o *Orchestrator) stopRemote(sctx context.Context, job *scan.Job,
	stop func(context.Context, string) error, handle string) {

	stopCtx, cancel := context.WithTimeout(sctx, 10*time.Second)
	defer cancel()
	if err := stop(stopCtx, handle); err != nil {
		o.logger.Warn("remote phase stop failed; scan may continue on the engine",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "handle", Value: handle},
			logging.Field{Key: "error", Value: err.Error()})
	}
}
