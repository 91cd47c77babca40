// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sync"

	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Engine ────────────────────────────────────────────────────────────

// StubEngine implements interfaces.Engine with scripted behavior.
// Zero value: engine down. Use NewStubEngine for a healthy engine whose
// phases finish on the first poll.
type StubEngine struct {
	mu sync.Mutex

	// Available is returned from Probe.
	Available bool

	// RejectSpider / RejectActive force phase starts to fail.
	RejectSpider error
	RejectActive error

	// SpiderErr / ActiveErr are returned from every status poll when set.
	SpiderErr error
	ActiveErr error

	// SpiderSteps / ActiveSteps are successive progress values returned by
	// status polls; the last value repeats forever. Empty means 100.
	SpiderSteps []int
	ActiveSteps []int
	spiderIdx   int
	activeIdx   int

	// AlertsResult / AlertsErr script the alert fetch.
	AlertsResult []scan.Alert
	AlertsErr    error

	// Recorded calls.
	SpiderTargets  []string
	ActiveTargets  []string
	AlertFetches   []string
	StoppedSpiders []string
	StoppedActives []string
}

// NewStubEngine returns a healthy engine that completes both phases
// immediately and yields the given alerts.
func NewStubEngine(alerts ...scan.Alert) *StubEngine {
	return &StubEngine{Available: true, AlertsResult: alerts}
}

func (e *StubEngine) Probe(_ context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Available
}

func (e *StubEngine) StartSpider(_ context.Context, target string, _ int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.RejectSpider != nil {
		return "", e.RejectSpider
	}
	e.SpiderTargets = append(e.SpiderTargets, target)
	return "spider-1", nil
}

func (e *StubEngine) SpiderStatus(_ context.Context, _ string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SpiderErr != nil {
		return 0, e.SpiderErr
	}
	return step(e.SpiderSteps, &e.spiderIdx), nil
}

func (e *StubEngine) StartActiveScan(_ context.Context, target string, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.RejectActive != nil {
		return "", e.RejectActive
	}
	e.ActiveTargets = append(e.ActiveTargets, target)
	return "ascan-1", nil
}

func (e *StubEngine) ActiveScanStatus(_ context.Context, _ string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActiveErr != nil {
		return 0, e.ActiveErr
	}
	return step(e.ActiveSteps, &e.activeIdx), nil
}

func (e *StubEngine) Alerts(_ context.Context, baseURL string) ([]scan.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.AlertsErr != nil {
		return nil, e.AlertsErr
	}
	e.AlertFetches = append(e.AlertFetches, baseURL)
	return append([]scan.Alert(nil), e.AlertsResult...), nil
}

func (e *StubEngine) StopSpider(_ context.Context, handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StoppedSpiders = append(e.StoppedSpiders, handle)
	return nil
}

func (e *StubEngine) StopActiveScan(_ context.Context, handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StoppedActives = append(e.StoppedActives, handle)
	return nil
}

// EngineCalls reports whether the stub saw any phase or alert traffic.
// Probe is excluded: it is a liveness check, not scan work.
func (e *StubEngine) EngineCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.SpiderTargets) + len(e.ActiveTargets) + len(e.AlertFetches)
}

func step(steps []int, idx *int) int {
	if len(steps) == 0 {
		return 100
	}
	if *idx >= len(steps) {
		return steps[len(steps)-1]
	}
	v := steps[*idx]
	*idx++
	return v
}
