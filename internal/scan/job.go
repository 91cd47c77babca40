// Package scan defines the scan job record, its lifecycle states and the
// alert/summary values produced by a finished scan. It carries no behavior
// beyond derived values; state transitions live in the store and orchestrator.
package scan

import (
	"time"
)

// Status is the lifecycle state of a scan job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Tool identifies the scan engine a job runs against.
type Tool string

const (
	ToolZAP Tool = "zap"
)

// SupportedTool reports whether t is a tool this build can drive.
func SupportedTool(t Tool) bool {
	return t == ToolZAP
}

// Config holds the per-job scan options forwarded to the engine.
type Config struct {
	// MaxChildren bounds how many child pages the crawl phase may visit.
	MaxChildren int `json:"max_children,omitempty"`

	// ScanPolicy names the engine-side policy for the active phase.
	ScanPolicy string `json:"scan_policy,omitempty"`
}

// DefaultConfig mirrors the engine's own defaults.
func DefaultConfig() Config {
	return Config{
		MaxChildren: 10,
		ScanPolicy:  "Default Policy",
	}
}

// Job is the durable record of one scan: its inputs, current state and
// (once terminal) its outcome. The orchestrator run owning a job is the only
// writer of Status, Results and CompletedAt after creation.
type Job struct {
	ID        string `json:"id"`
	Owner     string `json:"-"`
	TargetURL string `json:"target_url"`

	// Scope is the registrable domain the scan reports under. Hosts with
	// no public suffix (localhost, raw IPs) use the bare hostname.
	Scope string `json:"scope,omitempty"`

	Tool   Tool   `json:"tool"`
	Config Config `json:"config"`

	Status  Status  `json:"status"`
	Results Results `json:"results,omitempty"`

	// Last live engine sample, recorded by the orchestrator at each poll.
	// Empty phase means no sample yet (job pending, or engine never answered).
	ProgressPhase   string `json:"progress_phase,omitempty"`
	ProgressPercent int    `json:"progress_percent,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DurationSeconds returns the wall-clock scan duration once the job is
// terminal. ok is false while the job is still pending or running.
func (j *Job) DurationSeconds() (float64, bool) {
	if j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(j.CreatedAt).Seconds(), true
}

// Results holds the outcome of a terminal job. Alerts and Summary are set
// only on completed jobs; Error only on failed ones. A cancelled job keeps
// empty results.
type Results struct {
	Alerts  []Alert `json:"alerts,omitempty"`
	Summary Summary `json:"summary"`
	Error   string  `json:"error,omitempty"`
}

// Empty reports whether no outcome has been recorded.
func (r Results) Empty() bool {
	return len(r.Alerts) == 0 && r.Error == "" && r.Summary.Total == 0
}

// Risk is the severity the engine assigns to an alert.
type Risk string

const (
	RiskHigh          Risk = "High"
	RiskMedium        Risk = "Medium"
	RiskLow           Risk = "Low"
	RiskInformational Risk = "Informational"
)

// Alert is one finding emitted by the scan engine. Fields other than Risk
// are passed through untouched; json tags match the engine's alert payload.
type Alert struct {
	Risk        Risk   `json:"risk"`
	Name        string `json:"alert"`
	URL         string `json:"url,omitempty"`
	Param       string `json:"param,omitempty"`
	Description string `json:"description,omitempty"`
	Solution    string `json:"solution,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
}

// Summary counts alerts per severity. Always derived from an alert list via
// Summarize, never stored independently of it.
type Summary struct {
	Total         int `json:"total"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
}

// Summarize recomputes severity counts from alerts. Unknown risk strings
// count as informational, matching the engine's own bucketing.
func Summarize(alerts []Alert) Summary {
	s := Summary{Total: len(alerts)}
	for _, a := range alerts {
		switch a.Risk {
		case RiskHigh:
			s.High++
		case RiskMedium:
			s.Medium++
		case RiskLow:
			s.Low++
		default:
			s.Informational++
		}
	}
	return s
}
