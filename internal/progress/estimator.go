// Package progress estimates how far along a scan is. The engine reports
// per-phase percentages but nothing end to end, so status queries combine a
// live phase sample (when the orchestrator has one) with a time-based
// fallback schedule.
package progress

import (
	"time"

	"github.com/Sharonmee/OpenEye/internal/scan"
)

// Phase labels exposed to callers.
const (
	PhasePending = "pending"
	PhaseSpider  = "spider"
	PhaseActive  = "active"
	PhaseReport  = "report"
)

// Estimate maps (status, elapsed since creation) to an overall percentage and
// phase label without consulting the engine. For running jobs the schedule is
// piecewise linear in elapsed minutes:
//
//	< 2m:   10 + min(20, m*10)        spider
//	2–10m:  30 + min(50, (m-2)*6.25)  active
//	>= 10m: 80 + min(15, (m-10)*1.5)  report
//
// The result is always in [0,100] and non-decreasing in elapsed for a fixed
// status.
func Estimate(status scan.Status, elapsed time.Duration) (float64, string) {
	switch status {
	case scan.StatusPending:
		return 5, PhasePending
	case scan.StatusCompleted:
		return 100, string(scan.StatusCompleted)
	case scan.StatusFailed:
		return 0, string(scan.StatusFailed)
	case scan.StatusCancelled:
		return 0, string(scan.StatusCancelled)
	}

	m := elapsed.Minutes()
	if m < 0 {
		m = 0
	}
	switch {
	case m < 2:
		return clamp(10 + min64(20, m*10)), PhaseSpider
	case m < 10:
		return clamp(30 + min64(50, (m-2)*6.25)), PhaseActive
	default:
		return clamp(80 + min64(15, (m-10)*1.5)), PhaseReport
	}
}

// Phase weight bounds for live samples. The spider phase spans 10–45% of the
// overall scan, the active phase 45–90%; aggregation sits at a flat 95%.
const (
	spiderFloor = 10
	spiderSpan  = 35
	activeFloor = 45
	activeSpan  = 45
	reportFixed = 95
)

// FromLive maps the engine's own per-phase percentage onto the overall scale.
// ok is false when the phase is not one the mapping knows, in which case the
// caller should fall back to Estimate.
func FromLive(phase string, enginePercent int) (float64, bool) {
	p := float64(enginePercent)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	switch phase {
	case PhaseSpider:
		return clamp(spiderFloor + spiderSpan*p/100), true
	case PhaseActive:
		return clamp(activeFloor + activeSpan*p/100), true
	case PhaseReport:
		return reportFixed, true
	}
	return 0, false
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
