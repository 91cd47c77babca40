package scan

import (
	"testing"
	"time"
)

// ─── Status ────────────────────────────────────────────────────────────

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.terminal {
			t.Errorf("Terminal(%s) = %v, want %v", c.status, got, c.terminal)
		}
	}
}

func TestSupportedTool(t *testing.T) {
	t.Parallel()

	if !SupportedTool(ToolZAP) {
		t.Error("expected zap to be supported")
	}
	if SupportedTool(Tool("nessus")) {
		t.Error("expected unknown tool to be unsupported")
	}
}

// ─── Summarize ─────────────────────────────────────────────────────────

func TestSummarize_CountsPerSeverity(t *testing.T) {
	t.Parallel()

	alerts := []Alert{
		{Risk: RiskHigh}, {Risk: RiskHigh}, {Risk: RiskHigh},
		{Risk: RiskMedium},
		{Risk: RiskInformational}, {Risk: RiskInformational},
	}
	s := Summarize(alerts)

	if s.Total != 6 {
		t.Errorf("expected total 6, got %d", s.Total)
	}
	if s.High != 3 || s.Medium != 1 || s.Low != 0 || s.Informational != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
}

func TestSummarize_UnknownRiskCountsAsInformational(t *testing.T) {
	t.Parallel()

	s := Summarize([]Alert{{Risk: Risk("Bogus")}})
	if s.Informational != 1 || s.Total != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	if s != (Summary{}) {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

// ─── Job ───────────────────────────────────────────────────────────────

func TestJob_DurationSeconds(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	done := created.Add(90 * time.Second)

	j := &Job{CreatedAt: created}
	if _, ok := j.DurationSeconds(); ok {
		t.Error("expected no duration before completion")
	}

	j.CompletedAt = &done
	d, ok := j.DurationSeconds()
	if !ok || d != 90 {
		t.Errorf("expected 90s duration, got %v (ok=%v)", d, ok)
	}
}

func TestResults_Empty(t *testing.T) {
	t.Parallel()

	if !(Results{}).Empty() {
		t.Error("zero results should be empty")
	}
	if (Results{Error: "boom"}).Empty() {
		t.Error("error results should not be empty")
	}
	if (Results{Alerts: []Alert{{Risk: RiskLow}}, Summary: Summarize([]Alert{{Risk: RiskLow}})}).Empty() {
		t.Error("alert results should not be empty")
	}
}
