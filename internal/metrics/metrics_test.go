package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sample returns the value of the first series of family name whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveTurn("discovery", "advanced", 5*time.Millisecond)
	rec.ObserveTurn("discovery", "advanced", 5*time.Millisecond)
	rec.ObserveAssist("problem_as_goal", "corrected", 42, 0.001, 300*time.Millisecond)
	rec.ObserveAssist("problem_as_goal", "skipped", 0, 0, 0)
	rec.SessionStarted()
	rec.SessionStarted()
	rec.SessionEnded("completed")

	if got := sample(t, reg, "shiftguide_turns_total", map[string]string{"phase": "discovery", "outcome": "advanced"}); got != 2 {
		t.Errorf("expected 2 turns, got %v", got)
	}
	if got := sample(t, reg, "shiftguide_assist_tokens_total", map[string]string{"category": "problem_as_goal"}); got != 42 {
		t.Errorf("expected 42 tokens, got %v", got)
	}
	if got := sample(t, reg, "shiftguide_assist_duration_seconds", map[string]string{"category": "problem_as_goal"}); got != 1 {
		t.Errorf("expected one timed call, got %v", got)
	}
	if got := sample(t, reg, "shiftguide_sessions_active", nil); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
	if got := sample(t, reg, "shiftguide_assist_total", map[string]string{"outcome": "skipped"}); got != 1 {
		t.Errorf("expected a skipped evaluation, got %v", got)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	// Separate registries must not collide.
	NewPrometheusRecorder(prometheus.NewRegistry())
	NewPrometheusRecorder(prometheus.NewRegistry())
	var _ Recorder = Nop{}
}
