package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry() != registry {
		t.Error("Registry should return the registry passed in")
	}
}

func TestObserveRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	m.ObserveRun(Counts{
		Records:     4,
		Occurrences: 9,
		Suppressed:  1,
		Days:        5,
		Events:      8,
		Warnings:    map[string]int{"People missing": 3},
	}, 1500*time.Millisecond, at)
	m.ObserveRun(Counts{Warnings: map[string]int{"People missing": 2}}, time.Second, at)

	got := gather(t, m)
	want := map[string]float64{
		"frabcal_feed_records":                           0,
		"frabcal_schedule_events":                        0,
		"frabcal_metadata_warnings_total/People missing": 5,
		"frabcal_runs_total/success":                     2,
		"frabcal_run_duration_seconds":                   1,
		"frabcal_last_success_timestamp_seconds":         float64(at.Unix()),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestObserveFailureKeepsLastGoodGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveRun(Counts{Events: 7}, time.Second, time.Unix(1000, 0))
	m.ObserveFailure(2 * time.Second)

	got := gather(t, m)
	if got["frabcal_schedule_events"] != 7 {
		t.Errorf("events gauge = %v, want 7", got["frabcal_schedule_events"])
	}
	if got["frabcal_runs_total/failure"] != 1 || got["frabcal_runs_total/success"] != 1 {
		t.Errorf("runs = %v / %v", got["frabcal_runs_total/success"], got["frabcal_runs_total/failure"])
	}
	if got["frabcal_last_success_timestamp_seconds"] != 1000 {
		t.Errorf("last success = %v", got["frabcal_last_success_timestamp_seconds"])
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveRun(Counts{Days: 2}, time.Second, time.Unix(1000, 0))

	path := filepath.Join(t.TempDir(), "frabcal.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "frabcal_schedule_days 2") {
		t.Errorf("textfile missing days gauge:\n%s", data)
	}
}
