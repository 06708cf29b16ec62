package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	m.ObserveRun("reservation-expiry", 200*time.Millisecond, 4, nil)
	m.ObserveRun("reservation-expiry", time.Second, 1, errors.New("boom"))
	m.ObserveRun("outbox-retention", time.Millisecond, 0, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"sareehub_cron_runs_total", map[string]string{"job": "reservation-expiry", "outcome": OutcomeSuccess}, 1},
		{"sareehub_cron_runs_total", map[string]string{"job": "reservation-expiry", "outcome": OutcomeFailure}, 1},
		{"sareehub_cron_items_processed_total", map[string]string{"job": "reservation-expiry"}, 5},
		{"sareehub_cron_runs_total", map[string]string{"job": "outbox-retention", "outcome": OutcomeSuccess}, 1},
	}
	for _, c := range checks {
		metric, err := findMetric(mfs, c.name, c.labels)
		if err != nil {
			t.Fatal(err)
		}
		if got := metric.GetCounter().GetValue(); got != c.want {
			t.Fatalf("%s%v: want %v got %v", c.name, c.labels, c.want, got)
		}
	}

	hist, err := findMetric(mfs, "sareehub_cron_run_duration_seconds", map[string]string{"job": "reservation-expiry"})
	if err != nil {
		t.Fatal(err)
	}
	if hist.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 duration samples, got %d", hist.GetHistogram().GetSampleCount())
	}

	if _, err := findMetric(mfs, "sareehub_cron_items_processed_total", map[string]string{"job": "outbox-retention"}); err == nil {
		t.Fatalf("zero processed rows should not create a series")
	}
	gauge, err := findMetric(mfs, "sareehub_cron_last_success_timestamp_seconds", map[string]string{"job": "outbox-retention"})
	if err != nil {
		t.Fatal(err)
	}
	if gauge.GetGauge().GetValue() <= 0 {
		t.Fatalf("last success timestamp not set")
	}
}

func TestNilCronMetricsIsNoop(t *testing.T) {
	var m *CronMetrics
	m.ObserveRun("job", time.Second, 1, nil)
	if NewCronMetrics(nil) != nil {
		t.Fatalf("expected nil metrics without a registerer")
	}
}

// findMetric returns the series of family name whose labels include every pair in want.
func findMetric(mfs []*dto.MetricFamily, name string, want map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), want) {
				return metric, nil
			}
		}
		return nil, fmt.Errorf("%s has no series %v", name, want)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestEmptyLabelsReportAsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronMetrics(reg).ObserveRun("", time.Millisecond, 0, nil)
	outbox := NewOutboxMetrics(reg)
	outbox.IncPublished("")
	outbox.IncDLQ(" ", "max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, c := range []struct {
		name   string
		labels map[string]string
	}{
		{"sareehub_cron_runs_total", map[string]string{"job": "unknown", "outcome": OutcomeSuccess}},
		{"sareehub_outbox_published_total", map[string]string{"event_type": "unknown"}},
		{"sareehub_outbox_dlq_total", map[string]string{"event_type": "unknown", "reason": "max_attempts"}},
	} {
		metric, err := findMetric(mfs, c.name, c.labels)
		if err != nil {
			t.Fatal(err)
		}
		if got := metric.GetCounter().GetValue(); got != 1 {
			t.Fatalf("%s%v: want 1 got %v", c.name, c.labels, got)
		}
	}
}
