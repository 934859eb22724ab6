package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "demand-rollups"
	metrics.ObserveRun(job, 250*time.Millisecond, nil)
	metrics.ObserveRun(job, time.Second, errors.New("db down"))
	metrics.IncCycleSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for outcome, want := range map[string]float64{JobSucceeded: 1, JobFailed: 1} {
		got, err := fetchRunCount(mfs, job, outcome)
		if err != nil {
			t.Fatalf("fetch %s: %v", outcome, err)
		}
		if got != want {
			t.Fatalf("expected %s=%v, got %v", outcome, want, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "fieldstock_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f", got)
	}

	mf := findMetricFamily(mfs, "fieldstock_job_last_success_timestamp_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Fatalf("expected last success gauge set once")
	}
	skipped := findMetricFamily(mfs, "fieldstock_cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one skipped cycle")
	}
}

func TestCronJobMetricsFailureLeavesLastSuccessUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.ObserveRun("forecasts", time.Second, errors.New("boom"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if mf := findMetricFamily(mfs, "fieldstock_job_last_success_timestamp_seconds"); mf != nil && len(mf.GetMetric()) > 0 {
		t.Fatalf("failed run must not stamp last success")
	}
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewCronJobMetrics(nil)
	metrics.ObserveRun("x", time.Second, nil)
	metrics.ObserveRun("", time.Second, errors.New("x"))
	metrics.IncCycleSkipped()

	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("x", time.Second, nil)
	nilMetrics.IncCycleSkipped()
}

func fetchRunCount(mfs []*dto.MetricFamily, job, outcome string) (float64, error) {
	mf := findMetricFamily(mfs, "fieldstock_job_runs_total")
	if mf == nil {
		return 0, fmt.Errorf("runs metric not found")
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", job) && matchesLabel(metric.GetLabel(), "outcome", outcome) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("no run count for %s/%s", job, outcome)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
