package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSweepJobReliabilityCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for i := 0; i < 8; i++ {
		tracker := metrics.Track("sweep_expiry")
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
	}
	tracker := metrics.Track("sweep_expiry")
	if err := tracker.End(errors.New("redis down")); err == nil {
		t.Fatal("expected error to propagate")
	}
	metrics.AddAlerts("expiry", 3)
	metrics.AddAlerts("low_stock", 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "pharmatrade_jobs_total", map[string]string{"job": "sweep_expiry", "status": "success"})
	failure := metricValue(t, families, "pharmatrade_jobs_total", map[string]string{"job": "sweep_expiry", "status": "failure"})
	if success != 8 || failure != 1 {
		t.Fatalf("unexpected run counts: success=%f failure=%f", success, failure)
	}
	failures := metricValue(t, families, "pharmatrade_jobs_failures_total", map[string]string{"job": "sweep_expiry"})
	if failures != 1 {
		t.Fatalf("unexpected failure count: %f", failures)
	}
	alerts := metricValue(t, families, "pharmatrade_stock_alerts_total", map[string]string{"kind": "expiry"})
	if alerts != 3 {
		t.Fatalf("unexpected alert count: %f", alerts)
	}
	for _, family := range families {
		if family.GetName() != "pharmatrade_stock_alerts_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue(metric, "kind") == "low_stock" {
				t.Fatal("zero alert batches must not create a series")
			}
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	tracker := metrics.Track("sweep_low_stock")
	if err := tracker.End(nil); err != nil {
		t.Fatalf("nil metrics tracker returned error: %v", err)
	}
	metrics.AddAlerts("low_stock", 5)
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := true
			for key, want := range labels {
				if labelValue(metric, key) != want {
					matched = false
					break
				}
			}
			if matched {
				if metric.Counter != nil {
					return metric.Counter.GetValue()
				}
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
