package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iti/ecmsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

var _ ecmsim.MetricsRecorder = (*RunCollector)(nil)

func TestRunCollectorRecordsByScenario(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}

	collector.TickDone("A1")
	collector.TickDone("A1")
	collector.TickDone("B1")
	collector.AllocationFailed("A1")
	collector.Transition("A1", "connect")
	collector.PacketsTransmitted("A1", "UL", 5)
	collector.PacketsTransmitted("A1", "UL", 0)
	collector.PacketDropped("B1", "DL")
	collector.SetConnected("A1", 12)
	collector.SetIdentifierUsage("A1", 0.25)
	collector.SetProgress("A1", 40)
	collector.ObserveReconnectLatency("A1", 0.1)
	collector.ObserveReconnectLatency("A1", 0.15)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ecmsim_ticks_total{A1}", testutil.ToFloat64(collector.Ticks.WithLabelValues("A1")), 2},
		{"ecmsim_ticks_total{B1}", testutil.ToFloat64(collector.Ticks.WithLabelValues("B1")), 1},
		{"ecmsim_allocation_failures_total", testutil.ToFloat64(collector.AllocationFailures.WithLabelValues("A1")), 1},
		{"ecmsim_transitions_total", testutil.ToFloat64(collector.Transitions.WithLabelValues("A1", "connect")), 1},
		{"ecmsim_packets_transmitted_total", testutil.ToFloat64(collector.PacketsMoved.WithLabelValues("A1", "UL")), 5},
		{"ecmsim_packets_dropped_total", testutil.ToFloat64(collector.PacketsDropped.WithLabelValues("B1", "DL")), 1},
		{"ecmsim_connected_entities", testutil.ToFloat64(collector.ConnectedEntities.WithLabelValues("A1")), 12},
		{"ecmsim_identifier_usage_ratio", testutil.ToFloat64(collector.IdentifierUsage.WithLabelValues("A1")), 0.25},
		{"ecmsim_run_progress_percent", testutil.ToFloat64(collector.Progress.WithLabelValues("A1")), 40},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if count := histogramSampleCount(t, reg, "ecmsim_reconnect_latency_seconds", map[string]string{
		"scenario": "A1",
	}); count != 2 {
		t.Fatalf("ecmsim_reconnect_latency_seconds sample_count = %d, want 2", count)
	}
}

func TestNewRunCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}
	second, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("second NewRunCollector: %v", err)
	}
	first.TickDone("A2")
	if got := testutil.ToFloat64(second.Ticks.WithLabelValues("A2")); got != 1 {
		t.Fatalf("ticks seen through the second collector = %v, want 1", got)
	}
}

func TestNilRunCollectorIsSafe(t *testing.T) {
	var collector *RunCollector
	collector.TickDone("A1")
	collector.SetProgress("A1", 10)
	collector.ObserveReconnectLatency("A1", 1)
}

func TestMetricsHandlerExposesRunMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}
	collector.TickDone("B2")
	collector.SetConnected("B2", 7)
	collector.ObserveReconnectLatency("B2", 0.2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"ecmsim_ticks_total",
		"ecmsim_connected_entities",
		"ecmsim_reconnect_latency_seconds",
		`scenario="B2"`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
