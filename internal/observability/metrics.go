package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunCollector bundles Prometheus metrics for simulation runs. Every metric is
// labeled by scenario so that parallel scenarios can share one registry.
type RunCollector struct {
	gatherer prometheus.Gatherer

	Ticks              *prometheus.CounterVec
	AllocationFailures *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	PacketsMoved       *prometheus.CounterVec
	PacketsDropped     *prometheus.CounterVec
	ConnectedEntities  *prometheus.GaugeVec
	IdentifierUsage    *prometheus.GaugeVec
	Progress           *prometheus.GaugeVec
	ReconnectLatency   *prometheus.HistogramVec
}

// NewRunCollector registers run metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &RunCollector{gatherer: gatherer}
	var err error

	if c.Ticks, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecmsim_ticks_total",
		Help: "Simulation ticks executed, by scenario.",
	}, []string{"scenario"}), "ecmsim_ticks_total"); err != nil {
		return nil, err
	}
	if c.AllocationFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecmsim_allocation_failures_total",
		Help: "Connection attempts refused because the identifier pool was empty.",
	}, []string{"scenario"}), "ecmsim_allocation_failures_total"); err != nil {
		return nil, err
	}
	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecmsim_transitions_total",
		Help: "Connection state transitions, by scenario and op (connect, release).",
	}, []string{"scenario", "op"}), "ecmsim_transitions_total"); err != nil {
		return nil, err
	}
	if c.PacketsMoved, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecmsim_packets_transmitted_total",
		Help: "Packets drained by the schedulers, by scenario and direction.",
	}, []string{"scenario", "direction"}), "ecmsim_packets_transmitted_total"); err != nil {
		return nil, err
	}
	if c.PacketsDropped, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecmsim_packets_dropped_total",
		Help: "Packets rejected by full buffers, by scenario and direction.",
	}, []string{"scenario", "direction"}), "ecmsim_packets_dropped_total"); err != nil {
		return nil, err
	}
	if c.ConnectedEntities, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ecmsim_connected_entities",
		Help: "Entities currently Connected.",
	}, []string{"scenario"}), "ecmsim_connected_entities"); err != nil {
		return nil, err
	}
	if c.IdentifierUsage, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ecmsim_identifier_usage_ratio",
		Help: "Assigned fraction of the identifier pools, averaged over stations.",
	}, []string{"scenario"}), "ecmsim_identifier_usage_ratio"); err != nil {
		return nil, err
	}
	if c.Progress, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ecmsim_run_progress_percent",
		Help: "Progress of the current run of a scenario.",
	}, []string{"scenario"}), "ecmsim_run_progress_percent"); err != nil {
		return nil, err
	}
	if c.ReconnectLatency, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecmsim_reconnect_latency_seconds",
		Help:    "Simulated time from traffic arrival while Disconnected to Connected.",
		Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"scenario"}), "ecmsim_reconnect_latency_seconds"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RunCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// The methods below satisfy the simulator's metrics recorder interface.

func (c *RunCollector) TickDone(scenario string) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(scenario).Inc()
}

func (c *RunCollector) AllocationFailed(scenario string) {
	if c == nil {
		return
	}
	c.AllocationFailures.WithLabelValues(scenario).Inc()
}

func (c *RunCollector) Transition(scenario, op string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(scenario, op).Inc()
}

func (c *RunCollector) PacketsTransmitted(scenario, dir string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.PacketsMoved.WithLabelValues(scenario, dir).Add(float64(n))
}

func (c *RunCollector) PacketDropped(scenario, dir string) {
	if c == nil {
		return
	}
	c.PacketsDropped.WithLabelValues(scenario, dir).Inc()
}

func (c *RunCollector) SetConnected(scenario string, n int) {
	if c == nil {
		return
	}
	c.ConnectedEntities.WithLabelValues(scenario).Set(float64(n))
}

func (c *RunCollector) SetIdentifierUsage(scenario string, usage float64) {
	if c == nil {
		return
	}
	c.IdentifierUsage.WithLabelValues(scenario).Set(usage)
}

func (c *RunCollector) SetProgress(scenario string, pct float64) {
	if c == nil {
		return
	}
	c.Progress.WithLabelValues(scenario).Set(pct)
}

func (c *RunCollector) ObserveReconnectLatency(scenario string, seconds float64) {
	if c == nil {
		return
	}
	c.ReconnectLatency.WithLabelValues(scenario).Observe(seconds)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
