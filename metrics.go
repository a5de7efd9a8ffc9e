package ecmsim

// MetricsRecorder receives live counters from a run. Every call names the
// scenario so one recorder can serve parallel runs.
type MetricsRecorder interface {
	TickDone(scenario string)
	AllocationFailed(scenario string)
	Transition(scenario, op string)
	PacketsTransmitted(scenario, dir string, n int)
	PacketDropped(scenario, dir string)
	SetConnected(scenario string, n int)
	SetIdentifierUsage(scenario string, usage float64)
	SetProgress(scenario string, pct float64)
	ObserveReconnectLatency(scenario string, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) TickDone(string)                        {}
func (nopRecorder) AllocationFailed(string)                {}
func (nopRecorder) Transition(string, string)              {}
func (nopRecorder) PacketsTransmitted(string, string, int) {}
func (nopRecorder) PacketDropped(string, string)           {}
func (nopRecorder) SetConnected(string, int)               {}
func (nopRecorder) SetIdentifierUsage(string, float64)     {}
func (nopRecorder) SetProgress(string, float64)            {}
func (nopRecorder) ObserveReconnectLatency(string, float64) {}
