package ecmsim

// results.go holds the Results record produced once per run. Every summary carries
// scalar statistics for tables, full distributions for histogram and CDF consumers,
// and the per-tick series for charts.

// HistogramBin counts the values in [Low, High)
type HistogramBin struct {
	Low   float64 `json:"low" yaml:"low"`
	High  float64 `json:"high" yaml:"high"`
	Count int     `json:"count" yaml:"count"`
}

// Distribution summarizes a sample. Std is the population standard deviation,
// P95 is the value at index floor(0.95*Count) of the sorted sample.
type Distribution struct {
	Count     int            `json:"count" yaml:"count"`
	Mean      float64        `json:"mean" yaml:"mean"`
	Std       float64        `json:"std" yaml:"std"`
	Min       float64        `json:"min" yaml:"min"`
	Max       float64        `json:"max" yaml:"max"`
	Median    float64        `json:"median" yaml:"median"`
	P95       float64        `json:"p95" yaml:"p95"`
	Values    []float64      `json:"values" yaml:"values"`
	Histogram []HistogramBin `json:"histogram" yaml:"histogram"`
}

// StationUsage is the identifier-pool view of one station
type StationUsage struct {
	ID           int     `json:"id" yaml:"id"`
	Registered   int     `json:"registered" yaml:"registered"`
	Capacity     int     `json:"capacity" yaml:"capacity"`
	AvgConnected float64 `json:"avgconnected" yaml:"avgconnected"`
	MaxConnected int     `json:"maxconnected" yaml:"maxconnected"`
	UniqueServed int     `json:"uniqueserved" yaml:"uniqueserved"`
	AvgUsage     float64 `json:"avgusage" yaml:"avgusage"`
	MaxUsage     float64 `json:"maxusage" yaml:"maxusage"`
}

type IdentifierSummary struct {
	AvgConnectedPerStation float64        `json:"avgconnectedperstation" yaml:"avgconnectedperstation"`
	MaxConnectedPerStation int            `json:"maxconnectedperstation" yaml:"maxconnectedperstation"`
	AvgUniqueServed        float64        `json:"avguniqueserved" yaml:"avguniqueserved"`
	AvgUsage               float64        `json:"avgusage" yaml:"avgusage"`
	MaxUsage               float64        `json:"maxusage" yaml:"maxusage"`
	AllocationFailures     int            `json:"allocationfailures" yaml:"allocationfailures"`
	Unservable             int            `json:"unservable" yaml:"unservable"`
	PerStation             []StationUsage `json:"perstation" yaml:"perstation"`
}

// EnergySummary is in mJ per entity
type EnergySummary struct {
	Mean         float64            `json:"mean" yaml:"mean"`
	Std          float64            `json:"std" yaml:"std"`
	IdleRatio    float64            `json:"idleratio" yaml:"idleratio"`
	TxTime       float64            `json:"txtime" yaml:"txtime"`
	RxTime       float64            `json:"rxtime" yaml:"rxtime"`
	PerProfile   map[string]float64 `json:"perprofile" yaml:"perprofile"`
	Distribution Distribution       `json:"distribution" yaml:"distribution"`
}

type LatencySummary struct {
	Reconnect   Distribution `json:"reconnect" yaml:"reconnect"`
	Queuing     Distribution `json:"queuing" yaml:"queuing"`
	FirstPacket Distribution `json:"firstpacket" yaml:"firstpacket"`
}

// ThroughputSummary counts packets over the measurement phase; Queued is the backlog
// left in buffers when the run ended
type ThroughputSummary struct {
	MeanGoodput   float64      `json:"meangoodput" yaml:"meangoodput"`
	StdGoodput    float64      `json:"stdgoodput" yaml:"stdgoodput"`
	TotalBits     int          `json:"totalbits" yaml:"totalbits"`
	GeneratedUL   int          `json:"generatedul" yaml:"generatedul"`
	GeneratedDL   int          `json:"generateddl" yaml:"generateddl"`
	TransmittedUL int          `json:"transmittedul" yaml:"transmittedul"`
	TransmittedDL int          `json:"transmitteddl" yaml:"transmitteddl"`
	Transmitted   int          `json:"transmitted" yaml:"transmitted"`
	DroppedUL     int          `json:"droppedul" yaml:"droppedul"`
	DroppedDL     int          `json:"droppeddl" yaml:"droppeddl"`
	Dropped       int          `json:"dropped" yaml:"dropped"`
	Queued        int          `json:"queued" yaml:"queued"`
	PDR           float64      `json:"pdr" yaml:"pdr"`
	AvgOccupancy  float64      `json:"avgoccupancy" yaml:"avgoccupancy"`
	MaxOccupancy  float64      `json:"maxoccupancy" yaml:"maxoccupancy"`
	Goodput       Distribution `json:"goodput" yaml:"goodput"`
}

type SeriesPoint struct {
	Time  float64 `json:"time" yaml:"time"`
	Value float64 `json:"value" yaml:"value"`
}

type StatePoint struct {
	Time         float64 `json:"time" yaml:"time"`
	Connected    int     `json:"connected" yaml:"connected"`
	Disconnected int     `json:"disconnected" yaml:"disconnected"`
}

type OccupancyPoint struct {
	Time float64 `json:"time" yaml:"time"`
	Avg  float64 `json:"avg" yaml:"avg"`
	Max  float64 `json:"max" yaml:"max"`
	DL   float64 `json:"dl" yaml:"dl"`
	UL   float64 `json:"ul" yaml:"ul"`
}

// TimeSeries holds one point per measurement tick. Usage is the mean over stations,
// Throughput the network bit rate over the preceding tick.
type TimeSeries struct {
	Usage      []SeriesPoint    `json:"usage" yaml:"usage"`
	Connected  []SeriesPoint    `json:"connected" yaml:"connected"`
	States     []StatePoint     `json:"states" yaml:"states"`
	Occupancy  []OccupancyPoint `json:"occupancy" yaml:"occupancy"`
	Energy     []SeriesPoint    `json:"energy" yaml:"energy"`
	Throughput []SeriesPoint    `json:"throughput" yaml:"throughput"`
}

// EntityRow is the final state and counters of one entity
type EntityRow struct {
	ID                 int     `json:"id" yaml:"id"`
	Station            int     `json:"station" yaml:"station"`
	Profile            string  `json:"profile" yaml:"profile"`
	State              string  `json:"state" yaml:"state"`
	Energy             float64 `json:"energy" yaml:"energy"`
	IdleRatio          float64 `json:"idleratio" yaml:"idleratio"`
	Goodput            float64 `json:"goodput" yaml:"goodput"`
	ULSent             int     `json:"ulsent" yaml:"ulsent"`
	DLReceived         int     `json:"dlreceived" yaml:"dlreceived"`
	ULDropped          int     `json:"uldropped" yaml:"uldropped"`
	Connects           int     `json:"connects" yaml:"connects"`
	Releases           int     `json:"releases" yaml:"releases"`
	AllocationFailures int     `json:"allocationfailures" yaml:"allocationfailures"`
}

// Results is the record of one run. It is not modified after the run reports it.
type Results struct {
	Scenario    string            `json:"scenario" yaml:"scenario"`
	Run         int               `json:"run" yaml:"run"`
	Mode        Mode              `json:"mode" yaml:"mode"`
	Algorithm   Algorithm         `json:"algorithm" yaml:"algorithm"`
	Start       float64           `json:"start" yaml:"start"` // measurement phase bounds
	End         float64           `json:"end" yaml:"end"`
	Identifiers IdentifierSummary `json:"identifiers" yaml:"identifiers"`
	Energy      EnergySummary     `json:"energy" yaml:"energy"`
	Latency     LatencySummary    `json:"latency" yaml:"latency"`
	Throughput  ThroughputSummary `json:"throughput" yaml:"throughput"`
	Series      TimeSeries        `json:"series" yaml:"series"`
	Entities    []EntityRow       `json:"entities" yaml:"entities"`
}

// WriteToFile stores the record, as yaml or json chosen by the file extension
func (res *Results) WriteToFile(filename string) error {
	return writeDesc(filename, res)
}
