package ecmsim

// stats.go holds the collector of per-tick samples taken during the measurement phase,
// and the analysis that turns the samples and the final counters of the stations and
// entities into a Results record.

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// histogramBins is the number of bins of every histogram in a Results record
const histogramBins int = 20

// TickSample is what the collector keeps of one measurement tick
type TickSample struct {
	Time         float64
	Used         []int // assigned identifiers, by station
	Capacity     []int // pool capacity, by station
	Connected    []int // connected entities, by station
	EntConnected int
	EntIdle      int
	OccAvg       float64 // mean occupancy ratio over every buffer
	OccMax       float64
	OccDL        float64 // mean over DL buffers
	OccUL        float64 // mean over UL buffers
	MeanEnergy   float64
	Bits         int // cumulative network bits
}

// StatsCollector accumulates tick samples
type StatsCollector struct {
	ticks []TickSample
}

// CreateStatsCollector is a constructor
func CreateStatsCollector() *StatsCollector {
	sc := new(StatsCollector)
	sc.ticks = make([]TickSample, 0)
	return sc
}

// Reset discards every sample
func (sc *StatsCollector) Reset() {
	sc.ticks = sc.ticks[:0]
}

// Samples returns the recorded ticks
func (sc *StatsCollector) Samples() []TickSample {
	return sc.ticks
}

// capture samples the state of the stations and entities at time now
func (sc *StatsCollector) capture(now float64, stations []*BaseStation, ents []*MobileEntity) {
	smpl := TickSample{Time: now}
	smpl.Used = make([]int, len(stations))
	smpl.Capacity = make([]int, len(stations))
	smpl.Connected = make([]int, len(stations))

	occSum, dlSum, ulSum := 0.0, 0.0, 0.0
	nBufs := 0
	for idx, bs := range stations {
		smpl.Used[idx] = bs.pool.Assigned()
		smpl.Capacity[idx] = bs.pool.Capacity()
		smpl.Connected[idx] = bs.ConnectedCount()
		smpl.Bits += bs.bits
		for _, entID := range bs.registered {
			ratio := bs.dl[entID].RecordOccupancy(now)
			dlSum += ratio
			occSum += ratio
			smpl.OccMax = math.Max(smpl.OccMax, ratio)
			nBufs += 1
		}
	}

	energy := 0.0
	for _, ent := range ents {
		if ent.Connected() {
			smpl.EntConnected += 1
		} else {
			smpl.EntIdle += 1
		}
		ratio := ent.ul.RecordOccupancy(now)
		ulSum += ratio
		occSum += ratio
		smpl.OccMax = math.Max(smpl.OccMax, ratio)
		nBufs += 1
		energy += ent.energy
	}

	if len(ents) > 0 {
		smpl.OccUL = ulSum / float64(len(ents))
		smpl.MeanEnergy = energy / float64(len(ents))
	}
	if nBufs > len(ents) {
		smpl.OccDL = dlSum / float64(nBufs-len(ents))
	}
	if nBufs > 0 {
		smpl.OccAvg = occSum / float64(nBufs)
	}
	sc.ticks = append(sc.ticks, smpl)
}

// summarize describes a sample: moments, order statistics, and a histogram
func summarize(values []float64) Distribution {
	dist := Distribution{Count: len(values), Values: []float64{}, Histogram: []HistogramBin{}}
	if len(values) == 0 {
		return dist
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	dist.Values = sorted
	dist.Mean, dist.Std = stat.PopMeanStdDev(sorted, nil)
	dist.Min = floats.Min(sorted)
	dist.Max = floats.Max(sorted)
	if n%2 == 0 {
		dist.Median = (sorted[n/2-1] + sorted[n/2]) / 2.0
	} else {
		dist.Median = sorted[n/2]
	}
	dist.P95 = sorted[min(int(math.Floor(float64(n)*0.95)), n-1)]
	dist.Histogram = histogram(sorted, histogramBins)
	return dist
}

// histogram bins sorted values into equal-width bins spanning their range
func histogram(sorted []float64, bins int) []HistogramBin {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi <= lo {
		hi = lo + 1.0
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)

	// stat.Histogram wants every value strictly below the last divider
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	hist := make([]HistogramBin, bins)
	for idx := range hist {
		hist[idx] = HistogramBin{Low: dividers[idx], High: dividers[idx+1], Count: int(counts[idx])}
	}
	return hist
}

// meanStd returns the mean and population standard deviation, zeros for no data
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0.0, 0.0
	}
	return stat.PopMeanStdDev(values, nil)
}

// runCounters are the run-level counts the simulator keeps outside stations and entities
type runCounters struct {
	generated     [2]int
	allocFailures int
	unservable    int
}

// analyze builds the Results record of a run
func (sc *StatsCollector) analyze(stations []*BaseStation, ents []*MobileEntity, cnt runCounters) *Results {
	res := new(Results)
	res.Identifiers = sc.identifierSummary(stations, cnt)
	res.Energy = energySummary(ents)
	res.Latency = latencySummary(ents)
	res.Throughput = sc.throughputSummary(stations, ents, cnt)
	res.Series = sc.timeSeries()

	res.Entities = make([]EntityRow, len(ents))
	for idx, ent := range ents {
		res.Entities[idx] = EntityRow{ID: ent.ID, Station: ent.Station, Profile: ent.ProfileName,
			State: ent.state.String(), Energy: ent.energy, IdleRatio: ent.IdleRatio(), Goodput: ent.Goodput(),
			ULSent: ent.ulSent, DLReceived: ent.dlRecv, ULDropped: ent.ul.Rejected(),
			Connects: ent.connects, Releases: ent.releases, AllocationFailures: ent.allocFailures}
	}
	return res
}

func (sc *StatsCollector) identifierSummary(stations []*BaseStation, cnt runCounters) IdentifierSummary {
	sum := IdentifierSummary{AllocationFailures: cnt.allocFailures, Unservable: cnt.unservable}
	sum.PerStation = make([]StationUsage, len(stations))

	avgConn := make([]float64, len(stations))
	avgUsage := make([]float64, len(stations))
	served := make([]float64, len(stations))
	for idx, bs := range stations {
		conn := make([]float64, len(sc.ticks))
		usage := make([]float64, len(sc.ticks))
		for tdx, smpl := range sc.ticks {
			conn[tdx] = float64(smpl.Connected[idx])
			if smpl.Capacity[idx] > 0 {
				usage[tdx] = float64(smpl.Used[idx]) / float64(smpl.Capacity[idx])
			}
		}
		su := StationUsage{ID: bs.ID, Registered: len(bs.registered), Capacity: bs.pool.Capacity(),
			UniqueServed: bs.UniqueServed()}
		if len(sc.ticks) > 0 {
			su.AvgConnected = stat.Mean(conn, nil)
			su.MaxConnected = int(floats.Max(conn))
			su.AvgUsage = stat.Mean(usage, nil)
			su.MaxUsage = floats.Max(usage)
		}
		sum.PerStation[idx] = su
		avgConn[idx] = su.AvgConnected
		avgUsage[idx] = su.AvgUsage
		served[idx] = float64(su.UniqueServed)
		sum.MaxConnectedPerStation = max(sum.MaxConnectedPerStation, su.MaxConnected)
		sum.MaxUsage = math.Max(sum.MaxUsage, su.MaxUsage)
	}
	if len(stations) > 0 {
		sum.AvgConnectedPerStation = stat.Mean(avgConn, nil)
		sum.AvgUsage = stat.Mean(avgUsage, nil)
		sum.AvgUniqueServed = stat.Mean(served, nil)
	}
	return sum
}

func energySummary(ents []*MobileEntity) EnergySummary {
	sum := EnergySummary{PerProfile: make(map[string]float64)}
	energy := make([]float64, len(ents))
	idle := make([]float64, len(ents))
	byProfile := make(map[string][]float64)
	for idx, ent := range ents {
		energy[idx] = ent.energy
		idle[idx] = ent.IdleRatio()
		byProfile[ent.ProfileName] = append(byProfile[ent.ProfileName], ent.energy)
		sum.TxTime += ent.timeTx
		sum.RxTime += ent.timeRx
	}
	sum.Mean, sum.Std = meanStd(energy)
	sum.IdleRatio, _ = meanStd(idle)
	sum.Distribution = summarize(energy)
	for name, vals := range byProfile {
		sum.PerProfile[name] = stat.Mean(vals, nil)
	}
	return sum
}

func latencySummary(ents []*MobileEntity) LatencySummary {
	reconnect, queuing, first := []float64{}, []float64{}, []float64{}
	for _, ent := range ents {
		reconnect = append(reconnect, ent.reconnectLat...)
		queuing = append(queuing, ent.queuingLat...)
		first = append(first, ent.firstPacketLat...)
	}
	return LatencySummary{Reconnect: summarize(reconnect), Queuing: summarize(queuing),
		FirstPacket: summarize(first)}
}

func (sc *StatsCollector) throughputSummary(stations []*BaseStation, ents []*MobileEntity, cnt runCounters) ThroughputSummary {
	sum := ThroughputSummary{GeneratedUL: cnt.generated[Uplink], GeneratedDL: cnt.generated[Downlink]}
	for _, bs := range stations {
		sum.TransmittedUL += bs.transmitted[Uplink]
		sum.TransmittedDL += bs.transmitted[Downlink]
		sum.DroppedDL += bs.dropped[Downlink]
		sum.TotalBits += bs.bits
		sum.Queued += bs.queued()
	}
	goodput := make([]float64, len(ents))
	for idx, ent := range ents {
		sum.DroppedUL += ent.ul.Rejected()
		sum.Queued += ent.ul.Len()
		goodput[idx] = ent.Goodput()
	}
	sum.Transmitted = sum.TransmittedUL + sum.TransmittedDL
	sum.Dropped = sum.DroppedUL + sum.DroppedDL
	sum.PDR = deliveryRatio(sum.Transmitted, sum.Dropped)
	sum.MeanGoodput, sum.StdGoodput = meanStd(goodput)
	sum.Goodput = summarize(goodput)

	occ := make([]float64, len(sc.ticks))
	for idx, smpl := range sc.ticks {
		occ[idx] = smpl.OccAvg
		sum.MaxOccupancy = math.Max(sum.MaxOccupancy, smpl.OccMax)
	}
	sum.AvgOccupancy, _ = meanStd(occ)
	return sum
}

// deliveryRatio is transmitted over offered, 1.0 when nothing was offered
func deliveryRatio(transmitted, dropped int) float64 {
	if transmitted+dropped == 0 {
		return 1.0
	}
	return float64(transmitted) / float64(transmitted+dropped)
}

func (sc *StatsCollector) timeSeries() TimeSeries {
	ts := TimeSeries{}
	prevTime, prevBits := 0.0, 0
	for idx, smpl := range sc.ticks {
		usage := 0.0
		connected := 0
		for sdx := range smpl.Used {
			if smpl.Capacity[sdx] > 0 {
				usage += float64(smpl.Used[sdx]) / float64(smpl.Capacity[sdx])
			}
			connected += smpl.Connected[sdx]
		}
		if len(smpl.Used) > 0 {
			usage /= float64(len(smpl.Used))
		}
		ts.Usage = append(ts.Usage, SeriesPoint{Time: smpl.Time, Value: usage})
		ts.Connected = append(ts.Connected, SeriesPoint{Time: smpl.Time, Value: float64(connected)})
		ts.States = append(ts.States, StatePoint{Time: smpl.Time, Connected: smpl.EntConnected,
			Disconnected: smpl.EntIdle})
		ts.Occupancy = append(ts.Occupancy, OccupancyPoint{Time: smpl.Time, Avg: smpl.OccAvg,
			Max: smpl.OccMax, DL: smpl.OccDL, UL: smpl.OccUL})
		ts.Energy = append(ts.Energy, SeriesPoint{Time: smpl.Time, Value: smpl.MeanEnergy})

		rate := 0.0
		if idx > 0 && smpl.Time > prevTime {
			rate = float64(smpl.Bits-prevBits) / (smpl.Time - prevTime)
		}
		ts.Throughput = append(ts.Throughput, SeriesPoint{Time: smpl.Time, Value: rate})
		prevTime, prevBits = smpl.Time, smpl.Bits
	}
	return ts
}
