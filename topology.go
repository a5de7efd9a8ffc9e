package ecmsim

// topology.go places base stations and mobile entities in the circular service area,
// registers each entity with its nearest station, draws the entity traffic profiles,
// and describes the layout and live state of a run as a Topology snapshot.

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"
)

// StationView is the snapshot of one base station
type StationView struct {
	ID        int     `json:"id" yaml:"id"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Connected int     `json:"connected" yaml:"connected"`
	Usage     float64 `json:"usage" yaml:"usage"`
}

// EntityView is the snapshot of one mobile entity
type EntityView struct {
	ID      int     `json:"id" yaml:"id"`
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	State   string  `json:"state" yaml:"state"`
	Serving int     `json:"serving" yaml:"serving"`
	Profile string  `json:"profile" yaml:"profile"`
	Active  bool    `json:"active" yaml:"active"`
}

// Topology is the layout and live state of a run at one instant
type Topology struct {
	Time     float64       `json:"time" yaml:"time"`
	Stations []StationView `json:"stations" yaml:"stations"`
	Entities []EntityView  `json:"entities" yaml:"entities"`
}

// WriteToFile stores the snapshot, as yaml or json chosen by the file extension
func (topo *Topology) WriteToFile(filename string) error {
	return writeDesc(filename, topo)
}

// placeInCircle draws points from a centered 2D normal until one falls inside the circle
func placeInCircle(sigma, radius float64, src rand.Source) r2.Vec {
	norm := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for {
		pos := r2.Vec{X: norm.Rand(), Y: norm.Rand()}
		if r2.Norm(pos) <= radius {
			return pos
		}
	}
}

// nearestStation returns the index of the station closest to pos
func nearestStation(stations []*BaseStation, pos r2.Vec) int {
	best := -1
	bestDist := math.Inf(1)
	for idx, bs := range stations {
		dist := r2.Norm(r2.Sub(bs.Pos, pos))
		if dist < bestDist {
			best = idx
			bestDist = dist
		}
	}
	return best
}

// buildTopology creates the stations and the simulated population. Entity ids are
// their positions in the returned slice.
func buildTopology(cfg *Config, rng uniformStream) ([]*BaseStation, []*MobileEntity) {
	src := sourceFrom(rng)

	stations := make([]*BaseStation, cfg.Stations)
	for idx := 0; idx < cfg.Stations; idx++ {
		stations[idx] = createBaseStation(idx, placeInCircle(cfg.StationSigma, cfg.Radius, src), cfg)
	}

	shares := make([]float64, len(cfg.Profiles))
	for idx, prf := range cfg.Profiles {
		shares[idx] = prf.Share
	}
	profiles := distuv.NewCategorical(shares, src)

	n := cfg.SimulatedEntities()
	ents := make([]*MobileEntity, n)
	for idx := 0; idx < n; idx++ {
		pos := placeInCircle(cfg.EntitySigma, cfg.Radius, src)
		prf := int(profiles.Rand())
		ent := createMobileEntity(idx, pos, prf, cfg.Profiles[prf].Name, cfg.BufferSize)
		bsIdx := nearestStation(stations, pos)
		stations[bsIdx].register(ent, bsIdx)
		ents[idx] = ent
	}
	return stations, ents
}

// snapshot describes the stations and entities at time now
func snapshot(now float64, stations []*BaseStation, ents []*MobileEntity) Topology {
	topo := Topology{Time: now}
	topo.Stations = make([]StationView, len(stations))
	for idx, bs := range stations {
		topo.Stations[idx] = StationView{ID: bs.ID, X: bs.Pos.X, Y: bs.Pos.Y,
			Connected: bs.ConnectedCount(), Usage: bs.pool.Usage()}
	}
	topo.Entities = make([]EntityView, len(ents))
	for idx, ent := range ents {
		view := EntityView{ID: ent.ID, X: ent.Pos.X, Y: ent.Pos.Y, State: ent.state.String(),
			Serving: ent.Station, Profile: ent.ProfileName}
		if ent.Station >= 0 {
			view.Serving = stations[ent.Station].ID
			view.Active = stations[ent.Station].hasTraffic(ent)
		}
		topo.Entities[idx] = view
	}
	return topo
}
