package ecmsim

import (
	"strconv"

	"github.com/iti/evt/vrtime"
)

// TransitionOp names the connection events a trace records
type TransitionOp int

const (
	ConnectOp TransitionOp = iota
	ConnectFailOp
	ReleaseOp
)

var opToStr map[TransitionOp]string = map[TransitionOp]string{ConnectOp: "connect",
	ConnectFailOp: "connect-fail", ReleaseOp: "release"}

func (op TransitionOp) String() string {
	return opToStr[op]
}

// TraceInst is one trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	Ticks     int64  `json:"ticks" yaml:"ticks"`
	Priority  int64  `json:"priority" yaml:"priority"`
	EntityID  int    `json:"entityid" yaml:"entityid"`
	StationID int    `json:"stationid" yaml:"stationid"`
	RNTI      int    `json:"rnti" yaml:"rnti"` // -1 when no identifier is held
	Op        string `json:"op" yaml:"op"`
}

// NameType is an entry of the id -> (name,type) dictionary of a trace
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the connection transitions of a run, indexed by entity id.
// Calls on an inactive manager do nothing, so they can be embedded everywhere.
type TraceManager struct {
	// run uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the run
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each object id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records, by entity id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the trace manager is being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddName adds an element to the id -> (name,type) dictionary
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// AddTransition records a connection event at virtual time vrt
func (tm *TraceManager) AddTransition(vrt vrtime.Time, entityID, stationID, rnti int, op TransitionOp) {
	if !tm.Active() {
		return
	}
	trc := TraceInst{TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		Ticks: vrt.Ticks(), Priority: vrt.Pri(),
		EntityID: entityID, StationID: stationID, RNTI: rnti, Op: op.String()}
	tm.Traces[entityID] = append(tm.Traces[entityID], trc)
}

// Count is the number of trace records
func (tm *TraceManager) Count() int {
	total := 0
	for _, trcs := range tm.Traces {
		total += len(trcs)
	}
	return total
}

// WriteToFile stores the trace, as yaml or json chosen by the file extension.
// Nothing is written for an inactive manager.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	if err := writeDesc(filename, tm); err != nil {
		return false, err
	}
	return true, nil
}
