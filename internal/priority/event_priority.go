package priority

import (
	"stamina/internal/property"
	"stamina/internal/storage"
)

// EventKind selects the biasing mode of the priority strategy.
type EventKind uint8

const (
	// EventUndefined disables event biasing; the frontier orders on
	// reachability alone.
	EventUndefined EventKind = iota
	// EventRare favors states close to the event boundary.
	EventRare
	// EventCommon favors states far from the event boundary.
	EventCommon
)

// ParseEventKind maps a CLI/config token to an EventKind.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "", "undefined", "none":
		return EventUndefined, true
	case "rare":
		return EventRare, true
	case "common":
		return EventCommon, true
	}
	return EventUndefined, false
}

// DistanceFunc measures how far a state sits from the event boundary.
type DistanceFunc func(vt *storage.VarTable, cs storage.CompressedState) float64

// EventStatePriority scores pending states by their distance to the
// event threshold of the checked property. Rare mode ranks smaller
// distances higher; common mode inverts the sign. With no event
// expression the score is zero everywhere and the frontier degrades to
// ordering on reachability.
type EventStatePriority struct {
	kind     EventKind
	distance DistanceFunc
	weight   float64
}

// NewEventStatePriority builds a priority over the event expression of a
// property. tree may be nil when the property carries no event
// expression.
func NewEventStatePriority(kind EventKind, tree property.Node, weight float64) *EventStatePriority {
	if weight <= 0 {
		weight = 1.0
	}
	esp := &EventStatePriority{kind: kind, weight: weight}
	if tree != nil {
		esp.distance = tree.Distance
	}
	return esp
}

// SetDistance overrides the metric, e.g. with a solution-subspace
// distance for reaction networks.
func (e *EventStatePriority) SetDistance(fn DistanceFunc) { e.distance = fn }

// Enabled reports whether scoring contributes anything beyond pi.
func (e *EventStatePriority) Enabled() bool {
	return e != nil && e.kind != EventUndefined && e.distance != nil
}

// Score returns the scalar priority of a state; larger explores sooner.
func (e *EventStatePriority) Score(vt *storage.VarTable, cs storage.CompressedState) float64 {
	if !e.Enabled() {
		return 0
	}
	d := e.distance(vt, cs) * e.weight
	if e.kind == EventRare {
		return -d
	}
	return d
}
