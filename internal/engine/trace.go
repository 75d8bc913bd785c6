package engine

import (
	"time"

	"github.com/scrypster/kinship/pkg/types"
)

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindQueryStarted is emitted before the first level is expanded.
	KindQueryStarted TraceEventKind = "query_started"

	// KindLevelExpanded is emitted after each breadth-first level.
	KindLevelExpanded TraceEventKind = "level_expanded"

	// KindNeighborsSkipped is emitted when a person's neighbors could not be resolved.
	KindNeighborsSkipped TraceEventKind = "neighbors_skipped"

	// KindChunkLoaded is emitted when a lineage becomes resident during the query.
	KindChunkLoaded TraceEventKind = "chunk_loaded"

	// KindPathFound is emitted when the target is reached.
	KindPathFound TraceEventKind = "path_found"

	// KindNoRelation is emitted when the search is exhausted.
	KindNoRelation TraceEventKind = "no_relation"
)

// TraceEvent is a single structured event emitted during a relationship query.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`
	At   time.Time      `json:"at"`

	// PersonID is set for neighbors_skipped.
	PersonID types.PersonID `json:"person_id,omitempty"`

	// LineageID is set for chunk_loaded.
	LineageID string `json:"lineage_id,omitempty"`

	// Depth is the level reached for level_expanded, path_found and no_relation.
	Depth int `json:"depth,omitempty"`

	// Count is the frontier size for level_expanded.
	Count int `json:"count,omitempty"`

	Source   types.PersonID `json:"source,omitempty"`
	Target   types.PersonID `json:"target,omitempty"`
	MaxDepth int            `json:"max_depth,omitempty"`

	// Reason explains neighbors_skipped.
	Reason string `json:"reason,omitempty"`
}

// Tracer receives trace events. A nil Tracer is valid and discards events.
type Tracer func(TraceEvent)

func (t Tracer) emit(e TraceEvent) {
	if t != nil {
		t(e)
	}
}

func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now()}
}

// EventQueryStarted creates a query_started trace event.
func EventQueryStarted(source, target types.PersonID, maxDepth int) TraceEvent {
	e := newTraceEvent(KindQueryStarted)
	e.Source = source
	e.Target = target
	e.MaxDepth = maxDepth
	return e
}

// EventLevelExpanded creates a level_expanded trace event.
func EventLevelExpanded(depth, frontier int) TraceEvent {
	e := newTraceEvent(KindLevelExpanded)
	e.Depth = depth
	e.Count = frontier
	return e
}

// EventNeighborsSkipped creates a neighbors_skipped trace event.
func EventNeighborsSkipped(id types.PersonID, reason string) TraceEvent {
	e := newTraceEvent(KindNeighborsSkipped)
	e.PersonID = id
	e.Reason = reason
	return e
}

// EventChunkLoaded creates a chunk_loaded trace event.
func EventChunkLoaded(lineageID string) TraceEvent {
	e := newTraceEvent(KindChunkLoaded)
	e.LineageID = lineageID
	return e
}

// EventPathFound creates a path_found trace event.
func EventPathFound(depth int) TraceEvent {
	e := newTraceEvent(KindPathFound)
	e.Depth = depth
	return e
}

// EventNoRelation creates a no_relation trace event.
func EventNoRelation(depth int) TraceEvent {
	e := newTraceEvent(KindNoRelation)
	e.Depth = depth
	return e
}
