package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/pkg/types"
)

// ChunkEventType distinguishes chunk notifications.
type ChunkEventType string

const (
	ChunkLoaded  ChunkEventType = "chunk_loaded"
	ChunkEvicted ChunkEventType = "chunk_evicted"
)

// ChunkEvent reports a lineage chunk entering or leaving the cache.
type ChunkEvent struct {
	Type      ChunkEventType `json:"type"`
	LineageID string         `json:"lineage_id"`
	People    int            `json:"people"`
	Resident  []string       `json:"resident"`
	At        time.Time      `json:"at"`
}

// Relationship is the full answer to a relationship query.
type Relationship struct {
	QueryID    string                        `json:"query_id"`
	Source     *types.Person                 `json:"source"`
	Target     *types.Person                 `json:"target"`
	MaxDepth   int                           `json:"max_depth"`
	Found      bool                          `json:"found"`
	Path       *types.RelationshipPath       `json:"path,omitempty"`
	Descriptor *types.RelationshipDescriptor `json:"descriptor,omitempty"`
	Stats      SearchStats                   `json:"stats"`
	Trace      []TraceEvent                  `json:"trace,omitempty"`
}

// Service answers relationship queries for one session. It owns the chunk
// store, the lineage cache and the graph built over the cache. Queries are
// serialized; subscriptions and read-only accessors may be used concurrently.
type Service struct {
	store *lineage.Store
	cache *lineage.Cache
	graph *Graph

	defaultDepth int

	queryMu sync.Mutex
	tracer  Tracer // set for the duration of a traced query; guarded by subMu

	subMu   sync.Mutex
	subs    map[int]func(ChunkEvent)
	nextSub int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultMaxDepth sets the depth used when a query passes 0.
func WithDefaultMaxDepth(depth int) ServiceOption {
	return func(s *Service) {
		if depth > 0 {
			s.defaultDepth = depth
		}
	}
}

// NewService wires a graph to cache and registers for its chunk events.
func NewService(store *lineage.Store, cache *lineage.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		cache:        cache,
		graph:        NewGraph(store, cache),
		defaultDepth: DefaultMaxDepth,
		subs:         make(map[int]func(ChunkEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}

	cache.OnEvict(func(chunk *types.LineageChunk) {
		s.graph.EvictLineage(chunk)
		s.publish(ChunkEvicted, chunk)
	})
	cache.OnLoad(func(chunk *types.LineageChunk) {
		s.publish(ChunkLoaded, chunk)
	})
	return s
}

// Graph returns the session graph.
func (s *Service) Graph() *Graph {
	return s.graph
}

// DefaultMaxDepth returns the depth applied when a query passes 0.
func (s *Service) DefaultMaxDepth() int {
	return s.defaultDepth
}

// Mode reports whether chunks are served per lineage or from the dataset.
func (s *Service) Mode() lineage.Mode {
	return s.store.Mode()
}

// FindPath returns a shortest path between two persons. A maxDepth of 0 uses
// the service default. Unknown persons yield storage.ErrUnknownPerson.
func (s *Service) FindPath(ctx context.Context, source, target types.PersonID, maxDepth int) (*types.RelationshipPath, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	if _, _, err := s.endpoints(ctx, source, target); err != nil {
		return nil, err
	}
	return FindPath(ctx, s.graph, source, target, s.depth(maxDepth))
}

// Describe classifies path.
func (s *Service) Describe(path *types.RelationshipPath) types.RelationshipDescriptor {
	return Describe(path)
}

// Relationship finds and describes the relationship between two persons.
// No path within the bound is not an error: the result has Found false.
func (s *Service) Relationship(ctx context.Context, source, target types.PersonID, maxDepth int, trace bool) (*Relationship, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	rel := &Relationship{
		QueryID:  uuid.New().String(),
		MaxDepth: s.depth(maxDepth),
	}

	var opts []SearchOption
	opts = append(opts, WithStats(&rel.Stats))
	if trace {
		buf := &traceBuffer{}
		s.setTracer(buf.add)
		defer func() {
			s.setTracer(nil)
			rel.Trace = buf.close()
		}()
		opts = append(opts, WithTracer(buf.add))
	}

	var err error
	rel.Source, rel.Target, err = s.endpoints(ctx, source, target)
	if err != nil {
		return nil, err
	}

	path, err := FindPath(ctx, s.graph, source, target, rel.MaxDepth, opts...)
	switch {
	case errors.Is(err, ErrNoRelationFound):
		log.Printf("engine: query %s: no relation between %s and %s within %d", rel.QueryID, source, target, rel.MaxDepth)
		return rel, nil
	case err != nil:
		return nil, err
	}

	desc := Describe(path)
	rel.Found = true
	rel.Path = path
	rel.Descriptor = &desc
	return rel, nil
}

// ResolveNeighbors returns the ordered edges of id.
func (s *Service) ResolveNeighbors(ctx context.Context, id types.PersonID) ([]types.Edge, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()
	return s.graph.ResolveNeighbors(ctx, id)
}

// Person returns the record for id.
func (s *Service) Person(ctx context.Context, id types.PersonID) (*types.Person, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()
	return s.graph.Person(ctx, id)
}

// Subscribe registers fn for chunk events and returns a function that
// removes it. fn runs on the goroutine that loaded or evicted the chunk and
// must not call back into the Service's query methods.
func (s *Service) Subscribe(fn func(ChunkEvent)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Diagnostics returns the recorded data-integrity findings.
func (s *Service) Diagnostics() []types.Diagnostic {
	return s.graph.Diagnostics()
}

// CacheStats returns the lineage cache counters.
func (s *Service) CacheStats() lineage.CacheStats {
	return s.cache.Stats()
}

func (s *Service) depth(maxDepth int) int {
	if maxDepth == 0 {
		return s.defaultDepth
	}
	return maxDepth
}

// endpoints resolves both query persons. Callers hold queryMu.
func (s *Service) endpoints(ctx context.Context, source, target types.PersonID) (*types.Person, *types.Person, error) {
	src, err := s.graph.Person(ctx, source)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	tgt, err := s.graph.Person(ctx, target)
	if err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	return src, tgt, nil
}

func (s *Service) setTracer(t Tracer) {
	s.subMu.Lock()
	s.tracer = t
	s.subMu.Unlock()
}

func (s *Service) publish(kind ChunkEventType, chunk *types.LineageChunk) {
	event := ChunkEvent{
		Type:      kind,
		LineageID: chunk.ID,
		People:    chunk.Len(),
		Resident:  s.cache.Lineages(),
		At:        time.Now(),
	}

	s.subMu.Lock()
	subs := make([]func(ChunkEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	tracer := s.tracer
	s.subMu.Unlock()

	if kind == ChunkLoaded {
		tracer.emit(EventChunkLoaded(chunk.ID))
	}
	for _, fn := range subs {
		fn(event)
	}
}

// traceBuffer collects events from the query goroutine and from chunk loads,
// which run on their own goroutines. Events after close are dropped.
type traceBuffer struct {
	mu     sync.Mutex
	events []TraceEvent
	closed bool
}

func (b *traceBuffer) add(e TraceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.events = append(b.events, e)
	}
}

func (b *traceBuffer) close() []TraceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.events
}
