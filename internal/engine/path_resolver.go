package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// DefaultMaxDepth is the hop bound used when a caller does not choose one.
const DefaultMaxDepth = 6

// ErrNoRelationFound is returned when the target is not reachable within the
// depth bound. It is a defined outcome, not a failure.
var ErrNoRelationFound = errors.New("no relation found")

// NeighborResolver produces the ordered edges of a person. *Graph implements it.
type NeighborResolver interface {
	ResolveNeighbors(ctx context.Context, id types.PersonID) ([]types.Edge, error)
}

// SearchOption configures a FindPath call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	tracer Tracer
	stats  *SearchStats
}

// WithTracer sends trace events for the search to t.
func WithTracer(t Tracer) SearchOption {
	return func(o *searchOptions) { o.tracer = t }
}

// WithStats stores the search statistics in dst when the search returns.
func WithStats(dst *SearchStats) SearchOption {
	return func(o *searchOptions) { o.stats = dst }
}

type predecessor struct {
	from types.PersonID
	kind types.EdgeKind
	sex  types.Sex
}

// FindPath returns a shortest path from source to target of at most maxDepth
// hops.
//
// The search is breadth-first, one level at a time, and each person is
// visited once. The target is matched when it is first discovered, so the
// returned path has the shortest length. Neighbors are explored in edge order
// (parent, child, spouse, then ascending id), which makes the chosen path
// deterministic among equal-length alternatives.
//
// A person whose neighbors cannot be resolved is skipped. The search stops
// with ctx.Err() when the context is done between expansions.
func FindPath(ctx context.Context, neighbors NeighborResolver, source, target types.PersonID, maxDepth int, opts ...SearchOption) (*types.RelationshipPath, error) {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	rec := newStatsRecorder()
	defer func() {
		if o.stats != nil {
			*o.stats = rec.finish()
		}
	}()

	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth %d: %w", maxDepth, storage.ErrInvalidInput)
	}
	if source == "" || target == "" {
		return nil, fmt.Errorf("source and target are required: %w", storage.ErrInvalidInput)
	}

	o.tracer.emit(EventQueryStarted(source, target, maxDepth))

	if source == target {
		o.tracer.emit(EventPathFound(0))
		return &types.RelationshipPath{Source: source, Target: target, Hops: []types.Hop{}}, nil
	}

	visited := map[types.PersonID]predecessor{source: {}}
	frontier := []types.PersonID{source}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		rec.recordDepth(depth + 1)
		var next []types.PersonID

		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			edges, err := neighbors.ResolveNeighbors(ctx, id)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				o.tracer.emit(EventNeighborsSkipped(id, err.Error()))
				continue
			}
			rec.recordNode()
			rec.recordEdges(len(edges))

			// Resolvers already sort; sorting again keeps order independent
			// of the implementation.
			SortEdges(edges)

			for _, e := range edges {
				if _, seen := visited[e.To]; seen {
					continue
				}
				visited[e.To] = predecessor{from: id, kind: e.Kind, sex: e.Sex}
				if e.To == target {
					o.tracer.emit(EventPathFound(depth + 1))
					return buildPath(visited, source, target), nil
				}
				next = append(next, e.To)
			}
		}

		o.tracer.emit(EventLevelExpanded(depth+1, len(next)))
		frontier = next
	}

	o.tracer.emit(EventNoRelation(rec.stats.DepthReached))
	return nil, ErrNoRelationFound
}

func buildPath(visited map[types.PersonID]predecessor, source, target types.PersonID) *types.RelationshipPath {
	var hops []types.Hop
	for cur := target; cur != source; {
		p := visited[cur]
		hops = append(hops, types.Hop{From: p.from, To: cur, Kind: p.kind, ToSex: p.sex})
		cur = p.from
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return &types.RelationshipPath{Source: source, Target: target, Hops: hops}
}
