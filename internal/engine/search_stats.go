package engine

import "time"

// SearchStats describes the work done by one path search.
type SearchStats struct {
	// NodesExpanded counts persons whose neighbors were resolved.
	NodesExpanded int `json:"nodes_expanded"`

	// EdgesExamined counts neighbor edges inspected.
	EdgesExamined int `json:"edges_examined"`

	// DepthReached is the deepest level fully or partly expanded.
	DepthReached int `json:"depth_reached"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// statsRecorder tracks search progress.
type statsRecorder struct {
	stats SearchStats
	start time.Time
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{start: time.Now()}
}

func (r *statsRecorder) recordNode() { r.stats.NodesExpanded++ }

func (r *statsRecorder) recordEdges(n int) { r.stats.EdgesExamined += n }

func (r *statsRecorder) recordDepth(d int) {
	if d > r.stats.DepthReached {
		r.stats.DepthReached = d
	}
}

func (r *statsRecorder) finish() SearchStats {
	r.stats.Elapsed = time.Since(r.start)
	return r.stats
}
