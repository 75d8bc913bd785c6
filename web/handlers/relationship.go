package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// MaxQueryDepth is the largest maxDepth a client may request.
const MaxQueryDepth = 12

// unavailableMessage is returned for hard failures such as unreachable
// metadata or chunk transport errors.
const unavailableMessage = "relationship data unavailable"

// KinshipHandlers serves the relationship and people routes.
type KinshipHandlers struct {
	svc        KinshipService
	timeout    time.Duration
	allowTrace bool
	sizing     lineage.Sizing
	class      lineage.DeviceClass
}

// NewKinshipHandlers creates handlers over svc configured by cfg.
func NewKinshipHandlers(svc KinshipService, cfg *config.Config) *KinshipHandlers {
	return &KinshipHandlers{
		svc:        svc,
		timeout:    cfg.Server.RequestTimeout,
		allowTrace: cfg.Server.AllowTrace,
		sizing:     cfg.Cache.Sizing(),
		class:      cfg.Cache.Class(),
	}
}

// Register mounts the query routes on mux.
func (h *KinshipHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/relationship", RequireGET(h.GetRelationship))
	mux.HandleFunc("/api/people/{id}", RequireGET(h.GetPerson))
	mux.HandleFunc("/api/people/{id}/neighbors", RequireGET(h.GetNeighbors))
	mux.HandleFunc("/api/diagnostics", RequireGET(h.GetDiagnostics))
}

// GetRelationship handles GET /api/relationship?from=&to=&maxDepth=&trace=.
func (h *KinshipHandlers) GetRelationship(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := types.PersonID(q.Get("from"))
	to := types.PersonID(q.Get("to"))
	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}

	maxDepth := 0
	if raw := q.Get("maxDepth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxQueryDepth {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("maxDepth must be an integer between 1 and %d", MaxQueryDepth), nil)
			return
		}
		maxDepth = n
	}
	trace := h.allowTrace && (q.Get("trace") == "1" || q.Get("trace") == "true")

	ctx, cancel := h.queryContext(r)
	defer cancel()

	rel, err := h.svc.Relationship(ctx, from, to, maxDepth, trace)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}

	resp := RelationshipResponse{Relationship: rel}
	if !rel.Found {
		resp.Message = fmt.Sprintf("no known relationship within %d degrees", rel.MaxDepth)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetPerson handles GET /api/people/{id}.
func (h *KinshipHandlers) GetPerson(w http.ResponseWriter, r *http.Request) {
	id := types.PersonID(extractID(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "person ID is required", nil)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	p, err := h.svc.Person(ctx, id)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetNeighbors handles GET /api/people/{id}/neighbors.
func (h *KinshipHandlers) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	id := types.PersonID(extractID(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "person ID is required", nil)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	p, err := h.svc.Person(ctx, id)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	edges, err := h.svc.ResolveNeighbors(ctx, id)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}

	resp := NeighborsResponse{Person: p, Neighbors: make([]NeighborResponse, 0, len(edges))}
	for _, e := range edges {
		n := NeighborResponse{ID: e.To, Kind: e.Kind, Sex: e.Sex}
		if neighbor, err := h.svc.Person(ctx, e.To); err == nil {
			n.Name = neighbor.Name
		}
		resp.Neighbors = append(resp.Neighbors, n)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetDiagnostics handles GET /api/diagnostics.
func (h *KinshipHandlers) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	resp := DiagnosticsResponse{
		Mode:        h.svc.Mode(),
		Cache:       h.svc.CacheStats(),
		DeviceClass: h.class,
		Diagnostics: h.svc.Diagnostics(),
	}
	if width := parseInt(r.Header.Get("X-Viewport-Width"), 0); width > 0 {
		resp.ClientClass = h.sizing.Classify(width)
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []types.Diagnostic{}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *KinshipHandlers) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(r.Context(), h.timeout)
	}
	return context.WithCancel(r.Context())
}

// respondQueryError maps engine and storage errors to HTTP statuses.
func (h *KinshipHandlers) respondQueryError(w http.ResponseWriter, err error) {
	var loadErr *storage.ChunkLoadFailure
	switch {
	case errors.Is(err, storage.ErrUnknownPerson):
		respondError(w, http.StatusNotFound, "unknown person", err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.As(err, &loadErr):
		log.Printf("handlers: chunk load failed for lineage %q: %v", loadErr.LineageID, loadErr.Err)
		respondError(w, http.StatusServiceUnavailable, unavailableMessage, err)
	default:
		log.Printf("handlers: query failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, unavailableMessage, err)
	}
}
