// Package handlers provides the HTTP handlers and middleware of the kinship
// web API.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/pkg/types"
)

// KinshipService is the query surface the handlers need. *engine.Service
// implements it.
type KinshipService interface {
	Relationship(ctx context.Context, source, target types.PersonID, maxDepth int, trace bool) (*engine.Relationship, error)
	Person(ctx context.Context, id types.PersonID) (*types.Person, error)
	ResolveNeighbors(ctx context.Context, id types.PersonID) ([]types.Edge, error)
	Diagnostics() []types.Diagnostic
	CacheStats() lineage.CacheStats
	Mode() lineage.Mode
	DefaultMaxDepth() int
}

// extractID returns a path parameter from the Go 1.22 mux pattern.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers already sent
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
