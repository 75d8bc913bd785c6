package handlers

import (
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RelationshipResponse is the response format for GET /api/relationship.
// Message is set when no relationship was found.
type RelationshipResponse struct {
	*engine.Relationship
	Message string `json:"message,omitempty"`
}

// NeighborResponse is one entry of GET /api/people/{id}/neighbors.
type NeighborResponse struct {
	ID   types.PersonID `json:"id"`
	Name string         `json:"name,omitempty"`
	Kind types.EdgeKind `json:"kind"`
	Sex  types.Sex      `json:"sex"`
}

// NeighborsResponse is the response format for GET /api/people/{id}/neighbors.
type NeighborsResponse struct {
	Person    *types.Person      `json:"person"`
	Neighbors []NeighborResponse `json:"neighbors"`
}

// DiagnosticsResponse is the response format for GET /api/diagnostics.
type DiagnosticsResponse struct {
	Mode        lineage.Mode        `json:"mode"`
	Cache       lineage.CacheStats  `json:"cache"`
	DeviceClass lineage.DeviceClass `json:"device_class"`
	// ClientClass is the class implied by the X-Viewport-Width header. It is
	// reported only; the cache keeps its session sizing.
	ClientClass lineage.DeviceClass `json:"client_class,omitempty"`
	Diagnostics []types.Diagnostic  `json:"diagnostics"`
}
