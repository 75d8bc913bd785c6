// Package storage defines the transport contract between the kinship engine
// and the places a genealogy archive can live: a static directory, an HTTP
// host, or a database table.
//
// Sources only fetch and parse. Validation, fallback between the per-lineage
// layout and the monolithic dataset, and caching live in package lineage.
package storage

import (
	"context"

	"github.com/scrypster/kinship/pkg/types"
)

// ChunkSource fetches raw archive documents.
//
// Implementations return ErrNotFound when the requested endpoint or object
// does not exist and ErrMalformed when it exists but cannot be parsed. Both
// make the caller fall back to the monolithic dataset. Any other error is a
// transport failure and is surfaced as-is.
type ChunkSource interface {
	// FetchMetadata returns the person-to-lineage index.
	FetchMetadata(ctx context.Context) (*types.Metadata, error)

	// FetchChunk returns the people of a single lineage.
	FetchChunk(ctx context.Context, lineageID string) (*types.Document, error)

	// FetchDataset returns every person in one document.
	FetchDataset(ctx context.Context) (*types.Document, error)
}

// Closer is implemented by sources holding connections.
type Closer interface {
	Close() error
}
