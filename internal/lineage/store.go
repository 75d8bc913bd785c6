// Package lineage loads lineage chunks from a storage.ChunkSource and keeps a
// bounded number of them resident.
//
// Store hides whether the archive is served per lineage or as one monolithic
// dataset: when the per-lineage endpoints are absent or unparsable it falls
// back to the dataset once, partitions it, and keeps serving chunks from the
// partitions. Cache bounds how many chunks stay in memory and evicts them in
// insertion order.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// UnassignedLineage holds monolithic records that carry no lineage id.
const UnassignedLineage = "unassigned"

// Mode reports how the Store is currently serving chunks.
type Mode string

const (
	ModeUnknown    Mode = "unknown"
	ModeChunked    Mode = "chunked"
	ModeMonolithic Mode = "monolithic"
)

// Store fetches and validates lineage chunks.
type Store struct {
	source storage.ChunkSource

	mu       sync.RWMutex
	mode     Mode
	metadata map[types.PersonID]string

	// populated in monolithic mode only
	partitions map[string][]types.PersonRecord
	partDiags  map[string][]types.Diagnostic

	fallbackMu sync.Mutex
}

// NewStore creates a Store over source.
func NewStore(source storage.ChunkSource) *Store {
	return &Store{
		source: source,
		mode:   ModeUnknown,
	}
}

// Mode returns the active serving mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// LoadMetadata returns the person-to-lineage index, fetching it on first use.
// The returned map must not be modified.
func (s *Store) LoadMetadata(ctx context.Context) (map[types.PersonID]string, error) {
	s.mu.RLock()
	meta := s.metadata
	s.mu.RUnlock()
	if meta != nil {
		return meta, nil
	}

	if s.Mode() != ModeMonolithic {
		doc, err := s.source.FetchMetadata(ctx)
		switch {
		case err == nil:
			s.mu.Lock()
			if s.metadata == nil {
				s.metadata = doc.PersonToLineage
				if s.mode == ModeUnknown {
					s.mode = ModeChunked
				}
			}
			meta = s.metadata
			s.mu.Unlock()
			return meta, nil
		case !fallbackEligible(err):
			return nil, &storage.ChunkLoadFailure{Err: err}
		}
		log.Printf("lineage: metadata unavailable (%v); falling back to monolithic dataset", err)
	}

	if err := s.activateFallback(ctx); err != nil {
		return nil, &storage.ChunkLoadFailure{Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata, nil
}

// LineageOf returns the lineage that owns id according to the metadata index.
func (s *Store) LineageOf(ctx context.Context, id types.PersonID) (string, bool, error) {
	meta, err := s.LoadMetadata(ctx)
	if err != nil {
		return "", false, err
	}
	lineageID, ok := meta[id]
	return lineageID, ok, nil
}

// Lineages returns the distinct lineage ids named by the metadata index,
// sorted.
func (s *Store) Lineages(ctx context.Context) ([]string, error) {
	meta, err := s.LoadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, lineageID := range meta {
		if lineageID != "" {
			seen[lineageID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load fetches and validates one lineage chunk. Failures are returned as
// *storage.ChunkLoadFailure and are not retried.
func (s *Store) Load(ctx context.Context, lineageID string) (*types.LineageChunk, error) {
	if lineageID == "" {
		return nil, &storage.ChunkLoadFailure{LineageID: lineageID, Err: storage.ErrInvalidInput}
	}

	if s.Mode() != ModeMonolithic {
		doc, err := s.source.FetchChunk(ctx, lineageID)
		switch {
		case err == nil:
			s.mu.Lock()
			if s.mode == ModeUnknown {
				s.mode = ModeChunked
			}
			s.mu.Unlock()
			return types.ValidateChunk(lineageID, doc.People), nil
		case !fallbackEligible(err):
			return nil, &storage.ChunkLoadFailure{LineageID: lineageID, Err: err}
		}
		log.Printf("lineage: chunk %s unavailable (%v); falling back to monolithic dataset", lineageID, err)
		if err := s.activateFallback(ctx); err != nil {
			return nil, &storage.ChunkLoadFailure{LineageID: lineageID, Err: err}
		}
	}

	s.mu.RLock()
	records, ok := s.partitions[lineageID]
	diags := s.partDiags[lineageID]
	s.mu.RUnlock()
	if !ok {
		return nil, &storage.ChunkLoadFailure{
			LineageID: lineageID,
			Err:       fmt.Errorf("lineage %s not in monolithic dataset: %w", lineageID, storage.ErrNotFound),
		}
	}

	chunk := types.ValidateChunk(lineageID, records)
	if len(diags) > 0 {
		chunk.Diagnostics = append(append([]types.Diagnostic(nil), diags...), chunk.Diagnostics...)
	}
	return chunk, nil
}

// activateFallback fetches the monolithic dataset once and switches the store
// to serving partitions of it.
func (s *Store) activateFallback(ctx context.Context) error {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()

	if s.Mode() == ModeMonolithic {
		return nil
	}

	doc, err := s.source.FetchDataset(ctx)
	if err != nil {
		return fmt.Errorf("monolithic dataset: %w", err)
	}

	partitions, meta, diags := partition(doc.People)

	s.mu.Lock()
	s.partitions = partitions
	s.partDiags = diags
	s.metadata = meta
	s.mode = ModeMonolithic
	s.mu.Unlock()

	log.Printf("lineage: serving %d people in %d lineages from monolithic dataset", len(meta), len(partitions))
	return nil
}

// partition splits the monolithic dataset by lineage id. A person id seen in
// an earlier record is dropped and reported against the later lineage.
func partition(records []types.PersonRecord) (map[string][]types.PersonRecord, map[types.PersonID]string, map[string][]types.Diagnostic) {
	partitions := make(map[string][]types.PersonRecord)
	meta := make(map[types.PersonID]string, len(records))
	diags := make(map[string][]types.Diagnostic)

	for _, rec := range records {
		lineageID := rec.LineageID
		if lineageID == "" {
			lineageID = UnassignedLineage
			rec.LineageID = UnassignedLineage
		}
		if rec.ID != "" {
			if owner, dup := meta[rec.ID]; dup {
				conflict := &storage.DuplicateIDConflict{PersonID: rec.ID, KeptLineage: owner, IgnoredLineage: lineageID}
				diags[lineageID] = append(diags[lineageID], conflict.Diagnostic())
				continue
			}
			meta[rec.ID] = lineageID
		}
		partitions[lineageID] = append(partitions[lineageID], rec)
	}
	return partitions, meta, diags
}

// fallbackEligible reports whether err means "this layout is not served"
// rather than "the host is failing".
func fallbackEligible(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrMalformed)
}
