// Package filesource reads a static genealogy archive from a directory:
//
//	<root>/metadata.json         person-to-lineage index
//	<root>/lineages/<id>.json    one document per lineage
//	<root>/people.json           legacy monolithic dataset
package filesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// Default file names inside the archive root.
const (
	DefaultMetadataFile = "metadata.json"
	DefaultLineageDir   = "lineages"
	DefaultDatasetFile  = "people.json"
)

// Source implements storage.ChunkSource over the local filesystem.
type Source struct {
	root         string
	metadataFile string
	lineageDir   string
	datasetFile  string
}

// Option customizes a Source.
type Option func(*Source)

// WithLayout overrides the archive file names. Empty values keep the default.
func WithLayout(metadataFile, lineageDir, datasetFile string) Option {
	return func(s *Source) {
		if metadataFile != "" {
			s.metadataFile = metadataFile
		}
		if lineageDir != "" {
			s.lineageDir = lineageDir
		}
		if datasetFile != "" {
			s.datasetFile = datasetFile
		}
	}
}

// New creates a Source rooted at dir.
func New(dir string, opts ...Option) *Source {
	s := &Source{
		root:         dir,
		metadataFile: DefaultMetadataFile,
		lineageDir:   DefaultLineageDir,
		datasetFile:  DefaultDatasetFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchMetadata reads the person-to-lineage index.
func (s *Source) FetchMetadata(ctx context.Context) (*types.Metadata, error) {
	var meta types.Metadata
	if err := s.readJSON(ctx, filepath.Join(s.root, s.metadataFile), &meta); err != nil {
		return nil, err
	}
	if meta.PersonToLineage == nil {
		return nil, fmt.Errorf("filesource: %s has no personToLineage: %w", s.metadataFile, storage.ErrMalformed)
	}
	return &meta, nil
}

// FetchChunk reads one lineage document.
func (s *Source) FetchChunk(ctx context.Context, lineageID string) (*types.Document, error) {
	if !validLineageID(lineageID) {
		return nil, fmt.Errorf("filesource: lineage id %q: %w", lineageID, storage.ErrInvalidInput)
	}
	var doc types.Document
	path := filepath.Join(s.root, s.lineageDir, lineageID+".json")
	if err := s.readJSON(ctx, path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchDataset reads the monolithic dataset.
func (s *Source) FetchDataset(ctx context.Context) (*types.Document, error) {
	var doc types.Document
	if err := s.readJSON(ctx, filepath.Join(s.root, s.datasetFile), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Lineages lists the lineage ids that have a chunk file, sorted.
func (s *Source) Lineages() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, s.lineageDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("filesource: list lineages: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Source) readJSON(ctx context.Context, path string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("filesource: %s: %w", filepath.Base(path), storage.ErrNotFound)
		}
		return fmt.Errorf("filesource: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("filesource: parse %s: %v: %w", filepath.Base(path), err, storage.ErrMalformed)
	}
	return nil
}

// validLineageID rejects ids that would escape the lineage directory.
func validLineageID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
