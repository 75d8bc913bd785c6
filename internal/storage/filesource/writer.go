package filesource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// UnassignedLineage receives records written without a lineage id.
const UnassignedLineage = "unassigned"

// WriteArchive writes records to dir in the archive layout: the metadata
// index, one document per lineage, and the monolithic dataset. The first
// record of a repeated id wins in the index. It returns the number of
// lineage documents written.
func WriteArchive(dir string, records []types.PersonRecord) (int, error) {
	byLineage := make(map[string][]types.PersonRecord)
	meta := types.Metadata{PersonToLineage: make(map[types.PersonID]string, len(records))}

	for _, rec := range records {
		if rec.LineageID == "" {
			rec.LineageID = UnassignedLineage
		}
		if !validLineageID(rec.LineageID) {
			return 0, fmt.Errorf("filesource: lineage id %q: %w", rec.LineageID, storage.ErrInvalidInput)
		}
		if rec.ID != "" {
			if _, dup := meta.PersonToLineage[rec.ID]; !dup {
				meta.PersonToLineage[rec.ID] = rec.LineageID
			}
		}
		byLineage[rec.LineageID] = append(byLineage[rec.LineageID], rec)
	}

	if err := os.MkdirAll(filepath.Join(dir, DefaultLineageDir), 0o755); err != nil {
		return 0, fmt.Errorf("filesource: create archive: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, DefaultMetadataFile), meta); err != nil {
		return 0, err
	}
	for id, people := range byLineage {
		if err := writeJSON(filepath.Join(dir, DefaultLineageDir, id+".json"), types.Document{People: people}); err != nil {
			return 0, err
		}
	}
	if err := writeJSON(filepath.Join(dir, DefaultDatasetFile), types.Document{People: records}); err != nil {
		return 0, err
	}
	return len(byLineage), nil
}

// writeJSON writes v through a temporary file so readers never observe a
// partial document.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("filesource: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filesource: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("filesource: write %s: %w", path, err)
	}
	return nil
}
