package storage

import "github.com/scrypster/kinship/pkg/types"

// ImportReport summarizes one Import run.
type ImportReport struct {
	// Imported is the number of rows written.
	Imported int
	// Conflicts lists ids seen more than once in the run. The first record
	// was written; later ones were skipped.
	Conflicts []DuplicateIDConflict
}

// FirstOccurrences returns records with every repeated id removed, keeping
// the first record for each id, and one conflict per dropped record.
func FirstOccurrences(records []types.PersonRecord) ([]types.PersonRecord, []DuplicateIDConflict) {
	owner := make(map[types.PersonID]string, len(records))
	kept := make([]types.PersonRecord, 0, len(records))
	var conflicts []DuplicateIDConflict
	for _, rec := range records {
		if lineageID, dup := owner[rec.ID]; dup {
			conflicts = append(conflicts, DuplicateIDConflict{
				PersonID:       rec.ID,
				KeptLineage:    lineageID,
				IgnoredLineage: rec.LineageID,
			})
			continue
		}
		owner[rec.ID] = rec.LineageID
		kept = append(kept, rec)
	}
	return kept, conflicts
}
