package storage

import (
	"errors"
	"fmt"

	"github.com/scrypster/kinship/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrMalformed indicates that a resource exists but could not be parsed.
	ErrMalformed = errors.New("malformed resource")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownPerson indicates that a person id is absent from the metadata index.
	ErrUnknownPerson = errors.New("unknown person")
)

// ChunkLoadFailure is returned when a lineage chunk (or the metadata index,
// with an empty LineageID) could not be fetched or parsed. It is never retried
// automatically.
type ChunkLoadFailure struct {
	LineageID string
	Err       error
}

func (e *ChunkLoadFailure) Error() string {
	if e.LineageID == "" {
		return fmt.Sprintf("chunk load failure: metadata: %v", e.Err)
	}
	return fmt.Sprintf("chunk load failure: lineage %s: %v", e.LineageID, e.Err)
}

func (e *ChunkLoadFailure) Unwrap() error {
	return e.Err
}

// MissingReferenceWarning records a reference to a person that could not be
// resolved even after loading its owning lineage.
type MissingReferenceWarning struct {
	PersonID  types.PersonID
	MissingID types.PersonID
	Reason    string
}

func (w *MissingReferenceWarning) Error() string {
	return fmt.Sprintf("person %s references missing person %s: %s", w.PersonID, w.MissingID, w.Reason)
}

// Diagnostic converts the warning to its reportable form.
func (w *MissingReferenceWarning) Diagnostic(lineageID string) types.Diagnostic {
	return types.Diagnostic{
		Kind:      types.DiagnosticMissingReference,
		LineageID: lineageID,
		PersonID:  w.PersonID,
		OtherID:   w.MissingID,
		Message:   w.Error(),
	}
}

// DuplicateIDConflict records a person id present in two lineages. The
// record from KeptLineage stays resident.
type DuplicateIDConflict struct {
	PersonID       types.PersonID
	KeptLineage    string
	IgnoredLineage string
}

func (c *DuplicateIDConflict) Error() string {
	return fmt.Sprintf("person %s present in lineages %s and %s; keeping %s",
		c.PersonID, c.KeptLineage, c.IgnoredLineage, c.KeptLineage)
}

// Diagnostic converts the conflict to its reportable form.
func (c *DuplicateIDConflict) Diagnostic() types.Diagnostic {
	return types.Diagnostic{
		Kind:      types.DiagnosticDuplicateID,
		LineageID: c.IgnoredLineage,
		PersonID:  c.PersonID,
		Message:   c.Error(),
	}
}
