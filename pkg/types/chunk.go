package types

import "fmt"

// DiagnosticKind classifies a data-integrity finding.
type DiagnosticKind string

const (
	// DiagnosticMissingReference marks a reference to a person that could not
	// be resolved. The edge is dropped; traversal continues.
	DiagnosticMissingReference DiagnosticKind = "missing_reference"

	// DiagnosticDuplicateID marks a person id seen in more than one place.
	// The first loaded record wins.
	DiagnosticDuplicateID DiagnosticKind = "duplicate_id"

	// DiagnosticMalformedRecord marks a record that was dropped or repaired
	// during validation.
	DiagnosticMalformedRecord DiagnosticKind = "malformed_record"
)

// Diagnostic is a non-fatal data-integrity finding surfaced for operators.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	LineageID string         `json:"lineage_id,omitempty"`
	PersonID  PersonID       `json:"person_id,omitempty"`
	OtherID   PersonID       `json:"other_id,omitempty"`
	Message   string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// LineageChunk is the validated person set of one lineage partition.
// It must not be modified after construction.
type LineageChunk struct {
	ID          string
	People      []*Person
	Diagnostics []Diagnostic
}

// Len returns the number of persons in the chunk.
func (c *LineageChunk) Len() int {
	return len(c.People)
}

// ValidateChunk converts raw records into a LineageChunk. Records with an
// empty id are dropped, self-references are cleared, duplicate ids inside the
// chunk keep their first occurrence, and records claiming another lineage are
// re-homed to lineageID. Every repair is reported as a Diagnostic.
func ValidateChunk(lineageID string, records []PersonRecord) *LineageChunk {
	chunk := &LineageChunk{
		ID:     lineageID,
		People: make([]*Person, 0, len(records)),
	}
	seen := make(map[PersonID]struct{}, len(records))

	report := func(kind DiagnosticKind, id, other PersonID, format string, args ...interface{}) {
		chunk.Diagnostics = append(chunk.Diagnostics, Diagnostic{
			Kind:      kind,
			LineageID: lineageID,
			PersonID:  id,
			OtherID:   other,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	for i, rec := range records {
		if rec.ID == "" {
			report(DiagnosticMalformedRecord, "", "", "record %d in lineage %s has no id", i, lineageID)
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			report(DiagnosticDuplicateID, rec.ID, "", "person %s appears more than once in lineage %s", rec.ID, lineageID)
			continue
		}
		seen[rec.ID] = struct{}{}

		p := &Person{
			ID:        rec.ID,
			Name:      rec.Name,
			Sex:       ParseSex(rec.Sex),
			FatherID:  rec.FatherID,
			MotherID:  rec.MotherID,
			LineageID: lineageID,
			Birth:     rec.Birth,
			Death:     rec.Death,
		}
		if rec.LineageID != "" && rec.LineageID != lineageID {
			report(DiagnosticMalformedRecord, rec.ID, "", "person %s claims lineage %s but was served by %s", rec.ID, rec.LineageID, lineageID)
		}
		if p.FatherID == p.ID {
			report(DiagnosticMalformedRecord, rec.ID, rec.ID, "person %s lists itself as father", rec.ID)
			p.FatherID = ""
		}
		if p.MotherID == p.ID {
			report(DiagnosticMalformedRecord, rec.ID, rec.ID, "person %s lists itself as mother", rec.ID)
			p.MotherID = ""
		}
		if p.FatherID != "" && p.FatherID == p.MotherID {
			report(DiagnosticMalformedRecord, rec.ID, p.MotherID, "person %s lists %s as both parents", rec.ID, p.MotherID)
			p.MotherID = ""
		}
		p.SpouseIDs = dedupeRefs(rec.ID, rec.SpouseIDs)
		p.ChildHint = dedupeRefs(rec.ID, rec.ChildIDs)

		chunk.People = append(chunk.People, p)
	}

	return chunk
}

// dedupeRefs drops empty, self, and repeated references, preserving order.
func dedupeRefs(self PersonID, refs []PersonID) []PersonID {
	if len(refs) == 0 {
		return nil
	}
	out := make([]PersonID, 0, len(refs))
	seen := make(map[PersonID]struct{}, len(refs))
	for _, r := range refs {
		if r == "" || r == self {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
