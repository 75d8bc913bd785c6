// Package types defines the core data structures shared by the kinship engine:
// person records as served by the archive, validated persons, lineage chunks,
// and the derived relationship path and descriptor values.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PersonID uniquely identifies a person across the full dataset.
// The archive emits ids either as JSON strings or as integers; both decode
// to the same PersonID.
type PersonID string

// UnmarshalJSON accepts a JSON string or number.
func (id *PersonID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PersonID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("person id must be a string or number: %w", err)
	}
	*id = PersonID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id PersonID) String() string {
	return string(id)
}

// Less is the tie-break order used by path resolution. Integer ids sort
// before all other ids and compare by value; the rest compare
// lexicographically. Integers of equal value ("7", "07") fall back to the
// raw string so the order stays total.
func (id PersonID) Less(other PersonID) bool {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)
	switch {
	case errA == nil && errB == nil:
		if a != b {
			return a < b
		}
		return id < other
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return id < other
	}
}

// Sex is the recorded sex of a person. It drives kinship term selection.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// ParseSex maps the loose spellings found in the archive onto a Sex value.
func ParseSex(s string) Sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man":
		return SexMale
	case "f", "female", "woman":
		return SexFemale
	default:
		return SexUnknown
	}
}

// PersonRecord is one person as served by a chunk, the monolithic dataset,
// or a database row. Relationships are references, never embedded objects.
type PersonRecord struct {
	ID        PersonID   `json:"id"`
	Name      string     `json:"name"`
	Sex       string     `json:"sex,omitempty"`
	FatherID  PersonID   `json:"fatherId,omitempty"`
	MotherID  PersonID   `json:"motherId,omitempty"`
	SpouseIDs []PersonID `json:"spouseIds,omitempty"`
	LineageID string     `json:"lineageId,omitempty"`

	// ChildIDs is a denormalized cache of children. It is never authoritative:
	// the engine only uses it to discover which lineages may hold children.
	ChildIDs []PersonID `json:"childIds,omitempty"`

	// Birth and Death are opaque to the engine and carried through for display.
	Birth string `json:"birth,omitempty"`
	Death string `json:"death,omitempty"`
}

// Person is a validated person record.
type Person struct {
	ID        PersonID   `json:"id"`
	Name      string     `json:"name"`
	Sex       Sex        `json:"sex"`
	FatherID  PersonID   `json:"fatherId,omitempty"`
	MotherID  PersonID   `json:"motherId,omitempty"`
	SpouseIDs []PersonID `json:"spouseIds,omitempty"`
	LineageID string     `json:"lineageId"`
	ChildHint []PersonID `json:"-"`
	Birth     string     `json:"birth,omitempty"`
	Death     string     `json:"death,omitempty"`
}

// ParentIDs returns the non-empty parent references, father first.
func (p *Person) ParentIDs() []PersonID {
	parents := make([]PersonID, 0, 2)
	if p.FatherID != "" {
		parents = append(parents, p.FatherID)
	}
	if p.MotherID != "" {
		parents = append(parents, p.MotherID)
	}
	return parents
}

// HasParent reports whether id is recorded as this person's father or mother.
func (p *Person) HasParent(id PersonID) bool {
	return id != "" && (p.FatherID == id || p.MotherID == id)
}

// HasSpouse reports whether id is among this person's spouse references.
func (p *Person) HasSpouse(id PersonID) bool {
	for _, s := range p.SpouseIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Document is the payload of a lineage chunk or of the monolithic dataset.
type Document struct {
	People []PersonRecord `json:"people"`
}

// Metadata maps every person id to the lineage that owns it.
type Metadata struct {
	PersonToLineage map[PersonID]string `json:"personToLineage"`
}
