package types

// EdgeKind describes how a neighbor relates to the person whose adjacency
// list contains the edge.
type EdgeKind string

const (
	// EdgeParent means the neighbor is this person's parent (the hop ascends).
	EdgeParent EdgeKind = "parent"

	// EdgeChild means the neighbor is this person's child (the hop descends).
	EdgeChild EdgeKind = "child"

	// EdgeSpouse means the neighbor is this person's spouse (a lateral hop).
	EdgeSpouse EdgeKind = "spouse"
)

// Priority returns the tie-break rank of the edge kind: blood edges are
// explored before marriage edges.
func (k EdgeKind) Priority() int {
	switch k {
	case EdgeParent:
		return 0
	case EdgeChild:
		return 1
	default:
		return 2
	}
}

// Inverse returns the kind of the mirrored edge.
func (k EdgeKind) Inverse() EdgeKind {
	switch k {
	case EdgeParent:
		return EdgeChild
	case EdgeChild:
		return EdgeParent
	default:
		return EdgeSpouse
	}
}

// Edge is one entry of an adjacency list. Sex is the neighbor's recorded sex.
type Edge struct {
	To   PersonID `json:"to"`
	Kind EdgeKind `json:"kind"`
	Sex  Sex      `json:"sex"`
}

// Hop is one traversed edge of a relationship path.
type Hop struct {
	From  PersonID `json:"from"`
	To    PersonID `json:"to"`
	Kind  EdgeKind `json:"kind"`
	ToSex Sex      `json:"to_sex"`
}

// RelationshipPath is an ordered list of hops from Source to Target.
type RelationshipPath struct {
	Source PersonID `json:"source"`
	Target PersonID `json:"target"`
	Hops   []Hop    `json:"hops"`
}

// Len returns the number of hops, which is the degree of separation.
func (p *RelationshipPath) Len() int {
	return len(p.Hops)
}

// TargetSex returns the recorded sex of the path's target person.
func (p *RelationshipPath) TargetSex() Sex {
	if len(p.Hops) == 0 {
		return SexUnknown
	}
	return p.Hops[len(p.Hops)-1].ToSex
}

// RelationshipKind is the broad class of a described relationship.
type RelationshipKind string

const (
	RelationshipSelf       RelationshipKind = "self"
	RelationshipSpouse     RelationshipKind = "spouse"
	RelationshipLineal     RelationshipKind = "lineal"
	RelationshipCollateral RelationshipKind = "collateral"
	RelationshipInLaw      RelationshipKind = "in_law"
	RelationshipMarriage   RelationshipKind = "marriage"
)

// RelationshipDescriptor is the classification of a RelationshipPath.
// Label names what the target is to the source.
type RelationshipDescriptor struct {
	Up      int              `json:"up"`
	Down    int              `json:"down"`
	Lateral int              `json:"lateral"`
	Degree  int              `json:"degree"`
	Removal int              `json:"removal"`
	Kind    RelationshipKind `json:"kind"`
	Label   string           `json:"label"`
	InLaw   bool             `json:"in_law"`
}
