// Package engine builds the kinship graph over lazily loaded lineage chunks,
// finds bounded shortest relationship paths through it, and classifies those
// paths into kinship labels.
package engine

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

// Directory answers which lineage owns a person and which lineages exist.
// *lineage.Store implements it.
type Directory interface {
	LineageOf(ctx context.Context, id types.PersonID) (string, bool, error)
	Lineages(ctx context.Context) ([]string, error)
}

// ChunkProvider returns lineage chunks, loading them when needed.
// *lineage.Cache implements it.
type ChunkProvider interface {
	Get(ctx context.Context, lineageID string) (*types.LineageChunk, error)
	Contains(lineageID string) bool
}

// Graph is the in-memory kinship graph over the resident lineages.
//
// Persons are admitted per lineage chunk. Edges are not stored per person:
// parent and spouse references come from the person record, and the inverse
// directions come from two id indexes fed only by those references. The
// indexes hold ids, not persons, and outlive eviction, so a parent can reach
// a child whose lineage is no longer resident. Every lineage is indexed once
// per session; the first child lookup loads the ones never seen.
//
// Graph never holds its lock while loading a chunk, because loading may evict
// another chunk and call EvictLineage.
type Graph struct {
	dir    Directory
	chunks ChunkProvider

	mu       sync.RWMutex
	persons  map[types.PersonID]*types.Person
	members  map[string][]types.PersonID
	children map[types.PersonID]map[types.PersonID]struct{}
	spouseOf map[types.PersonID]map[types.PersonID]struct{}
	scanned  map[string]bool
	complete bool

	diags *diagnosticLog
}

// NewGraph creates an empty graph.
func NewGraph(dir Directory, chunks ChunkProvider) *Graph {
	return &Graph{
		dir:      dir,
		chunks:   chunks,
		persons:  make(map[types.PersonID]*types.Person),
		members:  make(map[string][]types.PersonID),
		children: make(map[types.PersonID]map[types.PersonID]struct{}),
		spouseOf: make(map[types.PersonID]map[types.PersonID]struct{}),
		scanned:  make(map[string]bool),
		diags:    newDiagnosticLog(maxDiagnostics),
	}
}

// Person returns the record for id, loading its lineage if necessary.
// It returns storage.ErrUnknownPerson when the metadata index has no entry.
func (g *Graph) Person(ctx context.Context, id types.PersonID) (*types.Person, error) {
	if p := g.resident(id); p != nil {
		return p, nil
	}

	lineageID, ok, err := g.dir.LineageOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, storage.ErrUnknownPerson)
	}

	chunk, err := g.ensureLineage(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	if p := g.resident(id); p != nil {
		return p, nil
	}
	if p := findInChunk(chunk, id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("person %s absent from lineage %s: %w", id, lineageID, storage.ErrNotFound)
}

// ResolveNeighbors returns the edges of id in deterministic order: parents,
// then children, then spouses, each by ascending id.
//
// Referenced persons in lineages that are not resident are loaded first. A
// reference that cannot be resolved (no metadata entry, failed lineage load,
// or absent from its lineage) is dropped and recorded as a missing-reference
// diagnostic. Children are found through the child index, which the first
// call completes by loading every lineage not yet seen; childIds hints are
// checked too but must be confirmed by the child's own parent reference.
// Only failing to resolve id itself, or the metadata index, is an error.
func (g *Graph) ResolveNeighbors(ctx context.Context, id types.PersonID) ([]types.Edge, error) {
	p, err := g.Person(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.Edge]struct{})
	edges := make([]types.Edge, 0, 4)
	add := func(to *types.Person, kind types.EdgeKind) {
		e := types.Edge{To: to.ID, Kind: kind, Sex: to.Sex}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}

	for _, parentID := range p.ParentIDs() {
		if parent := g.resolveRef(ctx, p, parentID); parent != nil {
			add(parent, types.EdgeParent)
		}
	}

	if err := g.indexLineages(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	indexedChildren := sortedIDs(g.children[id])
	inverseSpouses := sortedIDs(g.spouseOf[id])
	g.mu.RUnlock()

	for _, childID := range indexedChildren {
		if child := g.resolveRef(ctx, p, childID); child != nil && child.HasParent(p.ID) {
			add(child, types.EdgeChild)
		}
	}
	for _, hint := range p.ChildHint {
		if containsID(indexedChildren, hint) {
			continue
		}
		child := g.resolveRef(ctx, p, hint)
		if child == nil {
			continue
		}
		if !child.HasParent(p.ID) {
			g.warn(p, hint, "child list entry not confirmed by the child's parent reference")
			continue
		}
		add(child, types.EdgeChild)
	}
	for _, spouseID := range p.SpouseIDs {
		if spouse := g.resolveRef(ctx, p, spouseID); spouse != nil {
			add(spouse, types.EdgeSpouse)
		}
	}
	for _, spouseID := range inverseSpouses {
		if spouse := g.resolveRef(ctx, p, spouseID); spouse != nil {
			add(spouse, types.EdgeSpouse)
		}
	}

	SortEdges(edges)
	return edges, nil
}

// ResidentEdges returns the edges of id among resident persons only, without
// loading anything. It returns nil when id is not resident.
func (g *Graph) ResidentEdges(id types.PersonID) []types.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.persons[id]
	if !ok {
		return nil
	}
	var edges []types.Edge
	for _, parentID := range p.ParentIDs() {
		if parent, ok := g.persons[parentID]; ok {
			edges = append(edges, types.Edge{To: parentID, Kind: types.EdgeParent, Sex: parent.Sex})
		}
	}
	for _, child := range g.collect(g.children[id]) {
		edges = append(edges, types.Edge{To: child.ID, Kind: types.EdgeChild, Sex: child.Sex})
	}
	spouses := make(map[types.PersonID]struct{})
	for _, s := range p.SpouseIDs {
		spouses[s] = struct{}{}
	}
	for s := range g.spouseOf[id] {
		spouses[s] = struct{}{}
	}
	for s := range spouses {
		if spouse, ok := g.persons[s]; ok {
			edges = append(edges, types.Edge{To: s, Kind: types.EdgeSpouse, Sex: spouse.Sex})
		}
	}
	SortEdges(edges)
	return edges
}

// ResidentLineages returns the ids of lineages admitted to the graph, sorted.
func (g *Graph) ResidentLineages() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size returns the number of resident persons.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.persons)
}

// Diagnostics returns the recorded data-integrity findings, oldest first.
func (g *Graph) Diagnostics() []types.Diagnostic {
	return g.diags.list()
}

// EvictLineage drops the persons admitted from chunk. The id indexes keep
// their entries; edges to evicted persons reload the lineage on demand.
// It is registered as the cache's eviction listener.
func (g *Graph) EvictLineage(chunk *types.LineageChunk) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.members[chunk.ID] {
		delete(g.persons, id)
	}
	delete(g.members, chunk.ID)
}

// indexLineages loads, once per session, every lineage whose references have
// not been indexed yet. A lineage that fails to load is logged and not
// retried by the scan; it is indexed whenever a later lookup admits it.
func (g *Graph) indexLineages(ctx context.Context) error {
	g.mu.RLock()
	complete := g.complete
	g.mu.RUnlock()
	if complete {
		return nil
	}

	lineages, err := g.dir.Lineages(ctx)
	if err != nil {
		return err
	}
	for _, lineageID := range lineages {
		g.mu.RLock()
		done := g.scanned[lineageID]
		g.mu.RUnlock()
		if done {
			continue
		}
		chunk, err := g.ensureLineage(ctx, lineageID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Printf("engine: lineage %s skipped while indexing children: %v", lineageID, err)
			g.mu.Lock()
			g.scanned[lineageID] = true
			g.mu.Unlock()
			continue
		}
		g.indexChunk(chunk)
	}

	g.mu.Lock()
	g.complete = true
	g.mu.Unlock()
	return nil
}

// ensureLineage makes lineageID resident and returns its chunk.
func (g *Graph) ensureLineage(ctx context.Context, lineageID string) (*types.LineageChunk, error) {
	chunk, err := g.chunks.Get(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	g.admit(chunk)
	return chunk, nil
}

// admit inserts the persons of chunk unless the lineage is already admitted
// or the chunk has been evicted from the cache in the meantime.
func (g *Graph) admit(chunk *types.LineageChunk) {
	var found []types.Diagnostic

	// Residency is checked under g.mu so an eviction listener cannot run
	// between the check and the insert.
	g.mu.Lock()
	if _, ok := g.members[chunk.ID]; ok || !g.chunks.Contains(chunk.ID) {
		g.mu.Unlock()
		return
	}
	found = append(found, chunk.Diagnostics...)
	admitted := make([]types.PersonID, 0, len(chunk.People))
	for _, p := range chunk.People {
		if existing, dup := g.persons[p.ID]; dup {
			conflict := &storage.DuplicateIDConflict{
				PersonID:       p.ID,
				KeptLineage:    existing.LineageID,
				IgnoredLineage: chunk.ID,
			}
			found = append(found, conflict.Diagnostic())
			continue
		}
		g.persons[p.ID] = p
		admitted = append(admitted, p.ID)
		g.indexRefs(p)
	}
	g.members[chunk.ID] = admitted
	g.scanned[chunk.ID] = true
	g.mu.Unlock()

	for _, d := range found {
		g.diags.record(d)
	}
}

// indexChunk adds the references of chunk to the id indexes when admit has
// not, which happens when the chunk was evicted before it could be admitted.
func (g *Graph) indexChunk(chunk *types.LineageChunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scanned[chunk.ID] {
		return
	}
	for _, p := range chunk.People {
		if existing, ok := g.persons[p.ID]; ok && existing.LineageID != chunk.ID {
			continue
		}
		g.indexRefs(p)
	}
	g.scanned[chunk.ID] = true
}

// indexRefs records the parent and spouse references of p. Callers hold g.mu.
func (g *Graph) indexRefs(p *types.Person) {
	for _, parentID := range p.ParentIDs() {
		addIndex(g.children, parentID, p.ID)
	}
	for _, s := range p.SpouseIDs {
		addIndex(g.spouseOf, s, p.ID)
	}
}

// resolveRef returns the person targetID referenced by from, loading its
// lineage when needed, or nil after recording a missing-reference diagnostic.
func (g *Graph) resolveRef(ctx context.Context, from *types.Person, targetID types.PersonID) *types.Person {
	if p := g.resident(targetID); p != nil {
		return p
	}

	lineageID, ok, err := g.dir.LineageOf(ctx, targetID)
	if err != nil {
		g.warn(from, targetID, fmt.Sprintf("metadata unavailable: %v", err))
		return nil
	}
	if !ok {
		g.warn(from, targetID, "no lineage in metadata index")
		return nil
	}

	chunk, err := g.ensureLineage(ctx, lineageID)
	if err != nil {
		if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
			g.warn(from, targetID, fmt.Sprintf("lineage %s unavailable: %v", lineageID, err))
		}
		return nil
	}
	if p := g.resident(targetID); p != nil {
		return p
	}
	if p := findInChunk(chunk, targetID); p != nil {
		return p
	}
	g.warn(from, targetID, fmt.Sprintf("absent from lineage %s", lineageID))
	return nil
}

func (g *Graph) warn(from *types.Person, missing types.PersonID, reason string) {
	w := &storage.MissingReferenceWarning{PersonID: from.ID, MissingID: missing, Reason: reason}
	g.diags.record(w.Diagnostic(from.LineageID))
}

func (g *Graph) resident(id types.PersonID) *types.Person {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.persons[id]
}

// collect resolves an index set to resident persons. Callers hold g.mu.
func (g *Graph) collect(set map[types.PersonID]struct{}) []*types.Person {
	out := make([]*types.Person, 0, len(set))
	for id := range set {
		if p, ok := g.persons[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SortEdges orders edges by kind priority, then by ascending person id.
func SortEdges(edges []types.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		pi, pj := edges[i].Kind.Priority(), edges[j].Kind.Priority()
		if pi != pj {
			return pi < pj
		}
		return edges[i].To.Less(edges[j].To)
	})
}

func findInChunk(chunk *types.LineageChunk, id types.PersonID) *types.Person {
	for _, p := range chunk.People {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func containsID(ids []types.PersonID, id types.PersonID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// sortedIDs copies an index set. Callers hold g.mu.
func sortedIDs(set map[types.PersonID]struct{}) []types.PersonID {
	out := make([]types.PersonID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func addIndex(idx map[types.PersonID]map[types.PersonID]struct{}, key, value types.PersonID) {
	set, ok := idx[key]
	if !ok {
		set = make(map[types.PersonID]struct{})
		idx[key] = set
	}
	set[value] = struct{}{}
}
