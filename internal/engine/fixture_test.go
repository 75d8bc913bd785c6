package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// memSource serves records grouped by lineage and counts chunk fetches.
type memSource struct {
	mu       sync.Mutex
	records  []types.PersonRecord
	chunkErr map[string]error
	fetches  map[string]int
}

func newMemSource(records []types.PersonRecord) *memSource {
	return &memSource{
		records:  records,
		chunkErr: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

func (m *memSource) FetchMetadata(ctx context.Context) (*types.Metadata, error) {
	meta := &types.Metadata{PersonToLineage: make(map[types.PersonID]string)}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if _, ok := meta.PersonToLineage[r.ID]; !ok {
			meta.PersonToLineage[r.ID] = r.LineageID
		}
	}
	return meta, nil
}

func (m *memSource) FetchChunk(ctx context.Context, lineageID string) (*types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[lineageID]++
	if err := m.chunkErr[lineageID]; err != nil {
		return nil, err
	}
	doc := &types.Document{}
	for _, r := range m.records {
		if r.LineageID == lineageID {
			doc.People = append(doc.People, r)
		}
	}
	if len(doc.People) == 0 {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (m *memSource) FetchDataset(ctx context.Context) (*types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.Document{People: m.records}, nil
}

func (m *memSource) fetchCount(lineageID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[lineageID]
}

func newTestService(t *testing.T, source storage.ChunkSource, capacity int) *Service {
	t.Helper()
	store := lineage.NewStore(source)
	cache := lineage.NewCache(store, capacity)
	svc := NewService(store, cache)
	require.NotNil(t, svc)
	return svc
}

// familyRecords is a three-lineage family:
//
//	north: 1 Arthur = 2 Beatrice; children 3 Charles, 5 Diana
//	south: 4 Eleanor = 3; children 6 Frank, 7 Grace; 9 Henry = 5; child 8 Iris
//	east:  10 Jack (son of 8), 11 Kevin = 7, 12 Lena (father unknown id 999)
//
// Cross-lineage children are listed in childIds so they stay reachable when
// only one lineage is resident.
func familyRecords() []types.PersonRecord {
	ids := func(v ...types.PersonID) []types.PersonID { return v }
	return []types.PersonRecord{
		{ID: "1", Name: "Arthur", Sex: "M", LineageID: "north", SpouseIDs: ids("2")},
		{ID: "2", Name: "Beatrice", Sex: "F", LineageID: "north", SpouseIDs: ids("1")},
		{ID: "3", Name: "Charles", Sex: "M", LineageID: "north", FatherID: "1", MotherID: "2", SpouseIDs: ids("4"), ChildIDs: ids("6", "7")},
		{ID: "5", Name: "Diana", Sex: "F", LineageID: "north", FatherID: "1", MotherID: "2", SpouseIDs: ids("9"), ChildIDs: ids("8")},

		{ID: "4", Name: "Eleanor", Sex: "F", LineageID: "south", SpouseIDs: ids("3")},
		{ID: "6", Name: "Frank", Sex: "M", LineageID: "south", FatherID: "3", MotherID: "4"},
		{ID: "7", Name: "Grace", Sex: "F", LineageID: "south", FatherID: "3", MotherID: "4", SpouseIDs: ids("11")},
		{ID: "8", Name: "Iris", Sex: "F", LineageID: "south", FatherID: "9", MotherID: "5", ChildIDs: ids("10")},
		{ID: "9", Name: "Henry", Sex: "M", LineageID: "south", SpouseIDs: ids("5")},

		{ID: "10", Name: "Jack", Sex: "M", LineageID: "east", MotherID: "8"},
		{ID: "11", Name: "Kevin", Sex: "M", LineageID: "east", SpouseIDs: ids("7")},
		{ID: "12", Name: "Lena", LineageID: "east", FatherID: "999"},
	}
}

// familyRecordsWithoutHints is familyRecords with every childIds list
// removed, so children are known only through their own parent references.
func familyRecordsWithoutHints() []types.PersonRecord {
	records := familyRecords()
	for i := range records {
		records[i].ChildIDs = nil
	}
	return records
}

// bruteDistances returns all-pairs hop distances over the undirected graph
// implied by parent and spouse references.
func bruteDistances(records []types.PersonRecord) map[types.PersonID]map[types.PersonID]int {
	adj := make(map[types.PersonID]map[types.PersonID]bool)
	known := make(map[types.PersonID]bool)
	for _, r := range records {
		known[r.ID] = true
	}
	link := func(a, b types.PersonID) {
		if a == "" || b == "" || a == b || !known[a] || !known[b] {
			return
		}
		if adj[a] == nil {
			adj[a] = make(map[types.PersonID]bool)
		}
		if adj[b] == nil {
			adj[b] = make(map[types.PersonID]bool)
		}
		adj[a][b] = true
		adj[b][a] = true
	}
	for _, r := range records {
		link(r.ID, r.FatherID)
		link(r.ID, r.MotherID)
		for _, s := range r.SpouseIDs {
			link(r.ID, s)
		}
	}

	dist := make(map[types.PersonID]map[types.PersonID]int)
	for _, r := range records {
		d := map[types.PersonID]int{r.ID: 0}
		queue := []types.PersonID{r.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for next := range adj[cur] {
				if _, ok := d[next]; !ok {
					d[next] = d[cur] + 1
					queue = append(queue, next)
				}
			}
		}
		dist[r.ID] = d
	}
	return dist
}
