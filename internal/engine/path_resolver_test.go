package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// staticNeighbors is a NeighborResolver over a fixed adjacency map.
type staticNeighbors struct {
	edges map[types.PersonID][]types.Edge
	fail  map[types.PersonID]bool
	calls int
}

func (s *staticNeighbors) ResolveNeighbors(ctx context.Context, id types.PersonID) ([]types.Edge, error) {
	s.calls++
	if s.fail[id] {
		return nil, fmt.Errorf("lineage of %s: %w", id, storage.ErrNotFound)
	}
	out := append([]types.Edge(nil), s.edges[id]...)
	return out, nil
}

// chain builds a line 0-1-2-...-n of parent edges.
func chain(n int) *staticNeighbors {
	s := &staticNeighbors{edges: make(map[types.PersonID][]types.Edge), fail: map[types.PersonID]bool{}}
	for i := 0; i < n; i++ {
		a, b := types.PersonID(fmt.Sprint(i)), types.PersonID(fmt.Sprint(i+1))
		s.edges[a] = append(s.edges[a], types.Edge{To: b, Kind: types.EdgeParent})
		s.edges[b] = append(s.edges[b], types.Edge{To: a, Kind: types.EdgeChild})
	}
	return s
}

func TestFindPath_SelfIsEmptyPath(t *testing.T) {
	path, err := FindPath(context.Background(), chain(2), "1", "1", DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, 0, path.Len())
	assert.Equal(t, types.PersonID("1"), path.Source)
	assert.Equal(t, types.PersonID("1"), path.Target)
}

func TestFindPath_DepthBound(t *testing.T) {
	g := chain(8)

	path, err := FindPath(context.Background(), g, "0", "5", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, path.Len())

	_, err = FindPath(context.Background(), g, "0", "5", 4)
	assert.ErrorIs(t, err, ErrNoRelationFound)

	_, err = FindPath(context.Background(), g, "0", "1", 0)
	assert.ErrorIs(t, err, ErrNoRelationFound)
}

func TestFindPath_InvalidInput(t *testing.T) {
	_, err := FindPath(context.Background(), chain(2), "0", "1", -1)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = FindPath(context.Background(), chain(2), "", "1", 3)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestFindPath_SkipsUnresolvableNode(t *testing.T) {
	// 0 reaches 3 through either 1 or 2; 1 fails to resolve.
	g := &staticNeighbors{
		edges: map[types.PersonID][]types.Edge{
			"0": {{To: "1", Kind: types.EdgeParent}, {To: "2", Kind: types.EdgeParent}},
			"2": {{To: "3", Kind: types.EdgeParent}},
		},
		fail: map[types.PersonID]bool{"1": true},
	}

	var events []TraceEvent
	path, err := FindPath(context.Background(), g, "0", "3", 4, WithTracer(func(e TraceEvent) { events = append(events, e) }))
	require.NoError(t, err)
	require.Equal(t, 2, path.Len())
	assert.Equal(t, types.PersonID("2"), path.Hops[0].To)

	var skipped []types.PersonID
	for _, e := range events {
		if e.Kind == KindNeighborsSkipped {
			skipped = append(skipped, e.PersonID)
		}
	}
	assert.Equal(t, []types.PersonID{"1"}, skipped)
	assert.Equal(t, KindQueryStarted, events[0].Kind)
	assert.Equal(t, KindPathFound, events[len(events)-1].Kind)
}

func TestFindPath_TieBreakOrder(t *testing.T) {
	// Target 9 is two hops away through a spouse, a child, a parent "10", and
	// a parent "2". The parent with the lowest numeric id wins.
	g := &staticNeighbors{
		edges: map[types.PersonID][]types.Edge{
			"0": {
				{To: "5", Kind: types.EdgeSpouse},
				{To: "4", Kind: types.EdgeChild},
				{To: "10", Kind: types.EdgeParent},
				{To: "2", Kind: types.EdgeParent},
			},
			"2":  {{To: "9", Kind: types.EdgeChild}},
			"4":  {{To: "9", Kind: types.EdgeParent}},
			"5":  {{To: "9", Kind: types.EdgeChild}},
			"10": {{To: "9", Kind: types.EdgeChild}},
		},
	}

	path, err := FindPath(context.Background(), g, "0", "9", 3)
	require.NoError(t, err)
	require.Len(t, path.Hops, 2)
	assert.Equal(t, types.Hop{From: "0", To: "2", Kind: types.EdgeParent}, path.Hops[0])
	assert.Equal(t, types.Hop{From: "2", To: "9", Kind: types.EdgeChild}, path.Hops[1])
}

func TestFindPath_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindPath(ctx, chain(4), "0", "3", 6)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFindPath_Stats(t *testing.T) {
	var stats SearchStats
	_, err := FindPath(context.Background(), chain(6), "0", "3", 6, WithStats(&stats))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodesExpanded)
	assert.Equal(t, 3, stats.DepthReached)
	assert.Equal(t, 5, stats.EdgesExamined)
}

func TestFindPath_MatchesBruteForce(t *testing.T) {
	fixtures := map[string][]types.PersonRecord{
		"hints":    familyRecords(),
		"no-hints": familyRecordsWithoutHints(),
	}
	for name, records := range fixtures {
		for _, capacity := range []int{1, 2, 10} {
			t.Run(fmt.Sprintf("%s/capacity=%d", name, capacity), func(t *testing.T) {
				assertMatchesBruteForce(t, records, capacity)
			})
		}
	}
}

func assertMatchesBruteForce(t *testing.T, records []types.PersonRecord, capacity int) {
	t.Helper()
	want := bruteDistances(records)
	svc := newTestService(t, newMemSource(records), capacity)
	ctx := context.Background()

	for _, a := range records {
		for _, b := range records {
			path, err := svc.FindPath(ctx, a.ID, b.ID, 10)
			d, reachable := want[a.ID][b.ID]
			if !reachable {
				assert.ErrorIs(t, err, ErrNoRelationFound, "%s -> %s", a.ID, b.ID)
				continue
			}
			require.NoError(t, err, "%s -> %s", a.ID, b.ID)
			assert.Equal(t, d, path.Len(), "%s -> %s", a.ID, b.ID)
			assertContiguous(t, path)
		}
	}
}

func TestFindPath_ReversalSymmetry(t *testing.T) {
	fixtures := map[string][]types.PersonRecord{
		"hints":    familyRecords(),
		"no-hints": familyRecordsWithoutHints(),
	}
	for name, records := range fixtures {
		for _, capacity := range []int{1, 10} {
			t.Run(fmt.Sprintf("%s/capacity=%d", name, capacity), func(t *testing.T) {
				assertReversalSymmetry(t, records, capacity)
			})
		}
	}
}

func assertReversalSymmetry(t *testing.T, records []types.PersonRecord, capacity int) {
	t.Helper()
	svc := newTestService(t, newMemSource(records), capacity)
	ctx := context.Background()

	for _, a := range records {
		for _, b := range records {
			forward, ferr := svc.FindPath(ctx, a.ID, b.ID, 10)
			backward, berr := svc.FindPath(ctx, b.ID, a.ID, 10)
			if ferr != nil || berr != nil {
				assert.ErrorIs(t, ferr, ErrNoRelationFound, "%s -> %s", a.ID, b.ID)
				assert.ErrorIs(t, berr, ErrNoRelationFound, "%s -> %s", b.ID, a.ID)
				continue
			}
			require.Equal(t, forward.Len(), backward.Len(), "%s <-> %s", a.ID, b.ID)

			fd, bd := Describe(forward), Describe(backward)
			assert.Equal(t, fd.Up, bd.Down, "%s <-> %s", a.ID, b.ID)
			assert.Equal(t, fd.Down, bd.Up, "%s <-> %s", a.ID, b.ID)
			assert.Equal(t, fd.Lateral, bd.Lateral, "%s <-> %s", a.ID, b.ID)
			assert.Equal(t, fd.Kind, bd.Kind, "%s <-> %s", a.ID, b.ID)
			assert.Equal(t, invertRole(neutralRole(fd.Label)), neutralRole(bd.Label),
				"%s <-> %s: %q vs %q", a.ID, b.ID, fd.Label, bd.Label)
		}
	}
}

// neutralRole rewrites a label into sex-neutral role tokens: P parent,
// C child, AU aunt/uncle, NN niece/nephew, S spouse, B sibling.
func neutralRole(label string) string {
	return strings.NewReplacer(
		"aunt/uncle", "AU", "niece/nephew", "NN",
		"father", "P", "mother", "P", "parent", "P",
		"daughter", "C", "son", "C", "child", "C",
		"husband", "S", "wife", "S", "spouse", "S",
		"brother", "B", "sister", "B", "sibling", "B",
		"uncle", "AU", "aunt", "AU", "nephew", "NN", "niece", "NN",
	).Replace(label)
}

// invertRole maps a role to what the other person is: parent and child
// swap, as do aunt/uncle and niece/nephew.
func invertRole(role string) string {
	return strings.NewReplacer("P", "C", "C", "P", "AU", "NN", "NN", "AU").Replace(role)
}

func TestFindPath_ColdCacheReachesChildInOtherLineage(t *testing.T) {
	// 1 (north) <- 2 (south) <- 3 (east), linked by fatherId only.
	records := []types.PersonRecord{
		{ID: "1", Sex: "M", LineageID: "north"},
		{ID: "2", Sex: "M", LineageID: "south", FatherID: "1"},
		{ID: "3", Sex: "F", LineageID: "east", FatherID: "2"},
	}
	for _, capacity := range []int{1, 3} {
		svc := newTestService(t, newMemSource(records), capacity)

		path, err := svc.FindPath(context.Background(), "1", "3", 6)
		require.NoError(t, err, "capacity %d", capacity)
		assert.Equal(t, 2, path.Len(), "capacity %d", capacity)
		assert.Equal(t, "granddaughter", Describe(path).Label)
	}
}

func TestFindPath_MixedIDsDeterministicAcrossSessions(t *testing.T) {
	// P has children 10, 9 and 1a, all married to T. Integer ids sort first,
	// so the path always runs through 9.
	records := []types.PersonRecord{
		{ID: "P", Sex: "F", LineageID: "a"},
		{ID: "10", Sex: "M", LineageID: "a", MotherID: "P"},
		{ID: "9", Sex: "M", LineageID: "b", MotherID: "P"},
		{ID: "1a", Sex: "M", LineageID: "b", MotherID: "P"},
		{ID: "T", Sex: "F", LineageID: "c", SpouseIDs: []types.PersonID{"10", "9", "1a"}},
	}
	for i := 0; i < 50; i++ {
		svc := newTestService(t, newMemSource(records), 2)
		path, err := svc.FindPath(context.Background(), "P", "T", 6)
		require.NoError(t, err)
		require.Equal(t, 2, path.Len())
		assert.Equal(t, types.PersonID("9"), path.Hops[0].To, "session %d", i)
	}
}

func TestFindPath_DeterministicOnWarmCache(t *testing.T) {
	svc := newTestService(t, newMemSource(familyRecords()), 10)
	ctx := context.Background()

	first, err := svc.FindPath(ctx, "10", "11", 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.FindPath(ctx, "10", "11", 10)
		require.NoError(t, err)
		assert.Equal(t, first.Hops, again.Hops)
	}
}

func assertContiguous(t *testing.T, path *types.RelationshipPath) {
	t.Helper()
	cur := path.Source
	for _, h := range path.Hops {
		assert.Equal(t, cur, h.From)
		cur = h.To
	}
	assert.Equal(t, path.Target, cur)
}
