package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/internal/storage/postgres"
	"github.com/scrypster/kinship/pkg/types"
)

// newTestStore connects to KINSHIP_POSTGRES_TEST_DSN or skips the test.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("KINSHIP_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("KINSHIP_POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}

	store, err := postgres.NewStore(dsn)
	require.NoError(t, err, "NewStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() {
		_ = store.TruncateForTest(context.Background())
		store.Close()
	})
	return store
}

func TestStoreRoundTripsArrays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, []types.PersonRecord{
		{ID: "1", Name: "Ann", LineageID: "north", SpouseIDs: []types.PersonID{"2"}},
		{ID: "2", Name: "Bo", LineageID: "south", SpouseIDs: []types.PersonID{"1"}, ChildIDs: []types.PersonID{"3"}},
		{ID: "3", Name: "Cy", LineageID: "south", FatherID: "2", MotherID: "1"},
	})
	require.NoError(t, err)

	meta, err := store.FetchMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, meta.PersonToLineage, 3)

	south, err := store.FetchChunk(ctx, "south")
	require.NoError(t, err)
	require.Len(t, south.People, 2)
	assert.Equal(t, []types.PersonID{"1"}, south.People[0].SpouseIDs)
	assert.Equal(t, []types.PersonID{"3"}, south.People[0].ChildIDs)
	assert.Equal(t, types.PersonID("1"), south.People[1].MotherID)
}

func TestStoreImportKeepsFirstDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report, err := store.Import(ctx, []types.PersonRecord{
		{ID: "7", Name: "Gil", LineageID: "north"},
		{ID: "7", Name: "Gil (copy)", LineageID: "south"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, []storage.DuplicateIDConflict{
		{PersonID: "7", KeptLineage: "north", IgnoredLineage: "south"},
	}, report.Conflicts)

	meta, err := store.FetchMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "north", meta.PersonToLineage["7"])
}

func TestStoreMissingLineage(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FetchChunk(context.Background(), "nowhere")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
