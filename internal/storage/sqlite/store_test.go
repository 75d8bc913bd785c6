package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreImportAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report, err := store.Import(ctx, []types.PersonRecord{
		{ID: "1", Name: "Ann", Sex: "F", LineageID: "north", SpouseIDs: []types.PersonID{"2"}, ChildIDs: []types.PersonID{"3"}},
		{ID: "2", Name: "Bo", Sex: "M", LineageID: "south", SpouseIDs: []types.PersonID{"1"}},
		{ID: "3", Name: "Cy", LineageID: "north", FatherID: "2", MotherID: "1", Birth: "1901"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Imported)
	assert.Empty(t, report.Conflicts)

	meta, err := store.FetchMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[types.PersonID]string{"1": "north", "2": "south", "3": "north"}, meta.PersonToLineage)

	north, err := store.FetchChunk(ctx, "north")
	require.NoError(t, err)
	require.Len(t, north.People, 2)
	assert.Equal(t, []types.PersonID{"2"}, north.People[0].SpouseIDs)
	assert.Equal(t, []types.PersonID{"3"}, north.People[0].ChildIDs)
	assert.Equal(t, types.PersonID("2"), north.People[1].FatherID)
	assert.Equal(t, "1901", north.People[1].Birth)
	assert.Nil(t, north.People[1].SpouseIDs)

	all, err := store.FetchDataset(ctx)
	require.NoError(t, err)
	assert.Len(t, all.People, 3)
}

func TestStoreImportUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, []types.PersonRecord{{ID: "1", Name: "Ann", LineageID: "north"}})
	require.NoError(t, err)
	_, err = store.Import(ctx, []types.PersonRecord{{ID: "1", Name: "Anne", LineageID: "north"}})
	require.NoError(t, err)

	doc, err := store.FetchChunk(ctx, "north")
	require.NoError(t, err)
	require.Len(t, doc.People, 1)
	assert.Equal(t, "Anne", doc.People[0].Name)
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
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, storage.DuplicateIDConflict{PersonID: "7", KeptLineage: "north", IgnoredLineage: "south"}, report.Conflicts[0])

	meta, err := store.FetchMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "north", meta.PersonToLineage["7"])

	north, err := store.FetchChunk(ctx, "north")
	require.NoError(t, err)
	require.Len(t, north.People, 1)
	assert.Equal(t, "Gil", north.People[0].Name)

	_, err = store.FetchChunk(ctx, "south")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FetchMetadata(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.FetchChunk(ctx, "north")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreImportRejectsRecordsWithoutLineage(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Import(context.Background(), []types.PersonRecord{{ID: "1"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestArchivePath(t *testing.T) {
	assert.Equal(t, "", archivePath(":memory:"))
	assert.Equal(t, "", archivePath("file::memory:?cache=shared"))
	assert.Equal(t, "/tmp/a.db", archivePath("/tmp/a.db"))
	assert.Equal(t, "/tmp/a.db", archivePath("file:/tmp/a.db?mode=rwc"))
}

func TestStoreSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, []types.PersonRecord{
		{ID: "1", Name: "Ann", LineageID: "north"},
		{ID: "2", Name: "Bo", LineageID: "north", MotherID: "1"},
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, store.Snapshot(ctx, dest))
	require.NoError(t, VerifySnapshot(ctx, dest))

	copyStore, err := NewStore(dest)
	require.NoError(t, err)
	defer copyStore.Close()

	doc, err := copyStore.FetchChunk(ctx, "north")
	require.NoError(t, err)
	assert.Len(t, doc.People, 2)

	assert.Error(t, store.Snapshot(ctx, dest), "existing snapshot must not be overwritten")
}
