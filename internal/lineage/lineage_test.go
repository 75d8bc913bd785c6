package lineage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// fakeSource serves documents from memory and counts fetches.
type fakeSource struct {
	mu          sync.Mutex
	metadata    *types.Metadata
	metadataErr error
	chunks      map[string]*types.Document
	chunkErr    map[string]error
	dataset     *types.Document
	datasetErr  error
	fetches     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		chunks:   make(map[string]*types.Document),
		chunkErr: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

func (f *fakeSource) FetchMetadata(ctx context.Context) (*types.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches["metadata"]++
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	if f.metadata == nil {
		return nil, storage.ErrNotFound
	}
	return f.metadata, nil
}

func (f *fakeSource) FetchChunk(ctx context.Context, lineageID string) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[lineageID]++
	if err := f.chunkErr[lineageID]; err != nil {
		return nil, err
	}
	doc, ok := f.chunks[lineageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeSource) FetchDataset(ctx context.Context) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches["dataset"]++
	if f.datasetErr != nil {
		return nil, f.datasetErr
	}
	if f.dataset == nil {
		return nil, storage.ErrNotFound
	}
	return f.dataset, nil
}

func (f *fakeSource) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[key]
}

// chunkedSource builds n lineages L1..Ln with one person each.
func chunkedSource(n int) *fakeSource {
	src := newFakeSource()
	src.metadata = &types.Metadata{PersonToLineage: map[types.PersonID]string{}}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("L%d", i)
		pid := types.PersonID(fmt.Sprintf("%d", i))
		src.metadata.PersonToLineage[pid] = id
		src.chunks[id] = &types.Document{People: []types.PersonRecord{{ID: pid, Name: "p" + string(pid), LineageID: id}}}
	}
	return src
}

func TestStoreChunkedMode(t *testing.T) {
	src := chunkedSource(2)
	store := NewStore(src)
	ctx := context.Background()

	meta, err := store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "L2", meta["2"])
	assert.Equal(t, ModeChunked, store.Mode())

	chunk, err := store.Load(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "L1", chunk.ID)
	require.Equal(t, 1, chunk.Len())

	_, err = store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.count("metadata"), "metadata is fetched once")
}

func TestStoreLineages(t *testing.T) {
	src := chunkedSource(3)
	src.metadata.PersonToLineage["4"] = "L1"
	src.metadata.PersonToLineage["5"] = ""
	store := NewStore(src)

	ids, err := store.Lineages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L2", "L3"}, ids)
}

func TestStoreFallsBackWhenMetadataMissing(t *testing.T) {
	src := newFakeSource()
	src.dataset = &types.Document{People: []types.PersonRecord{
		{ID: "1", LineageID: "north"},
		{ID: "2", LineageID: "south", FatherID: "1"},
		{ID: "3"},
		{ID: "1", LineageID: "south", Name: "impostor"},
	}}
	store := NewStore(src)
	ctx := context.Background()

	meta, err := store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeMonolithic, store.Mode())
	assert.Equal(t, map[types.PersonID]string{"1": "north", "2": "south", "3": UnassignedLineage}, meta)

	south, err := store.Load(ctx, "south")
	require.NoError(t, err)
	require.Equal(t, 1, south.Len())
	require.Len(t, south.Diagnostics, 1)
	assert.Equal(t, types.DiagnosticDuplicateID, south.Diagnostics[0].Kind)

	_, err = store.Load(ctx, UnassignedLineage)
	require.NoError(t, err)

	assert.Equal(t, 0, src.count("south"), "monolithic mode never hits chunk endpoints")
	assert.Equal(t, 1, src.count("dataset"))
}

func TestStoreFallsBackWhenChunkMalformed(t *testing.T) {
	src := chunkedSource(2)
	src.chunkErr["L2"] = fmt.Errorf("bad json: %w", storage.ErrMalformed)
	src.dataset = &types.Document{People: []types.PersonRecord{
		{ID: "1", LineageID: "L1"},
		{ID: "2", LineageID: "L2"},
	}}
	store := NewStore(src)

	chunk, err := store.Load(context.Background(), "L2")
	require.NoError(t, err)
	assert.Equal(t, "L2", chunk.ID)
	assert.Equal(t, ModeMonolithic, store.Mode())
}

func TestStoreTransportFailureIsChunkLoadFailure(t *testing.T) {
	src := chunkedSource(1)
	boom := errors.New("connection reset")
	src.chunkErr["L1"] = boom
	store := NewStore(src)

	_, err := store.Load(context.Background(), "L1")
	var failure *storage.ChunkLoadFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "L1", failure.LineageID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ModeUnknown, store.Mode(), "transport failures never trigger fallback")
	assert.Equal(t, 0, src.count("dataset"))
}

func TestStoreFallbackFailure(t *testing.T) {
	src := newFakeSource()
	store := NewStore(src)

	_, err := store.LoadMetadata(context.Background())
	var failure *storage.ChunkLoadFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "", failure.LineageID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCacheEvictsInInsertionOrder(t *testing.T) {
	const n = 3
	src := chunkedSource(n + 1)
	cache := NewCache(NewStore(src), n)
	ctx := context.Background()

	for i := 1; i <= n; i++ {
		_, err := cache.Get(ctx, fmt.Sprintf("L%d", i))
		require.NoError(t, err)
	}
	// Heavy use of L1 must not protect it.
	for i := 0; i < 5; i++ {
		_, err := cache.Get(ctx, "L1")
		require.NoError(t, err)
	}

	var evicted []string
	cache.OnEvict(func(c *types.LineageChunk) { evicted = append(evicted, c.ID) })

	_, err := cache.Get(ctx, "L4")
	require.NoError(t, err)

	assert.Equal(t, []string{"L1"}, evicted)
	assert.False(t, cache.Contains("L1"))
	assert.Equal(t, []string{"L2", "L3", "L4"}, cache.Lineages())

	_, err = cache.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.count("L1"), "evicted chunk is fetched again")
	assert.Equal(t, []string{"L3", "L4", "L1"}, cache.Lineages())

	stats := cache.Stats()
	assert.Equal(t, uint64(5), stats.Hits)
	assert.Equal(t, uint64(5), stats.Misses)
	assert.Equal(t, uint64(2), stats.Evictions)
	assert.Equal(t, n, stats.Capacity)
}

func TestCacheFailureLeavesCacheIntact(t *testing.T) {
	src := chunkedSource(2)
	src.chunkErr["L2"] = errors.New("timeout")
	cache := NewCache(NewStore(src), 1)
	ctx := context.Background()

	_, err := cache.Get(ctx, "L1")
	require.NoError(t, err)

	_, err = cache.Get(ctx, "L2")
	require.Error(t, err)
	assert.Equal(t, []string{"L1"}, cache.Lineages())
	assert.Equal(t, uint64(1), cache.Stats().Failures)

	_, err = cache.Get(ctx, "L2")
	require.Error(t, err)
	assert.Equal(t, 2, src.count("L2"), "each call makes exactly one attempt")
}

// blockingLoader releases loads only when told to.
type blockingLoader struct {
	release chan struct{}
	calls   int32
}

func (b *blockingLoader) Load(ctx context.Context, lineageID string) (*types.LineageChunk, error) {
	atomic.AddInt32(&b.calls, 1)
	<-b.release
	return types.ValidateChunk(lineageID, nil), nil
}

func TestCacheAbandonedGetStillPopulates(t *testing.T) {
	loader := &blockingLoader{release: make(chan struct{})}
	cache := NewCache(loader, 2)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, "L1")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&loader.calls) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(loader.release)
	require.Eventually(t, func() bool { return cache.Contains("L1") }, time.Second, time.Millisecond)
}

func TestCacheSharesConcurrentLoads(t *testing.T) {
	loader := &blockingLoader{release: make(chan struct{})}
	cache := NewCache(loader, 2)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "L1")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&loader.calls) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
}

func TestSizing(t *testing.T) {
	s := DefaultSizing()
	assert.Equal(t, DeviceMobile, s.Classify(375))
	assert.Equal(t, DeviceDesktop, s.Classify(768))
	assert.Equal(t, DeviceDesktop, s.Classify(0))
	assert.Equal(t, 3, s.CapacityFor(DeviceMobile))
	assert.Equal(t, 6, s.CapacityFor(DeviceDesktop))
	assert.Less(t, s.CapacityFor(DeviceMobile), s.CapacityFor(DeviceDesktop))

	var zero Sizing
	assert.Equal(t, 6, zero.CapacityFor(DeviceDesktop))
}
