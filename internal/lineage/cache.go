package lineage

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/scrypster/kinship/pkg/types"
)

// Loader produces lineage chunks. *Store implements it.
type Loader interface {
	Load(ctx context.Context, lineageID string) (*types.LineageChunk, error)
}

// CacheStats contains counters describing cache behaviour.
type CacheStats struct {
	Capacity  int      `json:"capacity"`
	Resident  []string `json:"resident"`
	Hits      uint64   `json:"hits"`
	Misses    uint64   `json:"misses"`
	Loads     uint64   `json:"loads"`
	Evictions uint64   `json:"evictions"`
	Failures  uint64   `json:"failures"`
}

// ChunkListener is notified when a chunk enters or leaves the cache.
type ChunkListener func(chunk *types.LineageChunk)

// Cache keeps at most Capacity chunks resident.
//
// Eviction is strictly insertion-order FIFO: reading a resident chunk does not
// move it, so a chunk inserted first is evicted first however often it is
// used. Concurrent misses for the same lineage share one load. A load runs
// detached from the requesting context, so an abandoned query still leaves
// the chunk cached for the next one. Failed loads leave the cache unchanged.
type Cache struct {
	loader   Loader
	capacity int
	group    singleflight.Group

	mu     sync.Mutex
	chunks map[string]*types.LineageChunk
	order  []string
	stats  CacheStats

	onLoad  []ChunkListener
	onEvict []ChunkListener
}

// NewCache creates a cache holding at most capacity chunks (minimum 1).
func NewCache(loader Loader, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		loader:   loader,
		capacity: capacity,
		chunks:   make(map[string]*types.LineageChunk, capacity),
		order:    make([]string, 0, capacity),
	}
}

// OnLoad registers a listener called after a chunk is inserted.
func (c *Cache) OnLoad(fn ChunkListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoad = append(c.onLoad, fn)
}

// OnEvict registers a listener called after a chunk is evicted.
func (c *Cache) OnEvict(fn ChunkListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = append(c.onEvict, fn)
}

// Capacity returns the maximum number of resident chunks.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Get returns the chunk for lineageID, loading it on a miss.
func (c *Cache) Get(ctx context.Context, lineageID string) (*types.LineageChunk, error) {
	c.mu.Lock()
	if chunk, ok := c.chunks[lineageID]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return chunk, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(lineageID, func() (interface{}, error) {
		chunk, err := c.loader.Load(detached, lineageID)
		if err != nil {
			c.mu.Lock()
			c.stats.Failures++
			c.mu.Unlock()
			return nil, err
		}
		return c.insert(chunk), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.LineageChunk), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns a resident chunk without loading.
func (c *Cache) Peek(lineageID string) (*types.LineageChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk, ok := c.chunks[lineageID]
	return chunk, ok
}

// Contains reports whether lineageID is resident.
func (c *Cache) Contains(lineageID string) bool {
	_, ok := c.Peek(lineageID)
	return ok
}

// Lineages returns the resident lineage ids, oldest insertion first.
func (c *Cache) Lineages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of resident chunks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Capacity = c.capacity
	s.Resident = append([]string(nil), c.order...)
	return s
}

// insert adds chunk, evicting the earliest inserted chunk when full.
// Listeners run after the lock is released.
func (c *Cache) insert(chunk *types.LineageChunk) *types.LineageChunk {
	c.mu.Lock()
	if existing, ok := c.chunks[chunk.ID]; ok {
		c.mu.Unlock()
		return existing
	}

	var evicted []*types.LineageChunk
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		evicted = append(evicted, c.chunks[oldest])
		delete(c.chunks, oldest)
		c.stats.Evictions++
	}
	c.chunks[chunk.ID] = chunk
	c.order = append(c.order, chunk.ID)
	c.stats.Loads++

	onEvict := append([]ChunkListener(nil), c.onEvict...)
	onLoad := append([]ChunkListener(nil), c.onLoad...)
	c.mu.Unlock()

	for _, old := range evicted {
		log.Printf("lineage: evicted %s (%d people) to admit %s", old.ID, old.Len(), chunk.ID)
		for _, fn := range onEvict {
			fn(old)
		}
	}
	for _, fn := range onLoad {
		fn(chunk)
	}
	return chunk
}
