// pkg/blockio/cache.go
package blockio

import "container/list"

const defaultCacheBlocks = 1000

// cacheEntry holds a cached block image and its LRU list element.
type cacheEntry struct {
	data    []byte
	element *list.Element
}

// CacheStore wraps another BlockStore with an LRU cache of block images.
// Writes go through to the backing store immediately; the cache only saves
// repeat reads. Deallocation notifications drop the cached copy so a block
// re-entering the tree is always re-read from the backing store.
type CacheStore struct {
	inner     BlockStore
	cacheSize int
	cache     map[uint32]*cacheEntry
	lru       *list.List // front = most recently used
}

// NewCacheStore wraps inner with a cache of at most cacheSize blocks.
// cacheSize <= 0 selects the default.
func NewCacheStore(inner BlockStore, cacheSize int) *CacheStore {
	if cacheSize <= 0 {
		cacheSize = defaultCacheBlocks
	}
	return &CacheStore{
		inner:     inner,
		cacheSize: cacheSize,
		cache:     make(map[uint32]*cacheEntry),
		lru:       list.New(),
	}
}

// BlockSize returns the backing store's block size.
func (c *CacheStore) BlockSize() int {
	return c.inner.BlockSize()
}

// NumBlocks returns the backing store's block count.
func (c *CacheStore) NumBlocks() int {
	return c.inner.NumBlocks()
}

// ReadBlock serves block n from the cache when present, otherwise reads
// through and caches the result.
func (c *CacheStore) ReadBlock(n uint32, buf []byte) error {
	if entry, ok := c.cache[n]; ok {
		if len(buf) != len(entry.data) {
			return ErrBadLength
		}
		copy(buf, entry.data)
		c.lru.MoveToFront(entry.element)
		return nil
	}

	if err := c.inner.ReadBlock(n, buf); err != nil {
		return err
	}
	c.install(n, buf)
	return nil
}

// WriteBlock writes through to the backing store and refreshes the cached
// copy.
func (c *CacheStore) WriteBlock(n uint32, buf []byte) error {
	if err := c.inner.WriteBlock(n, buf); err != nil {
		return err
	}

	if entry, ok := c.cache[n]; ok {
		copy(entry.data, buf)
		c.lru.MoveToFront(entry.element)
		return nil
	}
	c.install(n, buf)
	return nil
}

// install caches a copy of buf for block n, evicting from the LRU tail if
// the cache is full.
func (c *CacheStore) install(n uint32, buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)
	elem := c.lru.PushFront(n)
	c.cache[n] = &cacheEntry{data: data, element: elem}

	for len(c.cache) > c.cacheSize {
		tail := c.lru.Back()
		if tail == nil {
			break
		}
		victim := tail.Value.(uint32)
		c.lru.Remove(tail)
		delete(c.cache, victim)
	}
}

// drop removes block n from the cache if present.
func (c *CacheStore) drop(n uint32) {
	if entry, ok := c.cache[n]; ok {
		c.lru.Remove(entry.element)
		delete(c.cache, n)
	}
}

// NotifyAllocateBlock forwards the notification to the backing store.
func (c *CacheStore) NotifyAllocateBlock(n uint32) {
	c.inner.NotifyAllocateBlock(n)
}

// NotifyDeallocateBlock drops the cached copy and forwards the
// notification.
func (c *CacheStore) NotifyDeallocateBlock(n uint32) {
	c.drop(n)
	c.inner.NotifyDeallocateBlock(n)
}

// Cached returns the number of blocks currently held in the cache.
func (c *CacheStore) Cached() int {
	return len(c.cache)
}

// Sync flushes the backing store.
func (c *CacheStore) Sync() error {
	return c.inner.Sync()
}

// Close drops the cache and closes the backing store.
func (c *CacheStore) Close() error {
	c.cache = make(map[uint32]*cacheEntry)
	c.lru = list.New()
	return c.inner.Close()
}
