package localfs

import (
	"container/list"
	"fmt"
	"os"
	"sync"
)

// fdCache is an LRU cache of open staging-file descriptors, keyed by
// absolute path. PUT_CHUNK frames for one upload arrive as a run of calls
// against the same staging file; without this, every chunk would pay an
// open() syscall it doesn't need.
type fdCache struct {
	maxSize   int
	mu        sync.Mutex
	cache     map[string]*list.Element
	lru       *list.List
	fileLocks sync.Map
}

type fdCacheEntry struct {
	path string
	file *os.File
}

func newFDCache(maxSize int) *fdCache {
	if maxSize < 1 {
		maxSize = 256
	}
	return &fdCache{
		maxSize: maxSize,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *fdCache) get(path string) (*os.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[path]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*fdCacheEntry).file, true
}

func (c *fdCache) put(path string, file *os.File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[path]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*fdCacheEntry)
		if entry.file != file {
			_ = entry.file.Close()
			entry.file = file
		}
		return nil
	}

	if c.lru.Len() >= c.maxSize {
		if err := c.evictLRU(); err != nil {
			return fmt.Errorf("evict staging fd: %w", err)
		}
	}

	elem := c.lru.PushFront(&fdCacheEntry{path: path, file: file})
	c.cache[path] = elem
	return nil
}

func (c *fdCache) remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[path]
	if !ok {
		return nil
	}
	entry := elem.Value.(*fdCacheEntry)
	err := entry.file.Close()
	c.lru.Remove(elem)
	delete(c.cache, path)
	c.fileLocks.Delete(path)
	return err
}

func (c *fdCache) evictLRU() error {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	entry := elem.Value.(*fdCacheEntry)
	if err := entry.file.Close(); err != nil {
		return fmt.Errorf("close evicted staging file %s: %w", entry.path, err)
	}
	c.lru.Remove(elem)
	delete(c.cache, entry.path)
	c.fileLocks.Delete(entry.path)
	return nil
}

func (c *fdCache) lockPath(path string) {
	v, _ := c.fileLocks.LoadOrStore(path, &sync.Mutex{})
	v.(*sync.Mutex).Lock()
}

func (c *fdCache) unlockPath(path string) {
	v, ok := c.fileLocks.Load(path)
	if !ok {
		return
	}
	v.(*sync.Mutex).Unlock()
}

// closeAll closes every cached descriptor, for backend shutdown.
func (c *fdCache) closeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for c.lru.Len() > 0 {
		elem := c.lru.Back()
		entry := elem.Value.(*fdCacheEntry)
		if err := entry.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.lru.Remove(elem)
		delete(c.cache, entry.path)
	}
	return firstErr
}
