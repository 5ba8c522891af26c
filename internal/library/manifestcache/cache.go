// Package manifestcache persists per-file digests computed during
// manifest/checksum operations (spec §4.7 "manifest", "checksum") so a
// repeated MANIFEST request over an unchanged tree doesn't re-hash every
// file. It is backed by BadgerDB, grounded on the teacher's badger-backed
// metadata store.
package manifestcache

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Entry is one cached digest, invalidated by comparing Size and ModTime
// against the file's current stat result rather than trusting a TTL —
// manifests must reflect the real file, and disk content can change without
// warning.
type Entry struct {
	Digest  string    `json:"digest"`
	Size    uint64    `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Cache wraps a BadgerDB handle scoped to digest caching. One Cache is
// shared across all libraries; keys are namespaced by library id.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a BadgerDB database at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open manifest cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(libraryID, path string) []byte {
	return []byte("digest\x00" + libraryID + "\x00" + path)
}

// Get returns the cached entry for (libraryID, path), if present.
func (c *Cache) Get(libraryID, path string) (*Entry, bool) {
	var entry Entry
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(libraryID, path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false
	}

	return &entry, found
}

// Put stores or overwrites the cached entry for (libraryID, path).
func (c *Cache) Put(libraryID, path string, entry Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(libraryID, path), val)
	})
}

// Invalidate removes the cached entry for (libraryID, path), used after a
// write, rename, or delete changes the file underneath the cache.
func (c *Cache) Invalidate(libraryID, path string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(cacheKey(libraryID, path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Valid reports whether a cached entry still matches a file's current size
// and modification time.
func (e *Entry) Valid(size uint64, modTime time.Time) bool {
	return e != nil && e.Size == size && e.ModTime.Equal(modTime)
}
