// Package localcache is a bbolt-backed local mirror of the index package's
// catalog. index.Rebuild repopulates it from the authoritative index, and
// is the only way entries are ever refreshed; the build-index operation is
// its only writer. Catalog queries (list-backups, status, latest-backup)
// do not read it; they query the index in storage directly. Keyed by
// backup name and fqdn.
package localcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("backup_index_entries")

// Entry mirrors index.Entry in a JSON-serializable, bolt-storable shape.
type Entry struct {
	Name     string     `json:"name"`
	FQDN     string     `json:"fqdn"`
	Started  *time.Time `json:"started,omitempty"`
	Finished *time.Time `json:"finished,omitempty"`
}

// Cache is a local bbolt database holding a copy of the index entries.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cache database under dataDir.
func Open(dataDir string) (*Cache, error) {
	dbPath := filepath.Join(dataDir, "medusa-index-cache.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index cache bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

func entryKey(name, fqdn string) []byte { return []byte(name + "\x00" + fqdn) }

// Put upserts one entry.
func (c *Cache) Put(e Entry) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(entryKey(e.Name, e.FQDN), data)
	})
}

// Get returns one entry, and false if it is not cached.
func (c *Cache) Get(name, fqdn string) (Entry, bool, error) {
	var e Entry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		data := b.Get(entryKey(name, fqdn))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	return e, found, err
}

// ListByName returns every cached entry for a backup name.
func (c *Cache) ListByName(name string) ([]Entry, error) {
	var entries []Entry
	prefix := []byte(name + "\x00")
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		cur := b.Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// ListNames returns every distinct backup name with at least one cached entry.
func (c *Cache) ListNames() ([]string, error) {
	seen := map[string]bool{}
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if !seen[e.Name] {
				seen[e.Name] = true
				names = append(names, e.Name)
			}
			return nil
		})
	})
	return names, err
}

// Clear removes every cached entry, used before a full Rebuild.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
