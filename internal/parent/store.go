package parent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/zeebo/xxh3"
)

// SpillThreshold is the default entry count above which the resolver spills
// ParentMaps to disk instead of keeping them in memory (spec §4.9, suggested
// 50M entries).
const SpillThreshold = 50_000_000

// Store is the read interface attach() needs; it doesn't know or care
// whether lookups are served from memory or from a disk-spilled bbolt
// database (spec's "Ownership of ParentMaps" design note).
type Store interface {
	Get(fullname string) (Payload, bool)
	Close() error
}

// memStore is the in-memory ParentMaps backing store, used while the
// collected set stays under SpillThreshold.
type memStore struct {
	entries map[string]Payload
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *memStore {
	return &memStore{entries: make(map[string]Payload)}
}

func (s *memStore) Put(fullname string, p Payload) {
	s.entries[fullname] = p
}

func (s *memStore) Get(fullname string) (Payload, bool) {
	p, ok := s.entries[fullname]
	return p, ok
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Len() int { return len(s.entries) }

// boltStore spills ParentMaps to a bbolt database at the caller-supplied
// ResolveOptions.SpillPath once the number of resolved entries exceeds the
// spill threshold (spec §4.9). Keys are xxh3-hashed into a fixed
// number of buckets (sharding, not deduplication) to keep individual bbolt
// buckets from growing unbounded; the fullname itself remains the stored
// key within its shard bucket so Get needs no secondary lookup.
type boltStore struct {
	db      *bolt.DB
	buckets int
}

const boltBucketCount = 64

// OpenBoltStore opens (or creates) a bbolt database at path for spill-to-disk
// ParentMaps storage.
func OpenBoltStore(path string) (*boltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("parent: spill dir %s: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("parent: open spill db %s: %w", path, err)
	}

	s := &boltStore{db: db, buckets: boltBucketCount}
	err = db.Update(func(tx *bolt.Tx) error {
		for i := 0; i < s.buckets; i++ {
			if _, err := tx.CreateBucketIfNotExists(bucketName(i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parent: init spill buckets: %w", err)
	}
	return s, nil
}

func bucketName(i int) []byte {
	return []byte(fmt.Sprintf("shard-%02d", i))
}

func (s *boltStore) shardFor(fullname string) int {
	return int(xxh3.HashString(fullname) % uint64(s.buckets))
}

// Put stores a single entry. Callers building a large store should batch via
// PutBatch instead, to avoid one fsync per record.
func (s *boltStore) Put(fullname string, p Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("parent: encode payload for %s: %w", fullname, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(s.shardFor(fullname)))
		return bucket.Put([]byte(fullname), b)
	})
}

// PutBatch writes many entries in a single bbolt write transaction.
func (s *boltStore) PutBatch(entries map[string]Payload) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for fullname, p := range entries {
			b, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("parent: encode payload for %s: %w", fullname, err)
			}
			bucket := tx.Bucket(bucketName(s.shardFor(fullname)))
			if err := bucket.Put([]byte(fullname), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Get(fullname string) (Payload, bool) {
	var p Payload
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(s.shardFor(fullname)))
		v := bucket.Get([]byte(fullname))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		found = true
		return nil
	})
	return p, found
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
