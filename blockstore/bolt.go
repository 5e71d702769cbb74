package blockstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

var blocksBucket = []byte("blocks")

// BoltStore is a Store backed by a single bbolt database file, the
// teacher's embedded-KV choice for anything that needs to survive a
// process restart without standing up an external service.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens (creating if absent) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blockstore: initializing bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetBlock(ctx context.Context, h link.ContentHash) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blocksBucket).Get(h.Bytes())
		if v == nil {
			return ErrBlockNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) HasBlock(ctx context.Context, h link.ContentHash) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(blocksBucket).Get(h.Bytes()) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) PutBlock(ctx context.Context, codec link.Codec, bytes []byte) (link.ContentHash, error) {
	h, err := link.Sum(codec, bytes)
	if err != nil {
		return link.ContentHash{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		if b.Get(h.Bytes()) != nil {
			return nil // content-addressed: already present, nothing to do
		}
		return b.Put(h.Bytes(), bytes)
	})
	if err != nil {
		return link.ContentHash{}, fmt.Errorf("blockstore: writing block: %w", err)
	}
	return h, nil
}

func (s *BoltStore) PutLinks(ctx context.Context, roots []link.ContentHash, blocks map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		for key, data := range blocks {
			if b.Get([]byte(key)) != nil {
				continue
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Flush is a no-op: bbolt commits each Update transaction durably already.
func (s *BoltStore) Flush(ctx context.Context) error { return nil }
