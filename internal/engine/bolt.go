package engine

import (
	"bytes"
	"log/slog"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/storage"
)

// boltFile is the database file bbolt keeps under the store root.
const boltFile = "bolt.db"

var boltBucket = []byte("keys")

// BoltStore adapts an embedded bbolt database to the engine contract.
// Every mutation runs in its own write transaction, which bbolt commits
// synchronously, so set and remove are flushed before they return.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) a bbolt-backed store at root. The
// directory is claimed with this engine's tag, so the native engine
// refuses it afterwards and vice versa.
func OpenBolt(root string) (*BoltStore, error) {
	if _, err := storage.OpenLog(root); err != nil {
		return nil, err
	}
	if err := storage.ClaimTag(root, NameBolt); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(root, boltFile), 0o600, nil)
	if err != nil {
		return nil, errdefs.Backend(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errdefs.Backend(err)
	}
	slog.Info("engine: bolt store opened", "root", root)
	return &BoltStore{db: db}, nil
}

// seek reports whether key exists in the bucket and returns its value.
// A cursor seek is used because bucket.Get cannot distinguish an absent
// key from an empty value.
func seek(b *bolt.Bucket, key []byte) (value []byte, ok bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

// Get returns the value bound to key.
func (s *BoltStore) Get(key string) (string, bool, error) {
	var value string
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v, found := seek(tx.Bucket(boltBucket), []byte(key)); found {
			value = string(v)
			ok = true
		}
		return nil
	})
	if err != nil {
		return "", false, errdefs.Backend(err)
	}
	return value, ok, nil
}

// Set binds key to value and commits before returning.
func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return errdefs.Backend(err)
	}
	return nil
}

// Remove unbinds key, failing with a not-found error when no binding
// exists. The existence check and the delete share one transaction.
func (s *BoltStore) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if _, found := seek(b, []byte(key)); !found {
			return errdefs.NotFound(key)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return err
		}
		return errdefs.Backend(err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	slog.Info("engine: bolt store closed")
	if err := s.db.Close(); err != nil {
		return errdefs.Backend(err)
	}
	return nil
}
