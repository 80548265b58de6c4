package store

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a KV backed by a bbolt file.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens or creates the database at path.
func NewBolt(path string, timeout time.Duration) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

type boltWriter struct {
	tx *bolt.Tx
}

func (w boltWriter) Put(bucket, key, value []byte) error {
	b, err := w.tx.CreateBucketIfNotExists(bucket)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (w boltWriter) Delete(bucket, key []byte) error {
	b := w.tx.Bucket(bucket)
	if b == nil {
		return nil
	}
	return b.Delete(key)
}

func (s *Bolt) Put(bucket, key, value []byte) error {
	return s.Update(func(w Writer) error {
		return w.Put(bucket, key, value)
	})
}

func (s *Bolt) Delete(bucket, key []byte) error {
	return s.Update(func(w Writer) error {
		return w.Delete(bucket, key)
	})
}

func (s *Bolt) Update(fn func(w Writer) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(boltWriter{tx: tx})
	})
}

func (s *Bolt) Get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *Bolt) List(bucket, prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			err := fn(append([]byte(nil), k...), append([]byte(nil), v...))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Bolt) Close() error {
	return s.db.Close()
}
