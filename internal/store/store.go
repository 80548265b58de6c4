// Package store is the key-value persistence collaborator for minted-coin,
// spent-serial and block records. Keys live in named buckets.
package store

import "errors"

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("store: key not found")

// Writer is the write side of an atomic update.
type Writer interface {
	Put(bucket, key, value []byte) error
	Delete(bucket, key []byte) error
}

// KV is a bucketed key-value store. Values returned by Get and passed to
// List callbacks are owned by the caller.
type KV interface {
	Writer

	Get(bucket, key []byte) ([]byte, error)

	// List calls fn for every key in bucket starting with prefix, in key
	// order. A nil prefix lists the whole bucket.
	List(bucket, prefix []byte, fn func(key, value []byte) error) error

	// Update applies every write made through w atomically, or none if fn
	// returns an error.
	Update(fn func(w Writer) error) error

	Close() error
}
