// Package index defines the contract shared by the index implementations.
package index

import "github.com/cockroachdb/errors"

// ErrDuplicateKey is returned by Insert when the key is already indexed.
var ErrDuplicateKey = errors.New("index: duplicate key")

// Index maps unique string keys to record offsets.
type Index interface {
	// Insert adds key→offset. An existing key is rejected with
	// ErrDuplicateKey and the index is left unchanged.
	Insert(key string, offset int64) error
	// Search returns the offset stored for key. A missing key is not an
	// error: ok is false.
	Search(key string) (offset int64, ok bool, err error)
	Close() error
}
