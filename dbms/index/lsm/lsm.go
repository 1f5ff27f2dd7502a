// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so it can be benchmarked alongside, and checked
// against, the paged B+ tree.
package lsm

import (
	"encoding/binary"

	"github.com/btree-query-bench/strindex/dbms/index"
	"github.com/btree-query-bench/strindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type LSM struct {
	db *pebble.DB
}

var _ index.Index = (*LSM)(nil)

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string) (*LSM, error) {
	opts := &pebble.Options{
		MemTableSize: 16 << 20,
		// Keep 2 memtables so one can be flushed while the other is active.
		MemTableStopWritesThreshold: 4,
		// L0 compaction trigger.
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: open")
	}
	return &LSM{db: db}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

// Insert stores key→offset. Keys are truncated like the B+ tree truncates
// them so both indexes agree on which keys collide.
func (l *LSM) Insert(key string, offset int64) error {
	k := encodeKey(key)
	_, closer, err := l.db.Get(k)
	switch {
	case err == nil:
		closer.Close()
		return errors.Wrapf(index.ErrDuplicateKey, "key %q", k)
	case !errors.Is(err, pebble.ErrNotFound):
		return errors.Wrap(err, "lsm: insert")
	}
	if err := l.db.Set(k, encodeOffset(offset), pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: insert")
	}
	return nil
}

// Search returns the offset stored for key.
func (l *LSM) Search(key string) (int64, bool, error) {
	val, closer, err := l.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "lsm: search")
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, errors.Newf("lsm: unexpected value length %d", len(val))
	}
	return int64(binary.LittleEndian.Uint64(val)), true, nil
}

// Ordered calls fn for every entry in ascending key order until fn returns
// false.
func (l *LSM) Ordered(fn func(key string, offset int64) bool) error {
	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return errors.Wrap(err, "lsm: iterate")
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		// Pebble reuses the buffers on Next().
		v := iter.Value()
		if len(v) != 8 {
			_ = iter.Close()
			return errors.Newf("lsm: unexpected value length %d", len(v))
		}
		if !fn(string(iter.Key()), int64(binary.LittleEndian.Uint64(v))) {
			break
		}
	}
	return iter.Close()
}

// ─── Encoding ─────────────────────────────────────────────────────────────────

// encodeKey keeps the bytes the B+ tree would keep. Pebble orders keys
// bytewise, which matches the tree's NUL-padded ordering.
func encodeKey(key string) []byte {
	k, _ := btpage.EncodeKey(key)
	return []byte(k.String())
}

func encodeOffset(off int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(off))
	return b
}
