package table

import (
	"path/filepath"

	"github.com/btree-query-bench/strindex/dbms/index/bptree"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// IndexManager owns one B+ tree per unique field of a table. The tree for
// field f lives in <dir>/<f>.idx.
type IndexManager struct {
	dir   string
	trees map[string]*bptree.BPTree
	log   *zap.Logger
}

// OpenIndexes opens (or creates) the index file of every field in fields.
func OpenIndexes(dir string, fields []string, opts bptree.Options) (*IndexManager, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	m := &IndexManager{dir: dir, trees: make(map[string]*bptree.BPTree, len(fields)), log: opts.Logger}
	for _, f := range fields {
		o := opts
		o.Logger = opts.Logger.With(zap.String("index", f))
		t, err := bptree.Open(IndexPath(dir, f), o)
		if err != nil {
			_ = m.Close()
			return nil, errors.Wrapf(err, "table: open index %q", f)
		}
		m.trees[f] = t
	}
	return m, nil
}

// IndexPath returns the index file of field inside a table directory.
func IndexPath(dir, field string) string {
	return filepath.Join(dir, field+".idx")
}

// Exists reports whether key is present in the index of field.
func (m *IndexManager) Exists(field, key string) (bool, error) {
	_, ok, err := m.Search(field, key)
	return ok, err
}

// Insert adds key→offset to the index of field.
func (m *IndexManager) Insert(field, key string, offset int64) error {
	t, err := m.tree(field)
	if err != nil {
		return err
	}
	return t.Insert(key, offset)
}

// Search returns the record offset stored for key in the index of field.
func (m *IndexManager) Search(field, key string) (int64, bool, error) {
	t, err := m.tree(field)
	if err != nil {
		return 0, false, err
	}
	return t.Search(key)
}

// RecordAt returns the offset of the n-th record in key order of field.
func (m *IndexManager) RecordAt(field string, n int) (int64, bool, error) {
	t, err := m.tree(field)
	if err != nil {
		return 0, false, err
	}
	return t.FindRecordAtOrdinal(n)
}

// Tree returns the tree backing field, or nil.
func (m *IndexManager) Tree(field string) *bptree.BPTree {
	return m.trees[field]
}

// Close closes every index and returns the first error.
func (m *IndexManager) Close() error {
	var first error
	for f, t := range m.trees {
		if err := t.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "table: close index %q", f)
		}
		delete(m.trees, f)
	}
	return first
}

func (m *IndexManager) tree(field string) (*bptree.BPTree, error) {
	t, ok := m.trees[field]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchField, "no index for field %q", field)
	}
	return t, nil
}
