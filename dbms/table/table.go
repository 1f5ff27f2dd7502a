// Package table is the flat-file table layer on top of the B+ tree indexes.
//
// A table is a directory under the database root:
//
//	<root>/<name>/meta.bson   schema
//	<root>/<name>/data.tbl    fixed-width records
//	<root>/<name>/<field>.idx one B+ tree per unique field
package table

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btree-query-bench/strindex/dbms/index"
	"github.com/btree-query-bench/strindex/dbms/index/bptree"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	metaFile = "meta.bson"
	dataFile = "data.tbl"
)

var (
	ErrTableExists  = errors.New("table: already exists")
	ErrNoSuchTable  = errors.New("table: no such table")
	ErrDuplicateKey = index.ErrDuplicateKey
)

// Options locates the database and configures the indexes it opens.
type Options struct {
	Root       string // directory holding one subdirectory per table
	CachePages int    // per index, see bptree.Options
	Logger     *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) dir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Newf("table: invalid table name %q", name)
	}
	return filepath.Join(o.Root, name), nil
}

// Table is an open table session. It is not safe for concurrent use.
type Table struct {
	name    string
	dir     string
	schema  *Schema
	records *RecordFile
	indexes *IndexManager
	log     *zap.Logger
}

// Create makes a new table directory with an empty record file and one empty
// index per unique field, and returns it open.
func Create(opts Options, name string, s *Schema) (*Table, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	dir, err := opts.dir(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.Wrapf(ErrTableExists, "%q", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "table: create %s", dir)
	}
	t, err := create(opts, name, dir, s)
	if err != nil {
		// Leave no half-made table behind.
		_ = os.RemoveAll(dir)
		return nil, err
	}
	t.log.Info("table created", zap.String("schema", s.String()), zap.Strings("unique", s.UniqueKeys))
	return t, nil
}

func create(opts Options, name, dir string, s *Schema) (*Table, error) {
	if err := saveSchema(filepath.Join(dir, metaFile), s); err != nil {
		return nil, err
	}
	return open(opts, name, dir, s)
}

// Open opens an existing table.
func Open(opts Options, name string) (*Table, error) {
	dir, err := opts.dir(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNoSuchTable, "%q", name)
		}
		return nil, errors.Wrapf(err, "table: stat %s", dir)
	}
	s, err := loadSchema(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	t, err := open(opts, name, dir, s)
	if err != nil {
		return nil, err
	}
	t.log.Info("table opened", zap.Int64("records", t.records.Len()))
	return t, nil
}

func open(opts Options, name, dir string, s *Schema) (*Table, error) {
	log := opts.logger().With(zap.String("table", name))
	records, err := OpenRecordFile(filepath.Join(dir, dataFile), len(s.Fields))
	if err != nil {
		return nil, err
	}
	indexes, err := OpenIndexes(dir, s.UniqueKeys, bptree.Options{CachePages: opts.CachePages, Logger: log})
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	return &Table{name: name, dir: dir, schema: s, records: records, indexes: indexes, log: log}, nil
}

// Drop removes a table and all its files.
func Drop(opts Options, name string) error {
	dir, err := opts.dir(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.Wrapf(ErrNoSuchTable, "%q", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "table: drop %s", dir)
	}
	opts.logger().Info("table dropped", zap.String("table", name))
	return nil
}

// List returns the names of the tables under the root in lexical order.
func List(opts Options) ([]string, error) {
	entries, err := os.ReadDir(opts.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "table: list %s", opts.Root)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(opts.Root, e.Name(), metaFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the table schema.
func (t *Table) Schema() *Schema { return t.schema }

// Len returns the number of records.
func (t *Table) Len() int64 { return t.records.Len() }

// Indexes exposes the table's index manager.
func (t *Table) Indexes() *IndexManager { return t.indexes }

// AddRecord validates values, rejects the record if any unique field already
// holds its value, appends the record, and indexes every unique field. It
// returns the record offset.
func (t *Table) AddRecord(values []string) (int64, error) {
	if err := t.schema.CheckValues(values); err != nil {
		return 0, err
	}
	for i, f := range t.schema.Fields {
		if !t.schema.IsUnique(f.Name) {
			continue
		}
		ok, err := t.indexes.Exists(f.Name, values[i])
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, errors.Wrapf(ErrDuplicateKey, "field %q value %q", f.Name, values[i])
		}
	}

	off, err := t.records.Append(values)
	if err != nil {
		return 0, err
	}
	for i, f := range t.schema.Fields {
		if !t.schema.IsUnique(f.Name) {
			continue
		}
		if err := t.indexes.Insert(f.Name, values[i], off); err != nil {
			return 0, errors.Wrapf(err, "table: index field %q", f.Name)
		}
	}
	t.log.Debug("record added", zap.Int64("offset", off))
	return off, nil
}

// Find returns the records whose field equals value. Unique fields are
// answered from their index; other fields are scanned.
func (t *Table) Find(field, value string) ([][]string, error) {
	idx, err := t.schema.FieldIndex(field)
	if err != nil {
		return nil, err
	}
	if t.schema.IsUnique(field) {
		off, ok, err := t.indexes.Search(field, value)
		if err != nil || !ok {
			return nil, err
		}
		rec, err := t.records.ReadAt(off)
		if err != nil {
			return nil, err
		}
		return [][]string{rec}, nil
	}

	var out [][]string
	err = t.records.Scan(func(_ int64, values []string) bool {
		if values[idx] == value {
			out = append(out, values)
		}
		return true
	})
	return out, err
}

// RecordAt returns the n-th record (zero-based) in ascending order of the
// unique field.
func (t *Table) RecordAt(field string, n int) ([]string, bool, error) {
	if _, err := t.schema.FieldIndex(field); err != nil {
		return nil, false, err
	}
	off, ok, err := t.indexes.RecordAt(field, n)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := t.records.ReadAt(off)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Close closes the record file and every index.
func (t *Table) Close() error {
	ierr := t.indexes.Close()
	rerr := t.records.Close()
	if ierr != nil {
		return ierr
	}
	return rerr
}
