package table

import (
	"bytes"
	"io"
	"os"

	"github.com/btree-query-bench/strindex/dbms/pager"
	"github.com/cockroachdb/errors"
)

// RecordFile is the append-only store of fixed-width records. A record is
// len(fields) slots of FieldSize bytes, NUL padded; its offset is the byte
// position of its first slot.
type RecordFile struct {
	file   *os.File
	width  int
	size   int64
	fields int
}

// OpenRecordFile opens (or creates) the record file at path for records of
// the given number of fields.
func OpenRecordFile(path string, fields int) (*RecordFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "table: open %s", path), pager.ErrIO)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Mark(errors.Wrapf(err, "table: stat %s", path), pager.ErrIO)
	}
	return &RecordFile{file: f, width: fields * FieldSize, size: info.Size(), fields: fields}, nil
}

// Append writes a record at the end of the file and returns its offset.
// Values longer than FieldSize bytes are cut.
func (r *RecordFile) Append(values []string) (int64, error) {
	if len(values) != r.fields {
		return 0, errors.Wrapf(ErrInvalidValue, "got %d values for %d fields", len(values), r.fields)
	}
	buf := make([]byte, r.width)
	for i, v := range values {
		copy(buf[i*FieldSize:(i+1)*FieldSize], v)
	}
	off := r.size
	if _, err := r.file.WriteAt(buf, off); err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "table: append record at %d", off), pager.ErrIO)
	}
	r.size += int64(r.width)
	return off, nil
}

// ReadAt returns the record stored at offset.
func (r *RecordFile) ReadAt(offset int64) ([]string, error) {
	if offset < 0 || offset+int64(r.width) > r.size {
		return nil, errors.Wrapf(pager.ErrOutOfRange, "record offset %d of %d bytes", offset, r.size)
	}
	buf := make([]byte, r.width)
	if _, err := r.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, errors.Mark(errors.Wrapf(err, "table: read record at %d", offset), pager.ErrIO)
	}
	return r.decode(buf), nil
}

// Scan calls fn for every record in file order until fn returns false.
func (r *RecordFile) Scan(fn func(offset int64, values []string) bool) error {
	buf := make([]byte, r.width)
	for off := int64(0); off+int64(r.width) <= r.size; off += int64(r.width) {
		if _, err := r.file.ReadAt(buf, off); err != nil && err != io.EOF {
			return errors.Mark(errors.Wrapf(err, "table: read record at %d", off), pager.ErrIO)
		}
		if !fn(off, r.decode(buf)) {
			return nil
		}
	}
	return nil
}

// Len returns the number of records.
func (r *RecordFile) Len() int64 {
	if r.width == 0 {
		return 0
	}
	return r.size / int64(r.width)
}

// Close closes the record file.
func (r *RecordFile) Close() error {
	if err := r.file.Close(); err != nil {
		return errors.Mark(errors.Wrap(err, "table: close records"), pager.ErrIO)
	}
	return nil
}

func (r *RecordFile) decode(buf []byte) []string {
	values := make([]string, r.fields)
	for i := range values {
		slot := buf[i*FieldSize : (i+1)*FieldSize]
		if j := bytes.IndexByte(slot, 0); j >= 0 {
			slot = slot[:j]
		}
		values[i] = string(slot)
	}
	return values
}
