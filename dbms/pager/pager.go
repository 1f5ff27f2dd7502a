// Package pager stores fixed-size pages in a single file.
//
// Page n lives at byte offset n*PageSize. There is no header page: the page
// count is derived from the file size when the file is opened and tracked in
// memory afterwards. Pages are only ever appended, never reclaimed.
package pager

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

const PageSize = 4096 // 4 KB — matches OS page size

// Page is a raw 4 KB block read from or written to disk.
type Page [PageSize]byte

var (
	// ErrIO marks failures of the underlying file (short reads, failed
	// writes, permissions).
	ErrIO = errors.New("pager: i/o failure")
	// ErrOutOfRange marks a request for a page that was never allocated.
	ErrOutOfRange = errors.New("pager: page out of range")
)

// Store is the page-level contract the index is built on.
type Store interface {
	Allocate() (int64, error)
	Read(id int64) (*Page, error)
	Write(id int64, pg *Page) error
	PageCount() int64
	Close() error
}

// Pager is a Store backed by a file.
type Pager struct {
	file      *os.File
	path      string
	pageCount int64 // total number of pages ever allocated
}

var _ Store = (*Pager)(nil)

// Open opens (or creates) a pager backed by the given file.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ioErr(err, "pager: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ioErr(err, "pager: stat %s", path)
	}
	return &Pager{
		file:      f,
		path:      path,
		pageCount: (info.Size() + PageSize - 1) / PageSize,
	}, nil
}

// Allocate appends a zero-filled page and returns its page number.
func (p *Pager) Allocate() (int64, error) {
	id := p.pageCount
	var blank Page
	if err := p.writePageToDisk(id, &blank); err != nil {
		return 0, err
	}
	p.pageCount++
	return id, nil
}

// Read returns a fresh copy of the page with the given number.
func (p *Pager) Read(id int64) (*Page, error) {
	if err := p.check(id); err != nil {
		return nil, err
	}
	pg := new(Page)
	n, err := p.file.ReadAt(pg[:], p.offset(id))
	if n == PageSize {
		// ReadAt may report io.EOF together with a full read at end of file.
		return pg, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, ioErr(err, "pager: read page %d (%d of %d bytes)", id, n, PageSize)
}

// Write overwrites the page with the given number.
func (p *Pager) Write(id int64, pg *Page) error {
	if err := p.check(id); err != nil {
		return err
	}
	return p.writePageToDisk(id, pg)
}

// PageCount returns the total number of allocated pages.
func (p *Pager) PageCount() int64 {
	return p.pageCount
}

// Path returns the file backing the pager.
func (p *Pager) Path() string {
	return p.path
}

// Close flushes and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		return ioErr(err, "pager: sync %s", p.path)
	}
	if err := p.file.Close(); err != nil {
		return ioErr(err, "pager: close %s", p.path)
	}
	return nil
}

// --- internal helpers ---

func (p *Pager) offset(id int64) int64 {
	return id * PageSize
}

func (p *Pager) check(id int64) error {
	if id < 0 || id >= p.pageCount {
		return errors.Wrapf(ErrOutOfRange, "page %d of %d", id, p.pageCount)
	}
	return nil
}

func (p *Pager) writePageToDisk(id int64, pg *Page) error {
	if _, err := p.file.WriteAt(pg[:], p.offset(id)); err != nil {
		return ioErr(err, "pager: write page %d", id)
	}
	return nil
}

func ioErr(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}
