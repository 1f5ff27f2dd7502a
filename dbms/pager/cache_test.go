package pager

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store that counts reads and can fail writes.
type memStore struct {
	pages     []Page
	reads     int
	failWrite bool
}

func (m *memStore) Allocate() (int64, error) {
	m.pages = append(m.pages, Page{})
	return int64(len(m.pages) - 1), nil
}

func (m *memStore) Read(id int64) (*Page, error) {
	if id < 0 || id >= int64(len(m.pages)) {
		return nil, ErrOutOfRange
	}
	m.reads++
	pg := m.pages[id]
	return &pg, nil
}

func (m *memStore) Write(id int64, pg *Page) error {
	if m.failWrite {
		return errors.Mark(errors.New("disk full"), ErrIO)
	}
	if id < 0 || id >= int64(len(m.pages)) {
		return ErrOutOfRange
	}
	m.pages[id] = *pg
	return nil
}

func (m *memStore) PageCount() int64 { return int64(len(m.pages)) }
func (m *memStore) Close() error     { return nil }

func pageWith(b byte) *Page {
	var pg Page
	pg[0] = b
	return &pg
}

func TestCacheServesRepeatedReads(t *testing.T) {
	ms := &memStore{}
	c := NewCache(ms, 2)
	for i := 0; i < 3; i++ {
		_, err := c.Allocate()
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		_, err := c.Read(0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ms.reads)
	hits, misses := c.Stats()
	assert.Equal(t, uint64(4), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ms := &memStore{}
	c := NewCache(ms, 2)
	for i := 0; i < 3; i++ {
		_, err := c.Allocate()
		require.NoError(t, err)
	}

	_, _ = c.Read(0)
	_, _ = c.Read(1)
	_, _ = c.Read(0) // 1 is now the oldest
	_, _ = c.Read(2) // evicts 1
	assert.Equal(t, 2, c.lru.len())
	assert.Equal(t, 3, ms.reads)

	_, _ = c.Read(0)
	assert.Equal(t, 3, ms.reads, "page 0 should still be cached")
	_, _ = c.Read(1)
	assert.Equal(t, 4, ms.reads, "page 1 should have been evicted")
}

func TestCacheWritesThroughAndCopies(t *testing.T) {
	ms := &memStore{}
	c := NewCache(ms, 4)
	_, err := c.Allocate()
	require.NoError(t, err)

	pg := pageWith(7)
	require.NoError(t, c.Write(0, pg))
	assert.Equal(t, byte(7), ms.pages[0][0])

	// Mutating the caller's page must not leak into the cache.
	pg[0] = 9
	got, err := c.Read(0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), got[0])

	got[0] = 11
	again, err := c.Read(0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), again[0])
	assert.Equal(t, 0, ms.reads)
}

func TestCacheDropsPageOnFailedWrite(t *testing.T) {
	ms := &memStore{}
	c := NewCache(ms, 4)
	_, err := c.Allocate()
	require.NoError(t, err)
	require.NoError(t, c.Write(0, pageWith(1)))

	ms.failWrite = true
	err = c.Write(0, pageWith(2))
	assert.True(t, errors.Is(err, ErrIO))

	got, err := c.Read(0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), got[0], "cache must not hold the unwritten page")
	assert.Equal(t, 1, ms.reads)
}

func TestCacheOverPager(t *testing.T) {
	p, _ := openTemp(t)
	c := NewCache(p, 8)

	id, err := c.Allocate()
	require.NoError(t, err)
	require.NoError(t, c.Write(id, pageWith(42)))

	fromDisk, err := p.Read(id)
	require.NoError(t, err)
	assert.Equal(t, byte(42), fromDisk[0])
	assert.Equal(t, int64(1), c.PageCount())

	_, err = c.Read(5)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}
