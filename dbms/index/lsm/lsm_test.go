package lsm

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btree-query-bench/strindex/dbms/index"
	"github.com/btree-query-bench/strindex/dbms/index/bptree"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *LSM {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestInsertSearch(t *testing.T) {
	l := setup(t)
	require.NoError(t, l.Insert("alice", 0))
	require.NoError(t, l.Insert("bob", 80))

	off, ok, err := l.Search("bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(80), off)

	_, ok, err = l.Search("carol")
	require.NoError(t, err)
	assert.False(t, ok)

	err = l.Insert("alice", 160)
	assert.True(t, errors.Is(err, index.ErrDuplicateKey))
	off, _, _ = l.Search("alice")
	assert.Equal(t, int64(0), off)
}

func TestTruncationMatchesTree(t *testing.T) {
	l := setup(t)
	long := strings.Repeat("k", 64)
	require.NoError(t, l.Insert(long, 7))

	off, ok, err := l.Search(long[:39])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), off)
}

func TestEmbeddedNULCollidesLikeTree(t *testing.T) {
	l := setup(t)
	tree, err := bptree.Open(filepath.Join(t.TempDir(), "nul.idx"), bptree.Options{Order: 3})
	require.NoError(t, err)
	defer tree.Close()

	for _, idx := range []index.Index{l, tree} {
		require.NoError(t, idx.Insert("a", 1))
		require.NoError(t, idx.Insert("a\x00b", 2))
		// Trailing NULs are padding in both.
		assert.True(t, errors.Is(idx.Insert("a\x00", 3), index.ErrDuplicateKey))

		off, ok, err := idx.Search("a\x00b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(2), off)
	}
}

// The tree's leaf chain and Pebble's iterator must agree on key order.
func TestOrderAgreesWithTree(t *testing.T) {
	l := setup(t)
	tree, err := bptree.Open(filepath.Join(t.TempDir(), "tree.idx"), bptree.Options{Order: 5})
	require.NoError(t, err)
	defer tree.Close()

	const n = 500
	rnd := rand.New(rand.NewSource(11))
	idxs := []index.Index{l, tree}
	for _, i := range rnd.Perm(n) {
		k := fmt.Sprintf("%x-%d", rnd.Int63(), i)
		for _, idx := range idxs {
			require.NoError(t, idx.Insert(k, int64(i)))
		}
	}

	pos := 0
	require.NoError(t, l.Ordered(func(key string, offset int64) bool {
		got, ok, err := tree.FindRecordAtOrdinal(pos)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, offset, got, "ordinal %d (%s)", pos, key)

		treeOff, ok, err := tree.Search(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, offset, treeOff)
		pos++
		return true
	}))
	assert.Equal(t, n, pos)
}
