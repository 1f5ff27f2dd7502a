package btpage

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/btree-query-bench/strindex/dbms/pager"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) Key {
	k, _ := EncodeKey(s)
	return k
}

func TestOrderFitsOnePage(t *testing.T) {
	assert.Equal(t, 21, HeaderSize)
	assert.Equal(t, 84, MaxOrder)
	assert.LessOrEqual(t, OffPtrs+(MaxOrder+1)*PointerSize, pager.PageSize)
}

func TestEncodeKeyTruncates(t *testing.T) {
	k, truncated := EncodeKey("short")
	assert.False(t, truncated)
	assert.Equal(t, "short", k.String())

	exact := strings.Repeat("x", KeySize-1)
	k, truncated = EncodeKey(exact)
	assert.False(t, truncated)
	assert.Equal(t, exact, k.String())

	long := strings.Repeat("abcdefghij", 6)
	k, truncated = EncodeKey(long)
	assert.True(t, truncated)
	assert.Equal(t, long[:KeySize-1], k.String())
	assert.Equal(t, byte(0), k[KeySize-1], "last byte is reserved for the terminator")
}

func TestStringKeepsEmbeddedNUL(t *testing.T) {
	assert.Equal(t, "a\x00b", key("a\x00b").String())
	assert.Equal(t, "a", key("a\x00").String(), "trailing NULs are padding")
	assert.NotEqual(t, key("a"), key("a\x00b"))
	assert.Equal(t, strings.Repeat("z", KeySize-1), key(strings.Repeat("z", KeySize)).String())
}

func TestKeyOrderMatchesStrings(t *testing.T) {
	assert.Negative(t, key("a").Compare(key("ab")))
	assert.Negative(t, key("ab").Compare(key("b")))
	assert.Zero(t, key("same").Compare(key("same")))
	assert.Positive(t, key("z").Compare(key("")))
}

func TestSearchRoutesTiesRight(t *testing.T) {
	n := &Node{Keys: []Key{key("b"), key("d"), key("f")}}

	assert.Equal(t, 0, n.Search(key("a")))
	assert.Equal(t, 1, n.Search(key("b")), "equal key goes to the right subtree")
	assert.Equal(t, 1, n.Search(key("c")))
	assert.Equal(t, 3, n.Search(key("f")))
	assert.Equal(t, 3, n.Search(key("g")))

	assert.Equal(t, 0, n.LowerBound(key("b")))
	assert.Equal(t, 2, n.LowerBound(key("e")))
	assert.Equal(t, 3, n.LowerBound(key("z")))
}

func TestLeafLayout(t *testing.T) {
	n := NewLeaf(7)
	n.Parent = 3
	n.NextLeaf = 9
	n.Keys = []Key{key("alpha"), key("beta")}
	n.Children = []int64{120, 4000}

	var p pager.Page
	for i := range p {
		p[i] = 0xFF // Encode must clear stale bytes
	}
	require.NoError(t, Encode(n, &p))

	assert.Equal(t, byte(1), p[OffLeaf])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(p[OffNumKeys:]))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(p[OffParent:]))
	assert.Equal(t, uint64(9), binary.LittleEndian.Uint64(p[OffNextLeaf:]))
	assert.Equal(t, "alpha", string(p[OffKeys:OffKeys+5]))
	assert.Equal(t, byte(0), p[OffKeys+5])
	assert.Equal(t, "beta", string(p[OffKeys+KeySize:OffKeys+KeySize+4]))
	assert.Equal(t, uint64(120), binary.LittleEndian.Uint64(p[OffPtrs:]))
	assert.Equal(t, uint64(4000), binary.LittleEndian.Uint64(p[OffPtrs+PointerSize:]))
	for i := OffPtrs + 2*PointerSize; i < pager.PageSize; i++ {
		require.Zero(t, p[i], "byte %d", i)
	}

	got, err := Decode(&p, 7)
	require.NoError(t, err)
	assert.Equal(t, n.Leaf, got.Leaf)
	assert.Equal(t, n.Parent, got.Parent)
	assert.Equal(t, n.NextLeaf, got.NextLeaf)
	assert.Equal(t, n.Keys, got.Keys)
	assert.Equal(t, n.Children, got.Children)
	assert.Equal(t, int64(7), got.Page)
}

func TestInternalLayout(t *testing.T) {
	n := NewInternal(0)
	n.NextLeaf = 5 // ignored for internal nodes
	n.Keys = []Key{key("m")}
	n.Children = []int64{1, 2}

	var p pager.Page
	require.NoError(t, Encode(n, &p))
	assert.Equal(t, byte(0), p[OffLeaf])
	assert.Equal(t, InvalidPage, int64(binary.LittleEndian.Uint64(p[OffParent:])))
	assert.Equal(t, InvalidPage, int64(binary.LittleEndian.Uint64(p[OffNextLeaf:])))

	got, err := Decode(&p, 0)
	require.NoError(t, err)
	assert.False(t, got.Leaf)
	assert.Equal(t, []int64{1, 2}, got.Children)
	assert.Equal(t, InvalidPage, got.NextLeaf)
}

func TestEncodeRejectsMalformedNodes(t *testing.T) {
	var p pager.Page

	over := NewLeaf(1)
	for i := 0; i <= MaxOrder; i++ {
		over.Keys = append(over.Keys, key(strings.Repeat("k", i%30)))
		over.Children = append(over.Children, int64(i))
	}
	assert.Error(t, Encode(over, &p))

	internal := NewInternal(1)
	internal.Keys = []Key{key("a")}
	internal.Children = []int64{1}
	assert.Error(t, Encode(internal, &p))
}

func TestDecodeRejectsCorruptPages(t *testing.T) {
	var p pager.Page
	binary.LittleEndian.PutUint32(p[OffNumKeys:], MaxOrder+1)
	_, err := Decode(&p, 4)
	assert.True(t, errors.Is(err, ErrCorruptPage))

	p = pager.Page{}
	p[OffLeaf] = 2
	_, err = Decode(&p, 4)
	assert.True(t, errors.Is(err, ErrCorruptPage))
}
