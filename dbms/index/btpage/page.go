// Package btpage provides the on-disk node layout of the B+ tree.
//
// Page layout (little-endian):
//
//	[0]      1 byte    leaf flag (1 = leaf, 0 = internal)
//	[1-4]    4 bytes   key count
//	[5-12]   8 bytes   parent page number (-1 for the root)
//	[13-20]  8 bytes   next leaf page number (-1 if last, always -1 for internal)
//	[21+]    MaxOrder key slots of KeySize bytes, NUL padded
//	         then MaxOrder+1 pointer slots of 8 bytes
//	         ...zero padding to PageSize
//
// In a leaf, pointer slot i holds the record offset of key i. In an internal
// node, pointer slot i holds the page number of the subtree with keys below
// key i; slot keyCount holds the subtree with keys at or above the last key.
package btpage

import (
	"bytes"
	"encoding/binary"

	"github.com/btree-query-bench/strindex/dbms/pager"
	"github.com/cockroachdb/errors"
)

const (
	KeySize     = 40
	PointerSize = 8
	HeaderSize  = 1 + 4 + 8 + 8

	// MaxOrder is the number of key slots that fit in one page.
	MaxOrder = (pager.PageSize - HeaderSize) / (KeySize + PointerSize)

	// InvalidPage terminates the leaf chain and marks the root's parent.
	InvalidPage = int64(-1)

	OffLeaf     = 0
	OffNumKeys  = 1
	OffParent   = 5
	OffNextLeaf = 13
	OffKeys     = HeaderSize
	OffPtrs     = OffKeys + MaxOrder*KeySize
)

// ErrCorruptPage is returned when a page decodes to an impossible node.
var ErrCorruptPage = errors.New("btpage: corrupt page")

// Key is a fixed-width, NUL-padded key slot.
type Key [KeySize]byte

// EncodeKey converts s to a key slot. Keys longer than KeySize-1 bytes are
// cut to that length so the slot always carries a terminator; truncated
// reports whether that happened.
func EncodeKey(s string) (k Key, truncated bool) {
	if len(s) > KeySize-1 {
		s = s[:KeySize-1]
		truncated = true
	}
	copy(k[:], s)
	return k, truncated
}

// String returns the key without its NUL padding. Embedded NULs are kept,
// so distinct keys never render the same.
func (k Key) String() string {
	return string(bytes.TrimRight(k[:], "\x00"))
}

// Compare orders keys bytewise, which matches comparing their strings.
func (k Key) Compare(o Key) int {
	return bytes.Compare(k[:], o[:])
}

// Node is the decoded content of one page. Keys and Children may
// temporarily hold one entry too many while a split is being prepared;
// Encode refuses such nodes.
type Node struct {
	Leaf     bool
	Parent   int64
	NextLeaf int64
	Keys     []Key
	Children []int64 // record offsets in a leaf, page numbers otherwise

	// Page is the page number the node was read from. It is not stored.
	Page int64
}

// NewLeaf returns an empty leaf for page id.
func NewLeaf(id int64) *Node {
	return &Node{Leaf: true, Parent: InvalidPage, NextLeaf: InvalidPage, Page: id}
}

// NewInternal returns an internal node for page id with no keys.
func NewInternal(id int64) *Node {
	return &Node{Parent: InvalidPage, NextLeaf: InvalidPage, Page: id}
}

// NumKeys returns the number of populated key slots.
func (n *Node) NumKeys() int { return len(n.Keys) }

// Search returns the number of keys <= k. For an internal node this is the
// child slot to descend into.
func (n *Node) Search(k Key) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		m := (lo + hi) / 2
		if n.Keys[m].Compare(k) <= 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// LowerBound returns the number of keys < k.
func (n *Node) LowerBound(k Key) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		m := (lo + hi) / 2
		if n.Keys[m].Compare(k) < 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// Encode writes n into p, zeroing every byte it does not set.
func Encode(n *Node, p *pager.Page) error {
	nk := len(n.Keys)
	if nk > MaxOrder {
		return errors.Newf("btpage: page %d: %d keys exceed capacity %d", n.Page, nk, MaxOrder)
	}
	want := nk
	if !n.Leaf {
		want = nk + 1
		if nk == 0 && len(n.Children) == 0 {
			want = 0
		}
	}
	if len(n.Children) != want {
		return errors.Newf("btpage: page %d: %d children for %d keys", n.Page, len(n.Children), nk)
	}

	*p = pager.Page{}
	if n.Leaf {
		p[OffLeaf] = 1
	}
	binary.LittleEndian.PutUint32(p[OffNumKeys:], uint32(nk))
	binary.LittleEndian.PutUint64(p[OffParent:], uint64(n.Parent))
	next := n.NextLeaf
	if !n.Leaf {
		next = InvalidPage
	}
	binary.LittleEndian.PutUint64(p[OffNextLeaf:], uint64(next))
	for i := range n.Keys {
		copy(p[OffKeys+i*KeySize:], n.Keys[i][:])
	}
	for i, c := range n.Children {
		binary.LittleEndian.PutUint64(p[OffPtrs+i*PointerSize:], uint64(c))
	}
	return nil
}

// Decode reads the node stored in p. id is the page number p was read from.
func Decode(p *pager.Page, id int64) (*Node, error) {
	nk := int(int32(binary.LittleEndian.Uint32(p[OffNumKeys:])))
	if nk < 0 || nk > MaxOrder || p[OffLeaf] > 1 {
		return nil, errors.Wrapf(ErrCorruptPage, "page %d: leaf flag %d, %d keys", id, p[OffLeaf], nk)
	}
	n := &Node{
		Leaf:     p[OffLeaf] == 1,
		Parent:   int64(binary.LittleEndian.Uint64(p[OffParent:])),
		NextLeaf: int64(binary.LittleEndian.Uint64(p[OffNextLeaf:])),
		Keys:     make([]Key, nk, nk+1),
		Page:     id,
	}
	for i := range n.Keys {
		copy(n.Keys[i][:], p[OffKeys+i*KeySize:])
	}
	nc := nk
	if !n.Leaf && nk > 0 {
		nc = nk + 1
	}
	n.Children = make([]int64, nc, nc+1)
	for i := range n.Children {
		n.Children[i] = int64(binary.LittleEndian.Uint64(p[OffPtrs+i*PointerSize:]))
	}
	return n, nil
}
