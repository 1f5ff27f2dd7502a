package bptree

import (
	"github.com/btree-query-bench/strindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
)

// ErrInvariant is returned by Verify when the tree is malformed.
var ErrInvariant = errors.New("bptree: invariant violated")

// Stats summarizes the shape of a tree.
type Stats struct {
	Depth    int // number of levels, 0 for an empty tree
	Pages    int64
	Internal int
	Leaves   int
	Keys     int
}

// bound is an optional key limit during verification.
type bound struct {
	key btpage.Key
	set bool
}

// Verify walks the whole tree and checks its structural invariants: node
// capacity and minimum occupancy, ascending keys bounded by the parent's
// separators, child counts, parent pointers, uniform leaf depth, and a leaf
// chain that visits every leaf once in key order.
func (t *BPTree) Verify() (Stats, error) {
	st := Stats{Pages: t.st.PageCount()}
	if st.Pages == 0 {
		return st, nil
	}
	v := &verifier{t: t, leafDepth: -1, seen: make(map[int64]bool)}
	if err := v.node(rootPage, btpage.InvalidPage, 1, bound{}, bound{}); err != nil {
		return st, err
	}
	st.Depth = v.leafDepth
	st.Internal = v.internal
	st.Leaves = len(v.leaves)
	st.Keys = v.keys

	i := 0
	var (
		prev    btpage.Key
		started bool
	)
	err := t.walkLeaves(func(leaf *btpage.Node) bool {
		if i >= len(v.leaves) || v.leaves[i] != leaf.Page {
			v.err = errors.Wrapf(ErrInvariant, "leaf chain position %d is page %d", i, leaf.Page)
			return false
		}
		for _, k := range leaf.Keys {
			if started && k.Compare(prev) <= 0 {
				v.err = errors.Wrapf(ErrInvariant, "leaf chain not ascending at %q on page %d", k.String(), leaf.Page)
				return false
			}
			prev, started = k, true
		}
		i++
		return true
	})
	if err != nil {
		return st, err
	}
	if v.err != nil {
		return st, v.err
	}
	if i != len(v.leaves) {
		return st, errors.Wrapf(ErrInvariant, "leaf chain visits %d of %d leaves", i, len(v.leaves))
	}
	return st, nil
}

type verifier struct {
	t         *BPTree
	leafDepth int
	internal  int
	keys      int
	leaves    []int64
	seen      map[int64]bool
	err       error
}

func (v *verifier) node(id, parent int64, depth int, lo, hi bound) error {
	if v.seen[id] {
		return errors.Wrapf(ErrInvariant, "page %d reachable twice", id)
	}
	v.seen[id] = true

	n, err := v.t.readNode(id)
	if err != nil {
		return err
	}
	if n.Parent != parent {
		return errors.Wrapf(ErrInvariant, "page %d: parent %d, want %d", id, n.Parent, parent)
	}
	nk := n.NumKeys()
	if nk > v.t.order {
		return errors.Wrapf(ErrInvariant, "page %d: %d keys exceed order %d", id, nk, v.t.order)
	}
	if id != rootPage && nk < (v.t.order+1)/2-1 {
		return errors.Wrapf(ErrInvariant, "page %d: %d keys below minimum", id, nk)
	}
	if id != rootPage && nk == 0 {
		return errors.Wrapf(ErrInvariant, "page %d: empty non-root node", id)
	}
	for i, k := range n.Keys {
		if i > 0 && n.Keys[i-1].Compare(k) >= 0 {
			return errors.Wrapf(ErrInvariant, "page %d: keys not ascending at slot %d", id, i)
		}
		if lo.set && k.Compare(lo.key) < 0 {
			return errors.Wrapf(ErrInvariant, "page %d: key %q below separator %q", id, k.String(), lo.key.String())
		}
		if hi.set && k.Compare(hi.key) >= 0 {
			return errors.Wrapf(ErrInvariant, "page %d: key %q not below separator %q", id, k.String(), hi.key.String())
		}
	}

	if n.Leaf {
		if v.leafDepth == -1 {
			v.leafDepth = depth
		} else if v.leafDepth != depth {
			return errors.Wrapf(ErrInvariant, "leaf %d at depth %d, other leaves at %d", id, depth, v.leafDepth)
		}
		v.leaves = append(v.leaves, id)
		v.keys += nk
		return nil
	}

	if n.NextLeaf != btpage.InvalidPage {
		return errors.Wrapf(ErrInvariant, "internal page %d has next leaf %d", id, n.NextLeaf)
	}
	if len(n.Children) != nk+1 {
		return errors.Wrapf(ErrInvariant, "internal page %d: %d children for %d keys", id, len(n.Children), nk)
	}
	v.internal++
	for i, c := range n.Children {
		clo, chi := lo, hi
		if i > 0 {
			clo = bound{key: n.Keys[i-1], set: true}
		}
		if i < nk {
			chi = bound{key: n.Keys[i], set: true}
		}
		if err := v.node(c, id, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}
