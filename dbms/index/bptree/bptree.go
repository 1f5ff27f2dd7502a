// Package bptree implements a disk-resident B+ tree mapping fixed-width
// string keys to record offsets.
//
// Every node occupies one page (see package btpage). Page 0 is always the
// root. Leaves hold the offsets and are chained in key order through their
// next-leaf pointer; internal nodes hold separators and child page numbers.
// Nodes never reference each other in memory: every step re-reads the page
// from the store.
//
// The tree assumes a single writer. Nothing is journaled, so an I/O failure
// in the middle of a split can leave a separator pointing at a sibling whose
// parent or chain links were not yet written.
package bptree

import (
	"slices"

	"github.com/btree-query-bench/strindex/dbms/index"
	"github.com/btree-query-bench/strindex/dbms/index/btpage"
	"github.com/btree-query-bench/strindex/dbms/pager"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const rootPage = int64(0)

var (
	// ErrDuplicateKey is returned when inserting a key that is already present.
	ErrDuplicateKey = index.ErrDuplicateKey
	// ErrInvalidOrder is returned by New and Open for an unusable Options.Order.
	ErrInvalidOrder = errors.New("bptree: invalid order")
)

// MinOrder is the smallest supported Options.Order.
const MinOrder = 3

// Options configures a tree handle.
type Options struct {
	// Order is the maximum number of keys per node. Zero means
	// btpage.MaxOrder. It is not persisted: every open of a file must use
	// the same value.
	Order int
	// CachePages, when positive, makes Open wrap the pager in an LRU page
	// cache of that many pages.
	CachePages int
	// Logger receives split and truncation events. Nil disables logging.
	Logger *zap.Logger
}

// BPTree is a handle on one index file.
type BPTree struct {
	st    pager.Store
	order int
	log   *zap.Logger
}

var _ index.Index = (*BPTree)(nil)

// Open opens (or creates) the tree stored at path.
func Open(path string, opts Options) (*BPTree, error) {
	if _, err := opts.order(); err != nil {
		return nil, err
	}
	pg, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	var st pager.Store = pg
	if opts.CachePages > 0 {
		st = pager.NewCache(pg, opts.CachePages)
	}
	t, err := New(st, opts)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	return t, nil
}

// New builds a tree on an already opened store. Options.CachePages is
// ignored; wrap st with pager.NewCache instead.
func New(st pager.Store, opts Options) (*BPTree, error) {
	order, err := opts.order()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BPTree{st: st, order: order, log: log}, nil
}

func (o Options) order() (int, error) {
	switch {
	case o.Order == 0:
		return btpage.MaxOrder, nil
	case o.Order < MinOrder || o.Order > btpage.MaxOrder:
		return 0, errors.Wrapf(ErrInvalidOrder, "order %d outside [%d, %d]", o.Order, MinOrder, btpage.MaxOrder)
	}
	return o.Order, nil
}

// Order returns the maximum number of keys per node.
func (t *BPTree) Order() int { return t.order }

// Close releases the underlying store.
func (t *BPTree) Close() error { return t.st.Close() }

// ─── Insertion & Splitting ───────────────────────────────────────────────────

// split describes a node that overflowed: sep must be inserted into the
// parent with right as the child to its right.
type split struct {
	sep   btpage.Key
	right int64
}

// Insert adds key→offset. Keys longer than btpage.KeySize-1 bytes are
// truncated before being stored.
func (t *BPTree) Insert(key string, offset int64) error {
	k := t.encode(key)
	if t.st.PageCount() == 0 {
		id, err := t.st.Allocate()
		if err != nil {
			return err
		}
		if id != rootPage {
			return errors.Wrapf(btpage.ErrCorruptPage, "bptree: first page allocated at %d", id)
		}
		if err := t.writeNode(btpage.NewLeaf(rootPage)); err != nil {
			return err
		}
	}
	_, err := t.insertNode(rootPage, k, offset, 0)
	return err
}

func (t *BPTree) insertNode(id int64, k btpage.Key, offset int64, depth int) (*split, error) {
	if err := t.checkDepth(depth); err != nil {
		return nil, err
	}
	n, err := t.readNode(id)
	if err != nil {
		return nil, err
	}

	if n.Leaf {
		i := n.LowerBound(k)
		if i < n.NumKeys() && n.Keys[i] == k {
			return nil, errors.Wrapf(ErrDuplicateKey, "key %q", k.String())
		}
		n.Keys = slices.Insert(n.Keys, i, k)
		n.Children = slices.Insert(n.Children, i, offset)
	} else {
		i := n.Search(k)
		sp, err := t.insertNode(n.Children[i], k, offset, depth+1)
		if err != nil || sp == nil {
			return nil, err
		}
		n.Keys = slices.Insert(n.Keys, i, sp.sep)
		n.Children = slices.Insert(n.Children, i+1, sp.right)
	}

	if n.NumKeys() <= t.order {
		return nil, t.writeNode(n)
	}
	if id == rootPage {
		return nil, t.splitRoot(n)
	}
	return t.splitNode(n)
}

// splitNode splits an overflowing non-root node. The node keeps its page as
// the left half; the right half goes to a new page.
func (t *BPTree) splitNode(n *btpage.Node) (*split, error) {
	rid, err := t.st.Allocate()
	if err != nil {
		return nil, err
	}
	right, sep := t.carve(n, rid)
	right.Parent = n.Parent
	if n.Leaf {
		right.NextLeaf = n.NextLeaf
		n.NextLeaf = rid
	}

	if err := t.writeNode(right); err != nil {
		return nil, err
	}
	if err := t.writeNode(n); err != nil {
		return nil, err
	}
	if !n.Leaf {
		if err := t.reparent(right.Children, rid); err != nil {
			return nil, err
		}
	}
	t.log.Debug("split node",
		zap.Bool("leaf", n.Leaf),
		zap.Int64("page", n.Page),
		zap.Int64("sibling", rid),
		zap.String("separator", sep.String()))
	return &split{sep: sep, right: rid}, nil
}

// splitRoot splits the overflowing root. Page 0 must stay the root, so both
// halves move to new pages and page 0 is rewritten as an internal node with
// a single separator. Page 0 is written last.
func (t *BPTree) splitRoot(n *btpage.Node) error {
	lid, err := t.st.Allocate()
	if err != nil {
		return err
	}
	rid, err := t.st.Allocate()
	if err != nil {
		return err
	}
	n.Page = lid
	right, sep := t.carve(n, rid)
	n.Parent, right.Parent = rootPage, rootPage
	if n.Leaf {
		right.NextLeaf = n.NextLeaf
		n.NextLeaf = rid
	}

	if err := t.writeNode(right); err != nil {
		return err
	}
	if err := t.writeNode(n); err != nil {
		return err
	}
	if !n.Leaf {
		if err := t.reparent(n.Children, lid); err != nil {
			return err
		}
		if err := t.reparent(right.Children, rid); err != nil {
			return err
		}
	}

	root := btpage.NewInternal(rootPage)
	root.Keys = []btpage.Key{sep}
	root.Children = []int64{lid, rid}
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.log.Debug("split root",
		zap.Bool("leaf", n.Leaf),
		zap.Int64("left", lid),
		zap.Int64("right", rid),
		zap.String("separator", sep.String()))
	return nil
}

// carve moves the upper half of n into a new node for page rid and returns
// it with the separator for the parent. A leaf keeps the first
// ceil(len/2) entries and copies the right half's first key up. An internal
// node keeps floor(len/2) keys and moves the next key up.
func (t *BPTree) carve(n *btpage.Node, rid int64) (*btpage.Node, btpage.Key) {
	nk := n.NumKeys()
	if n.Leaf {
		m := (nk + 1) / 2
		right := btpage.NewLeaf(rid)
		right.Keys = append(right.Keys, n.Keys[m:]...)
		right.Children = append(right.Children, n.Children[m:]...)
		n.Keys, n.Children = n.Keys[:m], n.Children[:m]
		return right, right.Keys[0]
	}
	m := nk / 2
	sep := n.Keys[m]
	right := btpage.NewInternal(rid)
	right.Keys = append(right.Keys, n.Keys[m+1:]...)
	right.Children = append(right.Children, n.Children[m+1:]...)
	n.Keys, n.Children = n.Keys[:m], n.Children[:m+1]
	return right, sep
}

func (t *BPTree) reparent(children []int64, parent int64) error {
	for _, c := range children {
		child, err := t.readNode(c)
		if err != nil {
			return err
		}
		if child.Parent == parent {
			continue
		}
		child.Parent = parent
		if err := t.writeNode(child); err != nil {
			return err
		}
	}
	return nil
}

// ─── Lookup ──────────────────────────────────────────────────────────────────

// Search returns the offset stored for key. The key is truncated the same
// way Insert truncates it. An empty tree reports not found without touching
// the store.
func (t *BPTree) Search(key string) (int64, bool, error) {
	k, _ := btpage.EncodeKey(key)
	if t.st.PageCount() == 0 {
		return 0, false, nil
	}
	leaf, err := t.findLeaf(k)
	if err != nil {
		return 0, false, err
	}
	i := leaf.LowerBound(k)
	if i < leaf.NumKeys() && leaf.Keys[i] == k {
		return leaf.Children[i], true, nil
	}
	return 0, false, nil
}

// FindRecordAtOrdinal returns the offset of the i-th smallest key
// (zero-based) by walking the leaf chain from the leftmost leaf.
func (t *BPTree) FindRecordAtOrdinal(i int) (int64, bool, error) {
	if i < 0 {
		return 0, false, nil
	}
	var (
		off   int64
		found bool
	)
	err := t.walkLeaves(func(leaf *btpage.Node) bool {
		if i < leaf.NumKeys() {
			off, found = leaf.Children[i], true
			return false
		}
		i -= leaf.NumKeys()
		return true
	})
	return off, found, err
}

// Len returns the number of keys in the tree.
func (t *BPTree) Len() (int, error) {
	n := 0
	err := t.walkLeaves(func(leaf *btpage.Node) bool {
		n += leaf.NumKeys()
		return true
	})
	return n, err
}

func (t *BPTree) findLeaf(k btpage.Key) (*btpage.Node, error) {
	id := rootPage
	for depth := 0; ; depth++ {
		if err := t.checkDepth(depth); err != nil {
			return nil, err
		}
		n, err := t.readNode(id)
		if err != nil {
			return nil, err
		}
		if n.Leaf {
			return n, nil
		}
		id = n.Children[n.Search(k)]
	}
}

// walkLeaves calls fn for every leaf in key order until fn returns false.
func (t *BPTree) walkLeaves(fn func(*btpage.Node) bool) error {
	if t.st.PageCount() == 0 {
		return nil
	}
	id := rootPage
	for depth := 0; ; depth++ {
		if err := t.checkDepth(depth); err != nil {
			return err
		}
		n, err := t.readNode(id)
		if err != nil {
			return err
		}
		if n.Leaf {
			break
		}
		id = n.Children[0]
	}
	for steps := int64(0); id != btpage.InvalidPage; steps++ {
		if steps >= t.st.PageCount() {
			return errors.Wrapf(btpage.ErrCorruptPage, "bptree: leaf chain longer than %d pages", t.st.PageCount())
		}
		leaf, err := t.readNode(id)
		if err != nil {
			return err
		}
		if !leaf.Leaf {
			return errors.Wrapf(btpage.ErrCorruptPage, "bptree: leaf chain reaches internal page %d", id)
		}
		if !fn(leaf) {
			return nil
		}
		id = leaf.NextLeaf
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (t *BPTree) encode(key string) btpage.Key {
	k, truncated := btpage.EncodeKey(key)
	if truncated {
		t.log.Warn("key truncated",
			zap.Int("length", len(key)),
			zap.Int("max", btpage.KeySize-1),
			zap.String("stored", k.String()))
	}
	return k
}

// checkDepth stops descents that loop because of a corrupt child pointer.
func (t *BPTree) checkDepth(depth int) error {
	if int64(depth) > t.st.PageCount() {
		return errors.Wrapf(btpage.ErrCorruptPage, "bptree: descent deeper than %d pages", t.st.PageCount())
	}
	return nil
}

func (t *BPTree) readNode(id int64) (*btpage.Node, error) {
	pg, err := t.st.Read(id)
	if err != nil {
		return nil, err
	}
	n, err := btpage.Decode(pg, id)
	if err != nil {
		return nil, err
	}
	if !n.Leaf && n.NumKeys() == 0 {
		// Page 0 stays zero-filled when the write of the first empty leaf
		// fails; it is an empty root.
		if id == rootPage && *pg == (pager.Page{}) {
			return btpage.NewLeaf(rootPage), nil
		}
		return nil, errors.Wrapf(btpage.ErrCorruptPage, "bptree: internal page %d has no keys", id)
	}
	return n, nil
}

func (t *BPTree) writeNode(n *btpage.Node) error {
	pg := new(pager.Page)
	if err := btpage.Encode(n, pg); err != nil {
		return err
	}
	return t.st.Write(n.Page, pg)
}
