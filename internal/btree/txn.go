package btree

import (
	"errors"

	gbtree "github.com/google/btree"

	"github.com/alexhholmes/leafdb/internal/base"
)

const writeSetDegree = 8

// txn is the write set of a single mutation.
//
// Nodes are never modified in place: ensureWritable copies a node to a newly
// allocated page and records the old page as freed. Dirty nodes are kept
// ordered by page id and only encoded and written at commit, so a failure at
// any earlier point leaves every reachable page untouched.
type txn struct {
	tree      *Tree
	pages     *gbtree.BTreeG[*base.Node] // dirty nodes owned by this txn
	allocated []base.PageID
	owned     map[base.PageID]struct{} // pages allocated by this txn
	freed     map[base.PageID]struct{} // released to the store after commit
	added     bool                     // a new key was inserted
}

func lessByPageID(a, b *base.Node) bool {
	return a.PageID < b.PageID
}

func (t *Tree) begin() *txn {
	return &txn{
		tree:  t,
		pages: gbtree.NewG[*base.Node](writeSetDegree, lessByPageID),
		owned: make(map[base.PageID]struct{}),
		freed: make(map[base.PageID]struct{}),
	}
}

func (tx *txn) allocate() (base.PageID, error) {
	id, err := tx.tree.store.Allocate()
	if err != nil {
		return 0, err
	}
	tx.allocated = append(tx.allocated, id)
	tx.owned[id] = struct{}{}
	return id, nil
}

// loadNode returns the txn's copy of a page if it has one.
func (tx *txn) loadNode(id base.PageID, wantLeaf bool) (*base.Node, error) {
	if node, ok := tx.pages.Get(&base.Node{PageID: id}); ok {
		return node, nil
	}
	return tx.tree.loadNode(id, wantLeaf)
}

// ensureWritable returns a node that is safe to modify in this txn.
func (tx *txn) ensureWritable(node *base.Node) (*base.Node, error) {
	if _, ok := tx.owned[node.PageID]; ok {
		return node, nil
	}

	id, err := tx.allocate()
	if err != nil {
		return nil, err
	}
	cloned := node.Clone()
	cloned.PageID = id
	tx.freed[node.PageID] = struct{}{}
	tx.pages.ReplaceOrInsert(cloned)
	return cloned, nil
}

// discard drops a node that is no longer referenced.
func (tx *txn) discard(node *base.Node) {
	tx.pages.Delete(node)
	tx.freed[node.PageID] = struct{}{}
}

// release frees a page that is not a tree node, such as an overflow page.
func (tx *txn) release(id base.PageID) {
	tx.freed[id] = struct{}{}
}

// commit encodes every dirty node, writes them in page order, publishes the
// new root and finally releases the pages the old version used.
func (tx *txn) commit(root base.PageID, depth uint32, entries uint64) error {
	t := tx.tree
	bufs := make([][]byte, 0, tx.pages.Len())
	nodes := make([]*base.Node, 0, tx.pages.Len())

	var err error
	tx.pages.Ascend(func(n *base.Node) bool {
		buf := make([]byte, t.geo.PageSize)
		if err = n.Encode(buf); err != nil {
			return false
		}
		bufs = append(bufs, buf)
		nodes = append(nodes, n)
		return true
	})
	if err != nil {
		return err
	}

	for i, n := range nodes {
		if err := t.store.Write(n.PageID, bufs[i]); err != nil {
			return err
		}
	}

	t.store.SetRoot(root, depth, entries)
	t.root, t.depth, t.entries = root, depth, entries

	// The new root is in place; failures from here on only leak pages
	var errs []error
	for id := range tx.freed {
		if err := t.store.Free(id); err != nil {
			errs = append(errs, err)
		}
	}
	tx.allocated = nil
	return errors.Join(errs...)
}

// rollback returns every page allocated by the txn. Nothing reachable from
// the current root was modified, so no other cleanup is needed.
func (tx *txn) rollback() {
	for _, id := range tx.allocated {
		_ = tx.tree.store.Free(id)
	}
	tx.allocated = nil
	tx.pages.Clear(false)
}
