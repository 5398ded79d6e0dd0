// Package btree implements a copy-on-write B+Tree over fixed-size pages.
package btree

import (
	"github.com/alexhholmes/leafdb/internal/algo"
	"github.com/alexhholmes/leafdb/internal/base"
)

// PageStore is the page-level storage the tree is built on.
type PageStore interface {
	Read(id base.PageID) ([]byte, error)
	Write(id base.PageID, buf []byte) error
	Allocate() (base.PageID, error)
	Free(id base.PageID) error
	SetRoot(root base.PageID, depth uint32, entries uint64)
}

// State is the tree shape recorded in the meta page.
type State struct {
	Root    base.PageID
	Depth   uint32
	Entries uint64
}

// Options configures a Tree.
type Options struct {
	Geometry    base.Geometry
	Compression bool // snappy-compress values that would overflow
}

// Tree is a B+Tree whose nodes live in pages of a PageStore.
//
// CONCURRENCY: reads may run in parallel with each other. Put and Delete must
// be serialized by the caller and must not overlap reads.
type Tree struct {
	store    PageStore
	geo      base.Geometry
	compress bool
	inline   int

	root    base.PageID
	depth   uint32
	entries uint64
}

// Open attaches to the tree described by state. A zero Root creates an empty
// root leaf, which is published with the next flush.
func Open(store PageStore, state State, opts Options) (*Tree, error) {
	t := &Tree{
		store:    store,
		geo:      opts.Geometry,
		compress: opts.Compression,
		inline:   opts.Geometry.InlineThreshold(),
		root:     state.Root,
		depth:    state.Depth,
		entries:  state.Entries,
	}

	if t.root != 0 {
		if t.depth == 0 {
			return nil, base.Corruptf(t.root, "root recorded with depth 0")
		}
		return t, nil
	}

	tx := t.begin()
	root := &base.Node{Leaf: true}
	id, err := tx.allocate()
	if err != nil {
		return nil, err
	}
	root.PageID = id
	tx.pages.ReplaceOrInsert(root)
	if err := tx.commit(root.PageID, 1, 0); err != nil {
		tx.rollback()
		return nil, err
	}
	return t, nil
}

// State returns the current root, depth and entry count.
func (t *Tree) State() State {
	return State{Root: t.root, Depth: t.depth, Entries: t.entries}
}

// Len returns the number of entries.
func (t *Tree) Len() uint64 {
	return t.entries
}

// Depth returns the number of levels, 1 when the root is a leaf.
func (t *Tree) Depth() uint32 {
	return t.depth
}

// Get returns the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, false, err
	}

	idx := algo.FindKeyInLeaf(leaf, key)
	if idx < 0 {
		return nil, false, nil
	}
	value, err := t.readValue(leaf.Values[idx])
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Has reports whether key is present without resolving its value.
func (t *Tree) Has(key []byte) (bool, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	return algo.FindKeyInLeaf(leaf, key) >= 0, nil
}

// findLeaf descends from the root to the leaf that would hold key.
func (t *Tree) findLeaf(key []byte) (*base.Node, error) {
	id := t.root
	for level := uint32(1); ; level++ {
		node, err := t.loadNode(id, level == t.depth)
		if err != nil {
			return nil, err
		}
		if node.Leaf {
			return node, nil
		}
		id = node.Children[algo.FindChildIndex(node, key)]
	}
}

// loadNode reads and decodes a node, checking it is at the expected level.
func (t *Tree) loadNode(id base.PageID, wantLeaf bool) (*base.Node, error) {
	buf, err := t.store.Read(id)
	if err != nil {
		return nil, err
	}
	node, err := base.DecodeNode(buf, id)
	if err != nil {
		return nil, err
	}
	if node.Leaf != wantLeaf {
		if wantLeaf {
			return nil, base.Corruptf(id, "branch found where a leaf was expected")
		}
		return nil, base.Corruptf(id, "leaf found above the leaf level")
	}
	return node, nil
}

// Put inserts key or replaces its value.
func (t *Tree) Put(key, value []byte) (err error) {
	tx := t.begin()
	defer func() {
		if err != nil {
			tx.rollback()
		}
	}()

	ref, err := tx.storeValue(value)
	if err != nil {
		return err
	}

	root, err := tx.loadNode(t.root, t.depth == 1)
	if err != nil {
		return err
	}
	root, split, err := tx.insert(root, key, ref, 1)
	if err != nil {
		return err
	}

	depth := t.depth
	if split != nil {
		// Root split: the tree grows by one level
		id, err := tx.allocate()
		if err != nil {
			return err
		}
		root = algo.NewBranchRoot(root.PageID, split.right.PageID, split.key, id)
		tx.pages.ReplaceOrInsert(root)
		depth++
	}

	entries := t.entries
	if tx.added {
		entries++
	}
	return tx.commit(root.PageID, depth, entries)
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key []byte) (found bool, err error) {
	tx := t.begin()
	defer func() {
		if err != nil {
			tx.rollback()
		}
	}()

	root, err := tx.loadNode(t.root, t.depth == 1)
	if err != nil {
		return false, err
	}
	root, found, err = tx.delete(root, key, 1)
	if err != nil || !found {
		return false, err
	}

	// Collapse roots left with a single child
	depth := t.depth
	for !root.Leaf && len(root.Keys) == 0 {
		child, err := tx.loadNode(root.Children[0], depth == 2)
		if err != nil {
			return false, err
		}
		tx.discard(root)
		root = child
		depth--
	}

	if err := tx.commit(root.PageID, depth, t.entries-1); err != nil {
		return false, err
	}
	return true, nil
}
