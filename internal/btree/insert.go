package btree

import (
	"github.com/alexhholmes/leafdb/internal/algo"
	"github.com/alexhholmes/leafdb/internal/base"
)

// splitResult carries a new right sibling and the separator to promote.
type splitResult struct {
	right *base.Node
	key   []byte
}

// insert puts key into the subtree rooted at node, which sits at level
// (the root is level 1). It returns the node's new version and, if the node
// split, the right half to link into the parent.
func (tx *txn) insert(node *base.Node, key []byte, value base.ValueRef, level uint32) (*base.Node, *splitResult, error) {
	geo := tx.tree.geo

	if node.Leaf {
		leaf, err := tx.ensureWritable(node)
		if err != nil {
			return nil, nil, err
		}

		pos, found := algo.FindInsertPosition(leaf, key)
		if found {
			// Insert is also update; the old overflow chain goes away
			old := algo.ApplyLeafUpdate(leaf, pos, value)
			if err := tx.releaseValue(old); err != nil {
				return nil, nil, err
			}
			return leaf, nil, nil
		}

		algo.ApplyLeafInsert(leaf, pos, key, value)
		tx.added = true
		if leaf.NumKeys() <= geo.LeafCapacity {
			return leaf, nil, nil
		}
		return tx.split(leaf)
	}

	i := algo.FindChildIndex(node, key)
	child, err := tx.loadNode(node.Children[i], level+1 == tx.tree.depth)
	if err != nil {
		return nil, nil, err
	}
	child, split, err := tx.insert(child, key, value, level+1)
	if err != nil {
		return nil, nil, err
	}

	parent, err := tx.ensureWritable(node)
	if err != nil {
		return nil, nil, err
	}
	parent.Children[i] = child.PageID
	if split == nil {
		return parent, nil, nil
	}

	algo.ApplyChildSplit(parent, i, child.PageID, split.right.PageID, split.key)
	if parent.NumKeys() <= geo.BranchCapacity {
		return parent, nil, nil
	}
	return tx.split(parent)
}

// split moves the upper half of an overfull node to a new page.
func (tx *txn) split(node *base.Node) (*base.Node, *splitResult, error) {
	sp := algo.CalculateSplitPoint(node)
	right := algo.ExtractRightPortion(node, sp)

	id, err := tx.allocate()
	if err != nil {
		return nil, nil, err
	}
	right.PageID = id
	algo.TruncateLeft(node, sp)
	tx.pages.ReplaceOrInsert(right)

	return node, &splitResult{right: right, key: sp.SeparatorKey}, nil
}
