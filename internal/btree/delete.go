package btree

import (
	"github.com/alexhholmes/leafdb/internal/algo"
	"github.com/alexhholmes/leafdb/internal/base"
)

// delete removes key from the subtree rooted at node. Nothing is copied when
// the key is absent.
func (tx *txn) delete(node *base.Node, key []byte, level uint32) (*base.Node, bool, error) {
	if node.Leaf {
		idx := algo.FindKeyInLeaf(node, key)
		if idx < 0 {
			return node, false, nil
		}

		leaf, err := tx.ensureWritable(node)
		if err != nil {
			return nil, false, err
		}
		old := algo.ApplyLeafDelete(leaf, idx)
		if err := tx.releaseValue(old); err != nil {
			return nil, false, err
		}
		return leaf, true, nil
	}

	// B+ tree: entries only live in leaves, so always descend
	childIdx := algo.FindChildIndex(node, key)
	child, err := tx.loadNode(node.Children[childIdx], level+1 == tx.tree.depth)
	if err != nil {
		return nil, false, err
	}
	child, found, err := tx.delete(child, key, level+1)
	if err != nil || !found {
		return node, found, err
	}

	parent, err := tx.ensureWritable(node)
	if err != nil {
		return nil, false, err
	}
	parent.Children[childIdx] = child.PageID

	if tx.underflow(child) {
		if err := tx.fixUnderflow(parent, childIdx, child); err != nil {
			return nil, false, err
		}
	}
	return parent, true, nil
}

func (tx *txn) underflow(n *base.Node) bool {
	if n.Leaf {
		return n.NumKeys() < tx.tree.geo.MinLeafFill()
	}
	return n.NumKeys() < tx.tree.geo.MinBranchFill()
}

func (tx *txn) canLend(n *base.Node) bool {
	if n.Leaf {
		return n.NumKeys() > tx.tree.geo.MinLeafFill()
	}
	return n.NumKeys() > tx.tree.geo.MinBranchFill()
}

// fixUnderflow restores the minimum fill of child, the childIdx-th child of
// parent. It borrows from a sibling that can spare an entry, left first, and
// otherwise merges with a sibling. parent and child must be writable.
func (tx *txn) fixUnderflow(parent *base.Node, childIdx int, child *base.Node) error {
	if childIdx > 0 {
		left, err := tx.loadNode(parent.Children[childIdx-1], child.Leaf)
		if err != nil {
			return err
		}
		if tx.canLend(left) {
			left, err = tx.ensureWritable(left)
			if err != nil {
				return err
			}
			algo.BorrowFromLeft(child, left, parent, childIdx-1)
			parent.Children[childIdx-1] = left.PageID
			return nil
		}
	}

	if childIdx < len(parent.Children)-1 {
		right, err := tx.loadNode(parent.Children[childIdx+1], child.Leaf)
		if err != nil {
			return err
		}
		if tx.canLend(right) {
			right, err = tx.ensureWritable(right)
			if err != nil {
				return err
			}
			algo.BorrowFromRight(child, right, parent, childIdx)
			parent.Children[childIdx+1] = right.PageID
			return nil
		}
	}

	// No sibling can lend: merge. Both halves are at most one below the
	// minimum, so the result fits.
	if childIdx > 0 {
		left, err := tx.loadNode(parent.Children[childIdx-1], child.Leaf)
		if err != nil {
			return err
		}
		left, err = tx.ensureWritable(left)
		if err != nil {
			return err
		}
		algo.MergeNodes(left, child, parent.Keys[childIdx-1])
		algo.ApplyBranchRemoveSeparator(parent, childIdx-1)
		parent.Children[childIdx-1] = left.PageID
		tx.discard(child)
		return nil
	}

	if len(parent.Children) < 2 {
		return base.Corruptf(parent.PageID, "branch with a single child")
	}
	right, err := tx.loadNode(parent.Children[childIdx+1], child.Leaf)
	if err != nil {
		return err
	}
	algo.MergeNodes(child, right, parent.Keys[childIdx])
	algo.ApplyBranchRemoveSeparator(parent, childIdx)
	tx.discard(right)
	return nil
}
