package algo

import (
	"slices"

	"github.com/alexhholmes/leafdb/internal/base"
)

// The functions below edit nodes in place. Callers pass nodes that are
// already private copies; nothing here allocates pages.

// ApplyLeafUpdate replaces the value at pos and returns the previous one so
// the caller can release its overflow chain.
func ApplyLeafUpdate(node *base.Node, pos int, value base.ValueRef) base.ValueRef {
	old := node.Values[pos]
	node.Values[pos] = value
	return old
}

// ApplyLeafInsert inserts new key-value at position
func ApplyLeafInsert(node *base.Node, pos int, key []byte, value base.ValueRef) {
	node.Keys = InsertAt(node.Keys, pos, slices.Clone(key))
	node.Values = InsertAt(node.Values, pos, value)
}

// ApplyLeafDelete removes the entry at idx and returns its value.
func ApplyLeafDelete(node *base.Node, idx int) base.ValueRef {
	old := node.Values[idx]
	node.Keys = RemoveAt(node.Keys, idx)
	node.Values = RemoveAt(node.Values, idx)
	return old
}

// ApplyBranchRemoveSeparator removes separator key and child after merge
// Removes the separator at sepIdx and the child at sepIdx+1
func ApplyBranchRemoveSeparator(node *base.Node, sepIdx int) {
	node.Keys = RemoveAt(node.Keys, sepIdx)
	node.Children = RemoveAt(node.Children, sepIdx+1)
}

// BorrowFromLeft moves the last element of leftSibling to the front of node
// and updates the parent separator between them.
func BorrowFromLeft(node, leftSibling, parent *base.Node, parentKeyIdx int) {
	last := len(leftSibling.Keys) - 1

	if node.Leaf {
		node.Keys = InsertAt(node.Keys, 0, leftSibling.Keys[last])
		node.Values = InsertAt(node.Values, 0, leftSibling.Values[last])
		leftSibling.Keys = leftSibling.Keys[:last]
		leftSibling.Values = leftSibling.Values[:last]

		// Separator becomes the first key of the right node
		parent.Keys[parentKeyIdx] = node.Keys[0]
		return
	}

	// Branch borrow rotates through the parent
	borrowedKey := leftSibling.Keys[last]
	borrowedChild := leftSibling.Children[last+1]

	node.Keys = InsertAt(node.Keys, 0, parent.Keys[parentKeyIdx])
	node.Children = InsertAt(node.Children, 0, borrowedChild)
	leftSibling.Keys = leftSibling.Keys[:last]
	leftSibling.Children = leftSibling.Children[:last+1]

	parent.Keys[parentKeyIdx] = borrowedKey
}

// BorrowFromRight moves the first element of rightSibling to the end of node
// and updates the parent separator between them.
func BorrowFromRight(node, rightSibling, parent *base.Node, parentKeyIdx int) {
	if node.Leaf {
		node.Keys = append(node.Keys, rightSibling.Keys[0])
		node.Values = append(node.Values, rightSibling.Values[0])
		rightSibling.Keys = RemoveAt(rightSibling.Keys, 0)
		rightSibling.Values = RemoveAt(rightSibling.Values, 0)

		// Separator becomes the first key of the right sibling
		parent.Keys[parentKeyIdx] = rightSibling.Keys[0]
		return
	}

	borrowedKey := rightSibling.Keys[0]
	borrowedChild := rightSibling.Children[0]

	node.Keys = append(node.Keys, parent.Keys[parentKeyIdx])
	node.Children = append(node.Children, borrowedChild)
	rightSibling.Keys = RemoveAt(rightSibling.Keys, 0)
	rightSibling.Children = RemoveAt(rightSibling.Children, 0)

	parent.Keys[parentKeyIdx] = borrowedKey
}

// MergeNodes combines right node into left node
// For branch nodes, includes separator key from parent
// Does NOT update parent - caller must call ApplyBranchRemoveSeparator
func MergeNodes(leftNode, rightNode *base.Node, separatorKey []byte) {
	if leftNode.Leaf {
		leftNode.Keys = append(leftNode.Keys, rightNode.Keys...)
		leftNode.Values = append(leftNode.Values, rightNode.Values...)
		return
	}

	// Branch node: pull down separator key
	leftNode.Keys = append(leftNode.Keys, separatorKey)
	leftNode.Keys = append(leftNode.Keys, rightNode.Keys...)
	leftNode.Children = append(leftNode.Children, rightNode.Children...)
}

// NewBranchRoot creates a new branch root node from two children after split
func NewBranchRoot(left, right base.PageID, midKey []byte, pageID base.PageID) *base.Node {
	return &base.Node{
		PageID:   pageID,
		Keys:     [][]byte{midKey},
		Children: []base.PageID{left, right},
	}
}

// ApplyChildSplit updates parent after splitting child at childIdx
// Inserts separator key and updates children pointers
func ApplyChildSplit(parent *base.Node, childIdx int, left, right base.PageID, midKey []byte) {
	parent.Keys = InsertAt(parent.Keys, childIdx, midKey)
	parent.Children[childIdx] = left
	parent.Children = InsertAt(parent.Children, childIdx+1, right)
}

// TruncateLeft modifies node to keep only left portion after split
func TruncateLeft(node *base.Node, sp SplitPoint) {
	node.Keys = slices.Clone(node.Keys[:sp.LeftCount])
	if node.Leaf {
		node.Values = slices.Clone(node.Values[:sp.LeftCount])
		return
	}
	node.Children = slices.Clone(node.Children[:sp.Mid+1])
}
