// Package algo contains algorithms used for traversing and editing a b+ tree.
package algo

import (
	"bytes"
	"slices"
	"sort"

	"github.com/alexhholmes/leafdb/internal/base"
)

const searchThreshold = 32

// FindChildIndex returns the index of child pointer to follow for key. Keys
// equal to a separator route right.
func FindChildIndex(node *base.Node, key []byte) int {
	keys := node.Keys
	if len(keys) < searchThreshold {
		i := 0
		for i < len(keys) && bytes.Compare(key, keys[i]) >= 0 {
			i++
		}
		return i
	}

	return sort.Search(len(keys), func(i int) bool {
		return bytes.Compare(key, keys[i]) < 0
	})
}

// FindKeyInLeaf returns index of key in leaf, or -1 if not found
func FindKeyInLeaf(node *base.Node, key []byte) int {
	if !node.Leaf {
		return -1
	}

	idx, found := FindInsertPosition(node, key)
	if !found {
		return -1
	}
	return idx
}

// FindInsertPosition returns the position of the first key >= key and
// whether that key equals key.
func FindInsertPosition(node *base.Node, key []byte) (int, bool) {
	keys := node.Keys
	var pos int
	if len(keys) < searchThreshold {
		for pos < len(keys) && bytes.Compare(key, keys[pos]) > 0 {
			pos++
		}
	} else {
		pos = sort.Search(len(keys), func(i int) bool {
			return bytes.Compare(key, keys[i]) <= 0
		})
	}
	return pos, pos < len(keys) && bytes.Equal(keys[pos], key)
}

// SplitPoint contains split calculation results
type SplitPoint struct {
	Mid          int
	LeftCount    int
	RightCount   int
	SeparatorKey []byte
}

// CalculateSplitPoint determines where an overfull node splits.
//
// A leaf keeps the lower half and moves the upper half to a new right leaf;
// the separator is the right leaf's smallest key. A branch promotes its
// median key: keys left of Mid stay, keys right of Mid move, and the key at
// Mid goes to the parent. For a node holding capacity+1 keys both halves end
// with at least floor(capacity/2) keys.
func CalculateSplitPoint(node *base.Node) SplitPoint {
	n := len(node.Keys)
	if n < 2 {
		panic("cannot split node with fewer than two keys")
	}

	if node.Leaf {
		mid := n / 2
		return SplitPoint{
			Mid:          mid,
			LeftCount:    mid,
			RightCount:   n - mid,
			SeparatorKey: slices.Clone(node.Keys[mid]),
		}
	}

	if n < 3 {
		panic("cannot split branch with fewer than three keys")
	}
	mid := n / 2
	return SplitPoint{
		Mid:          mid,
		LeftCount:    mid,
		RightCount:   n - mid - 1,
		SeparatorKey: slices.Clone(node.Keys[mid]),
	}
}

// ExtractRightPortion copies the right half of node into a new node without a
// page id. node is not modified.
func ExtractRightPortion(node *base.Node, sp SplitPoint) *base.Node {
	right := &base.Node{Leaf: node.Leaf}
	if node.Leaf {
		right.Keys = slices.Clone(node.Keys[sp.Mid:])
		right.Values = slices.Clone(node.Values[sp.Mid:])
		return right
	}

	right.Keys = slices.Clone(node.Keys[sp.Mid+1:])
	right.Children = slices.Clone(node.Children[sp.Mid+1:])
	return right
}

// InsertAt inserts value at index in slice
func InsertAt[T any](slice []T, index int, value T) []T {
	return slices.Insert(slice, index, value)
}

// RemoveAt removes element at index from slice
func RemoveAt[T any](slice []T, index int) []T {
	return slices.Delete(slice, index, index+1)
}
