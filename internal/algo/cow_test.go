package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alexhholmes/leafdb/internal/base"
)

func valueStrings(values []base.ValueRef) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v.Inline)
	}
	return out
}

func TestApplyLeafUpdate(t *testing.T) {
	node := makeLeafNode("apple", "banana", "cherry")

	old := ApplyLeafUpdate(node, 1, base.ValueRef{Overflow: 9, Length: 5000})

	assert.Equal(t, "vbanana", string(old.Inline))
	assert.True(t, node.Values[1].IsOverflow())
	assert.Equal(t, []string{"apple", "banana", "cherry"}, keyStrings(node.Keys))
}

func TestApplyLeafInsert(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		pos  int
		key  string
		want []string
	}{
		{"middle", []string{"a", "c"}, 1, "b", []string{"a", "b", "c"}},
		{"beginning", []string{"b", "c"}, 0, "a", []string{"a", "b", "c"}},
		{"end", []string{"a", "b"}, 2, "c", []string{"a", "b", "c"}},
		{"empty", nil, 0, "a", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := makeLeafNode(tt.keys...)
			key := []byte(tt.key)
			ApplyLeafInsert(node, tt.pos, key, base.ValueRef{Inline: []byte("v" + tt.key)})

			assert.Equal(t, tt.want, keyStrings(node.Keys))
			assert.Equal(t, "v"+tt.key, string(node.Values[tt.pos].Inline))

			// The stored key must not alias the caller's buffer
			key[0] = 'z'
			assert.Equal(t, tt.key, string(node.Keys[tt.pos]))
		})
	}
}

func TestApplyLeafDelete(t *testing.T) {
	node := makeLeafNode("a", "b", "c")

	old := ApplyLeafDelete(node, 1)
	assert.Equal(t, "vb", string(old.Inline))
	assert.Equal(t, []string{"a", "c"}, keyStrings(node.Keys))
	assert.Equal(t, []string{"va", "vc"}, valueStrings(node.Values))

	ApplyLeafDelete(node, 0)
	ApplyLeafDelete(node, 0)
	assert.Empty(t, node.Keys)
	assert.Empty(t, node.Values)
}

func TestApplyBranchRemoveSeparator(t *testing.T) {
	node := makeBranchNode([]string{"b", "d", "f"}, []base.PageID{1, 2, 3, 4})

	ApplyBranchRemoveSeparator(node, 1)

	assert.Equal(t, []string{"b", "f"}, keyStrings(node.Keys))
	assert.Equal(t, []base.PageID{1, 2, 4}, node.Children)
}

func TestBorrowFromLeftLeaf(t *testing.T) {
	left := makeLeafNode("a", "b", "c")
	node := makeLeafNode("e", "f")
	parent := makeBranchNode([]string{"e"}, []base.PageID{1, 2})

	BorrowFromLeft(node, left, parent, 0)

	assert.Equal(t, []string{"c", "e", "f"}, keyStrings(node.Keys))
	assert.Equal(t, []string{"vc", "ve", "vf"}, valueStrings(node.Values))
	assert.Equal(t, []string{"a", "b"}, keyStrings(left.Keys))
	assert.Len(t, left.Values, 2)
	assert.Equal(t, "c", string(parent.Keys[0]))
}

func TestBorrowFromLeftBranch(t *testing.T) {
	left := makeBranchNode([]string{"b", "d"}, []base.PageID{10, 11, 12})
	node := makeBranchNode([]string{"h"}, []base.PageID{20, 21})
	parent := makeBranchNode([]string{"x", "f"}, []base.PageID{1, 2, 3})

	BorrowFromLeft(node, left, parent, 1)

	// Parent separator rotates down, sibling's last key rotates up
	assert.Equal(t, []string{"f", "h"}, keyStrings(node.Keys))
	assert.Equal(t, []base.PageID{12, 20, 21}, node.Children)
	assert.Equal(t, []string{"b"}, keyStrings(left.Keys))
	assert.Equal(t, []base.PageID{10, 11}, left.Children)
	assert.Equal(t, []string{"x", "d"}, keyStrings(parent.Keys))
}

func TestBorrowFromRightLeaf(t *testing.T) {
	node := makeLeafNode("a")
	right := makeLeafNode("c", "d", "e")
	parent := makeBranchNode([]string{"c"}, []base.PageID{1, 2})

	BorrowFromRight(node, right, parent, 0)

	assert.Equal(t, []string{"a", "c"}, keyStrings(node.Keys))
	assert.Equal(t, []string{"va", "vc"}, valueStrings(node.Values))
	assert.Equal(t, []string{"d", "e"}, keyStrings(right.Keys))
	assert.Equal(t, "d", string(parent.Keys[0]))
}

func TestBorrowFromRightBranch(t *testing.T) {
	node := makeBranchNode([]string{"b"}, []base.PageID{10, 11})
	right := makeBranchNode([]string{"f", "h"}, []base.PageID{20, 21, 22})
	parent := makeBranchNode([]string{"d"}, []base.PageID{1, 2})

	BorrowFromRight(node, right, parent, 0)

	assert.Equal(t, []string{"b", "d"}, keyStrings(node.Keys))
	assert.Equal(t, []base.PageID{10, 11, 20}, node.Children)
	assert.Equal(t, []string{"h"}, keyStrings(right.Keys))
	assert.Equal(t, []base.PageID{21, 22}, right.Children)
	assert.Equal(t, []string{"f"}, keyStrings(parent.Keys))
}

func TestMergeNodesLeaf(t *testing.T) {
	left := makeLeafNode("a", "b")
	right := makeLeafNode("c", "d")

	MergeNodes(left, right, []byte("c"))

	assert.Equal(t, []string{"a", "b", "c", "d"}, keyStrings(left.Keys))
	assert.Equal(t, []string{"va", "vb", "vc", "vd"}, valueStrings(left.Values))
	assert.Nil(t, left.Children)
}

func TestMergeNodesLeafEmptyLeft(t *testing.T) {
	left := makeLeafNode()
	right := makeLeafNode("c")

	MergeNodes(left, right, []byte("c"))

	assert.Equal(t, []string{"c"}, keyStrings(left.Keys))
}

func TestMergeNodesBranch(t *testing.T) {
	left := makeBranchNode([]string{"b"}, []base.PageID{1, 2})
	right := makeBranchNode([]string{"f"}, []base.PageID{3, 4})

	MergeNodes(left, right, []byte("d"))

	assert.Equal(t, []string{"b", "d", "f"}, keyStrings(left.Keys))
	assert.Equal(t, []base.PageID{1, 2, 3, 4}, left.Children)
	assert.Nil(t, left.Values)
}

func TestNewBranchRoot(t *testing.T) {
	root := NewBranchRoot(3, 7, []byte("m"), 9)

	assert.Equal(t, base.PageID(9), root.PageID)
	assert.False(t, root.Leaf)
	assert.Equal(t, []string{"m"}, keyStrings(root.Keys))
	assert.Equal(t, []base.PageID{3, 7}, root.Children)
}

func TestApplyChildSplit(t *testing.T) {
	tests := []struct {
		name     string
		childIdx int
		keys     []string
		children []base.PageID
	}{
		{"beginning", 0, []string{"c", "m", "t"}, []base.PageID{10, 11, 2, 3}},
		{"middle", 1, []string{"m", "p", "t"}, []base.PageID{1, 10, 11, 3}},
		{"end", 2, []string{"m", "t", "x"}, []base.PageID{1, 2, 10, 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := makeBranchNode([]string{"m", "t"}, []base.PageID{1, 2, 3})
			sep := map[int]string{0: "c", 1: "p", 2: "x"}[tt.childIdx]

			ApplyChildSplit(parent, tt.childIdx, 10, 11, []byte(sep))

			assert.Equal(t, tt.keys, keyStrings(parent.Keys))
			assert.Equal(t, tt.children, parent.Children)
		})
	}
}

func TestTruncateLeftDoesNotAlias(t *testing.T) {
	node := makeLeafNode("a", "b", "c", "d")
	sp := CalculateSplitPoint(node)
	right := ExtractRightPortion(node, sp)
	TruncateLeft(node, sp)

	// Growing the left half must not overwrite the right half
	ApplyLeafInsert(node, 2, []byte("bb"), base.ValueRef{Inline: []byte("x")})
	assert.Equal(t, []string{"a", "b", "bb"}, keyStrings(node.Keys))
	assert.Equal(t, []string{"c", "d"}, keyStrings(right.Keys))
	assert.Equal(t, []string{"vc", "vd"}, valueStrings(right.Values))
}
