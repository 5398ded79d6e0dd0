package base

// ValueRef is how a leaf stores a value: inline bytes or the head of an
// overflow chain. Length is the stored (possibly compressed) payload length.
type ValueRef struct {
	Inline     []byte
	Overflow   PageID
	Length     uint32
	Compressed bool
}

// IsOverflow reports whether the payload lives in an overflow chain.
func (v ValueRef) IsOverflow() bool {
	return v.Overflow != 0
}

// Node represents a B+Tree page with decoded page data
type Node struct {
	PageID PageID
	Leaf   bool

	Keys     [][]byte
	Values   []ValueRef // leaf only
	Children []PageID   // branch only, len(Keys)+1
}

// NumKeys returns the number of keys (branch) or entries (leaf).
func (n *Node) NumKeys() int {
	return len(n.Keys)
}

// Clone creates a shallow copy for copy-on-write. Key and value byte slices are
// shared, so callers must replace them rather than mutate them in place.
func (n *Node) Clone() *Node {
	cloned := &Node{
		PageID: n.PageID,
		Leaf:   n.Leaf,
		Keys:   append(make([][]byte, 0, len(n.Keys)+1), n.Keys...),
	}
	if n.Leaf {
		cloned.Values = append(make([]ValueRef, 0, len(n.Values)+1), n.Values...)
	} else {
		cloned.Children = append(make([]PageID, 0, len(n.Children)+1), n.Children...)
	}
	return cloned
}

// Encode serializes the node into buf using the codec for its kind.
func (n *Node) Encode(buf []byte) error {
	if n.Leaf {
		return EncodeLeaf(buf, n)
	}
	return EncodeBranch(buf, n)
}

// DecodeNode decodes a branch or leaf page, whichever the header declares.
func DecodeNode(buf []byte, id PageID) (*Node, error) {
	if PageType(buf[offType]) == LeafPage {
		return DecodeLeaf(buf, id)
	}
	return DecodeBranch(buf, id)
}
