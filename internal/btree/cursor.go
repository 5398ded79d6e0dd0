package btree

import (
	"github.com/alexhholmes/leafdb/internal/algo"
	"github.com/alexhholmes/leafdb/internal/base"
)

// path represents one level in the cursor's navigation path from root to leaf
// For branch nodes: index is which child we descended to
// For leaf nodes: index is which entry we're currently at
type path struct {
	node  *base.Node
	index int
}

// Cursor provides ordered iteration over the tree.
//
// Leaves carry no sibling links, so crossing a leaf boundary climbs the
// stack to the nearest ancestor with another child and descends again. A
// cursor is only valid until the next mutation of the tree.
type Cursor struct {
	tree  *Tree
	stack []path // Navigation path from root to current leaf
	key   []byte
	value []byte
	valid bool
	err   error
}

// Cursor returns an unpositioned cursor.
func (t *Tree) Cursor() *Cursor {
	return &Cursor{tree: t}
}

// First positions cursor at the first key
func (c *Cursor) First() ([]byte, []byte) {
	c.reset()
	if err := c.descend(c.tree.root, 1, func(*base.Node) int { return 0 }); err != nil {
		return c.fail(err)
	}
	return c.settleForward()
}

// Last positions cursor at the last key
func (c *Cursor) Last() ([]byte, []byte) {
	c.reset()
	last := func(n *base.Node) int {
		if n.Leaf {
			return len(n.Keys) - 1
		}
		return len(n.Children) - 1
	}
	if err := c.descend(c.tree.root, 1, last); err != nil {
		return c.fail(err)
	}
	return c.settleBackward()
}

// Seek positions cursor at the first key >= seek. A nil seek is First.
func (c *Cursor) Seek(seek []byte) ([]byte, []byte) {
	if seek == nil {
		return c.First()
	}

	c.reset()
	pick := func(n *base.Node) int {
		if n.Leaf {
			pos, _ := algo.FindInsertPosition(n, seek)
			return pos
		}
		return algo.FindChildIndex(n, seek)
	}
	if err := c.descend(c.tree.root, 1, pick); err != nil {
		return c.fail(err)
	}
	return c.settleForward()
}

// Next advances cursor to next key
// Returns key, value (nil, nil if exhausted)
func (c *Cursor) Next() ([]byte, []byte) {
	if !c.valid || len(c.stack) == 0 {
		return nil, nil
	}
	c.stack[len(c.stack)-1].index++
	return c.settleForward()
}

// Prev moves cursor to previous key
// Returns key, value (nil, nil if at beginning)
func (c *Cursor) Prev() ([]byte, []byte) {
	if !c.valid || len(c.stack) == 0 {
		return nil, nil
	}
	c.stack[len(c.stack)-1].index--
	return c.settleBackward()
}

// Key returns the current key.
func (c *Cursor) Key() []byte {
	return c.key
}

// Value returns the current value.
func (c *Cursor) Value() []byte {
	return c.value
}

// Valid reports whether the cursor is positioned on an entry.
func (c *Cursor) Valid() bool {
	return c.valid
}

// Err returns the error that invalidated the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) reset() {
	c.stack = c.stack[:0]
	c.key, c.value = nil, nil
	c.valid = false
	c.err = nil
}

func (c *Cursor) fail(err error) ([]byte, []byte) {
	c.err = err
	c.valid = false
	c.key, c.value = nil, nil
	return nil, nil
}

// descend walks from id down to a leaf, choosing a child at each branch.
func (c *Cursor) descend(id base.PageID, level uint32, pick func(*base.Node) int) error {
	for {
		node, err := c.tree.loadNode(id, level == c.tree.depth)
		if err != nil {
			return err
		}
		i := pick(node)
		c.stack = append(c.stack, path{node: node, index: i})
		if node.Leaf {
			return nil
		}
		id = node.Children[i]
		level++
	}
}

// settleForward moves to the next leaf while the leaf index is past the end,
// then loads the entry.
func (c *Cursor) settleForward() ([]byte, []byte) {
	for {
		leaf := c.stack[len(c.stack)-1]
		if leaf.index < len(leaf.node.Keys) {
			return c.load()
		}

		// Pop up the stack to find a parent with more children
		c.stack = c.stack[:len(c.stack)-1]
		for len(c.stack) > 0 && c.stack[len(c.stack)-1].index+1 >= len(c.stack[len(c.stack)-1].node.Children) {
			c.stack = c.stack[:len(c.stack)-1]
		}
		if len(c.stack) == 0 {
			c.valid = false
			c.key, c.value = nil, nil
			return nil, nil
		}

		parent := &c.stack[len(c.stack)-1]
		parent.index++
		level := uint32(len(c.stack)) + 1
		if err := c.descend(parent.node.Children[parent.index], level, func(*base.Node) int { return 0 }); err != nil {
			return c.fail(err)
		}
	}
}

// settleBackward is settleForward in reverse.
func (c *Cursor) settleBackward() ([]byte, []byte) {
	for {
		leaf := c.stack[len(c.stack)-1]
		if leaf.index >= 0 && leaf.index < len(leaf.node.Keys) {
			return c.load()
		}

		c.stack = c.stack[:len(c.stack)-1]
		for len(c.stack) > 0 && c.stack[len(c.stack)-1].index == 0 {
			c.stack = c.stack[:len(c.stack)-1]
		}
		if len(c.stack) == 0 {
			c.valid = false
			c.key, c.value = nil, nil
			return nil, nil
		}

		parent := &c.stack[len(c.stack)-1]
		parent.index--
		level := uint32(len(c.stack)) + 1
		last := func(n *base.Node) int {
			if n.Leaf {
				return len(n.Keys) - 1
			}
			return len(n.Children) - 1
		}
		if err := c.descend(parent.node.Children[parent.index], level, last); err != nil {
			return c.fail(err)
		}
	}
}

func (c *Cursor) load() ([]byte, []byte) {
	leaf := c.stack[len(c.stack)-1]
	value, err := c.tree.readValue(leaf.node.Values[leaf.index])
	if err != nil {
		return c.fail(err)
	}
	c.key = leaf.node.Keys[leaf.index]
	c.value = value
	c.valid = true
	return c.key, c.value
}
