package btree

import (
	"bytes"
	"fmt"

	"github.com/alexhholmes/leafdb/internal/base"
)

// CheckReport summarizes a consistency check.
type CheckReport struct {
	Depth          uint32
	Entries        uint64
	Leaves         int
	Branches       int
	OverflowPages  int
	ReachablePages int
	FreePages      int
	PageCount      uint64
	Leaked         int // pages neither reachable nor free
}

type checker struct {
	tree   *Tree
	free   map[base.PageID]struct{}
	pages  uint64
	seen   map[base.PageID]struct{}
	report CheckReport
}

// Check walks the whole tree and verifies its structural invariants: node
// levels, key order and bounds, fill factors, the entry count and every
// overflow chain. free lists the pages the store considers free and
// pageCount is the file extent; no reachable page may be free, outside the
// extent or referenced twice.
//
// Leaked pages are reported but are not an error.
func (t *Tree) Check(free []base.PageID, pageCount uint64) (CheckReport, error) {
	c := &checker{
		tree:  t,
		free:  make(map[base.PageID]struct{}, len(free)),
		pages: pageCount,
		seen:  make(map[base.PageID]struct{}),
	}
	for _, id := range free {
		if _, dup := c.free[id]; dup {
			return c.report, base.Corruptf(id, "page listed as free twice")
		}
		c.free[id] = struct{}{}
	}
	c.report.Depth = t.depth
	c.report.PageCount = pageCount
	c.report.FreePages = len(c.free)

	if err := c.walk(t.root, 1, nil, nil); err != nil {
		return c.report, err
	}
	if c.report.Entries != t.entries {
		return c.report, fmt.Errorf("%w: tree holds %d entries, meta records %d",
			base.ErrCorruption, c.report.Entries, t.entries)
	}

	c.report.ReachablePages = len(c.seen)
	accounted := uint64(c.report.ReachablePages+c.report.FreePages) + 1 // meta page
	if accounted > pageCount {
		return c.report, fmt.Errorf("%w: %d pages accounted for in a file of %d",
			base.ErrCorruption, accounted, pageCount)
	}
	c.report.Leaked = int(pageCount - accounted)
	return c.report, nil
}

// visit claims a page for the walk.
func (c *checker) visit(id base.PageID) error {
	if id == base.MetaPageID || uint64(id) >= c.pages {
		return base.Corruptf(id, "reference outside file extent (%d pages)", c.pages)
	}
	if _, ok := c.seen[id]; ok {
		return base.Corruptf(id, "page referenced twice")
	}
	if _, ok := c.free[id]; ok {
		return base.Corruptf(id, "reachable page is on the free list")
	}
	c.seen[id] = struct{}{}
	return nil
}

// walk checks the subtree at id, whose keys must fall in [lo, hi). A nil
// bound is open.
func (c *checker) walk(id base.PageID, level uint32, lo, hi []byte) error {
	t := c.tree
	if err := c.visit(id); err != nil {
		return err
	}
	node, err := t.loadNode(id, level == t.depth)
	if err != nil {
		return err
	}

	if err := c.checkKeys(node, lo, hi); err != nil {
		return err
	}

	n := node.NumKeys()
	if node.Leaf {
		c.report.Leaves++
		if n > t.geo.LeafCapacity {
			return base.Corruptf(id, "leaf holds %d keys, capacity %d", n, t.geo.LeafCapacity)
		}
		if level > 1 && n < t.geo.MinLeafFill() {
			return base.Corruptf(id, "leaf holds %d keys, minimum %d", n, t.geo.MinLeafFill())
		}
		c.report.Entries += uint64(n)
		for _, ref := range node.Values {
			if !ref.IsOverflow() {
				continue
			}
			var visitErr error
			err := t.walkOverflow(ref, func(page base.PageID, _ []byte) {
				if visitErr == nil {
					visitErr = c.visit(page)
				}
				c.report.OverflowPages++
			})
			if err != nil {
				return err
			}
			if visitErr != nil {
				return visitErr
			}
		}
		return nil
	}

	c.report.Branches++
	if n > t.geo.BranchCapacity {
		return base.Corruptf(id, "branch holds %d keys, capacity %d", n, t.geo.BranchCapacity)
	}
	if level > 1 && n < t.geo.MinBranchFill() {
		return base.Corruptf(id, "branch holds %d keys, minimum %d", n, t.geo.MinBranchFill())
	}
	if level == 1 && n == 0 {
		return base.Corruptf(id, "root branch without separators")
	}
	if len(node.Children) != n+1 {
		return base.Corruptf(id, "branch with %d keys has %d children", n, len(node.Children))
	}

	for i, child := range node.Children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = node.Keys[i-1]
		}
		if i < n {
			childHi = node.Keys[i]
		}
		if err := c.walk(child, level+1, childLo, childHi); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkKeys(node *base.Node, lo, hi []byte) error {
	for i, key := range node.Keys {
		if i > 0 && bytes.Compare(node.Keys[i-1], key) >= 0 {
			return base.Corruptf(node.PageID, "keys out of order at %d", i)
		}
		if lo != nil && bytes.Compare(key, lo) < 0 {
			return base.Corruptf(node.PageID, "key %q below lower bound %q", key, lo)
		}
		if hi != nil && bytes.Compare(key, hi) >= 0 {
			return base.Corruptf(node.PageID, "key %q not below upper bound %q", key, hi)
		}
	}
	return nil
}
