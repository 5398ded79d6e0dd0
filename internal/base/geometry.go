package base

import "fmt"

const (
	DefaultMaxKeySize     = 64
	DefaultMaxValueSize   = 64 << 20
	DefaultLeafCapacity   = 16
	MaxDefaultBranchCap   = 1024
	MinCapacity           = 2
	minInlineThreshold    = 8
	leafEntryOverhead     = 2 + 1 + 4 // keyLen + kind + valueLen
	branchKeyOverhead     = 2 + 8      // keyLen + child pointer
	overflowRefSize       = 8
	maxCountField         = 1<<16 - 1
	maxValueLengthEncoded = 1<<32 - 1
)

// Geometry is the page layout configuration. It is chosen when a file is
// created and stored in its meta page; it never changes afterwards.
type Geometry struct {
	PageSize       int
	MaxKeySize     int
	MaxValueSize   int
	LeafCapacity   int // max entries per leaf
	BranchCapacity int // max separator keys per branch
}

// DefaultGeometry returns the geometry used for new files without overrides.
func DefaultGeometry() Geometry {
	g := Geometry{
		PageSize:     DefaultPageSize,
		MaxKeySize:   DefaultMaxKeySize,
		MaxValueSize: DefaultMaxValueSize,
		LeafCapacity: DefaultLeafCapacity,
	}
	g.BranchCapacity = g.DefaultBranchCapacity()
	return g
}

// DefaultBranchCapacity derives the largest branch fan-out that always fits a page.
func (g Geometry) DefaultBranchCapacity() int {
	n := (g.bodySize() - overflowRefSize) / (g.MaxKeySize + branchKeyOverhead)
	return min(n, MaxDefaultBranchCap)
}

func (g Geometry) bodySize() int {
	return g.PageSize - PageHeaderSize
}

// InlineThreshold is the largest value stored directly in a leaf. Larger values
// go to an overflow chain. Derived so that LeafCapacity worst-case entries fit.
func (g Geometry) InlineThreshold() int {
	return g.bodySize()/g.LeafCapacity - (g.MaxKeySize + leafEntryOverhead)
}

// OverflowPayload is the number of value bytes carried per overflow page.
func (g Geometry) OverflowPayload() int {
	return g.bodySize()
}

// MinLeafFill is the minimum number of entries in a non-root leaf.
func (g Geometry) MinLeafFill() int {
	return g.LeafCapacity / 2
}

// MinBranchFill is the minimum number of keys in a non-root branch.
func (g Geometry) MinBranchFill() int {
	return g.BranchCapacity / 2
}

// Validate rejects layouts where a full page could not be encoded.
func (g Geometry) Validate() error {
	if g.PageSize < MinPageSize || g.PageSize > MaxPageSize || !IsPowerOfTwo(g.PageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, g.PageSize)
	}
	if g.MaxKeySize < 1 || g.MaxKeySize > maxCountField {
		return fmt.Errorf("%w: max key size %d", ErrInvalidGeometry, g.MaxKeySize)
	}
	if g.MaxValueSize < 0 || uint64(g.MaxValueSize) > maxValueLengthEncoded {
		return fmt.Errorf("%w: max value size %d", ErrInvalidGeometry, g.MaxValueSize)
	}
	if g.LeafCapacity < MinCapacity || g.LeafCapacity > maxCountField {
		return fmt.Errorf("%w: leaf capacity %d", ErrInvalidGeometry, g.LeafCapacity)
	}
	if g.BranchCapacity < MinCapacity || g.BranchCapacity > maxCountField {
		return fmt.Errorf("%w: branch capacity %d", ErrInvalidGeometry, g.BranchCapacity)
	}
	if t := g.InlineThreshold(); t < minInlineThreshold {
		return fmt.Errorf("%w: inline threshold %d below %d (leaf capacity %d, max key %d, page %d)",
			ErrInvalidGeometry, t, minInlineThreshold, g.LeafCapacity, g.MaxKeySize, g.PageSize)
	}
	need := g.BranchCapacity*(g.MaxKeySize+branchKeyOverhead) + overflowRefSize
	if need > g.bodySize() {
		return fmt.Errorf("%w: branch capacity %d needs %d bytes, page body has %d",
			ErrInvalidGeometry, g.BranchCapacity, need, g.bodySize())
	}
	return nil
}
