package base

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// LEAF PAGE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Header (32 bytes), Count = number of entries                        │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Entry[0]: KeyLen(2) | Key | Kind(1) | ValueLen(4) | Value or Head(8)│
// ├─────────────────────────────────────────────────────────────────────┤
// │ ...                                                                 │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Entry[N-1]                                                          │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Unused (zero)                                                       │
// └─────────────────────────────────────────────────────────────────────┘
//
// BRANCH PAGE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Header (32 bytes), Count = number of separator keys                 │
// ├─────────────────────────────────────────────────────────────────────┤
// │ KeyLen(2) | Key[0] | KeyLen(2) | Key[1] | ... | Key[N-1]            │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Children[0..N] (8 bytes each)                                       │
// └─────────────────────────────────────────────────────────────────────┘
//
// OVERFLOW PAGE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Header (32 bytes), Aux = payload length, Next = next overflow page  │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Payload                                                             │
// └─────────────────────────────────────────────────────────────────────┘
//
// FREE PAGE LAYOUT: header only, Next = next free page. The body is garbage.

const (
	kindOverflow   uint8 = 0x01
	kindCompressed uint8 = 0x02
	kindMask             = kindOverflow | kindCompressed
)

// EncodeLeaf writes a leaf page for n into buf, which must be one page long.
func EncodeLeaf(buf []byte, n *Node) error {
	if len(n.Keys) != len(n.Values) || len(n.Keys) > maxCountField {
		return fmt.Errorf("%w: leaf %d has %d keys and %d values", ErrPageOverflow, n.PageID, len(n.Keys), len(n.Values))
	}
	clear(buf)
	off := PageHeaderSize
	for i, key := range n.Keys {
		v := n.Values[i]
		size := 2 + len(key) + 1 + 4
		if v.IsOverflow() {
			size += overflowRefSize
		} else {
			size += len(v.Inline)
		}
		if off+size > len(buf) {
			return fmt.Errorf("%w: leaf %d needs more than %d bytes", ErrPageOverflow, n.PageID, len(buf))
		}

		binary.LittleEndian.PutUint16(buf[off:], uint16(len(key)))
		off += 2
		off += copy(buf[off:], key)

		var kind uint8
		if v.IsOverflow() {
			kind |= kindOverflow
		}
		if v.Compressed {
			kind |= kindCompressed
		}
		buf[off] = kind
		off++

		if v.IsOverflow() {
			binary.LittleEndian.PutUint32(buf[off:], v.Length)
			off += 4
			binary.LittleEndian.PutUint64(buf[off:], uint64(v.Overflow))
			off += overflowRefSize
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(v.Inline)))
			off += 4
			off += copy(buf[off:], v.Inline)
		}
	}

	WriteHeader(buf, &PageHeader{
		Type:   LeafPage,
		Count:  uint16(len(n.Keys)),
		PageID: n.PageID,
	})
	Seal(buf)
	return nil
}

// DecodeLeaf decodes and validates a leaf page. Keys and inline values are copied.
func DecodeLeaf(buf []byte, id PageID) (*Node, error) {
	h, err := Verify(buf, id, LeafPage)
	if err != nil {
		return nil, err
	}

	n := &Node{
		PageID: id,
		Leaf:   true,
		Keys:   make([][]byte, 0, h.Count),
		Values: make([]ValueRef, 0, h.Count),
	}

	r := reader{buf: buf, off: PageHeaderSize, id: id}
	for i := 0; i < int(h.Count); i++ {
		key := r.key()
		kind := r.u8()
		length := r.u32()
		if r.err != nil {
			return nil, r.err
		}
		if kind&^kindMask != 0 {
			return nil, Corruptf(id, "entry %d: unknown value kind %#x", i, kind)
		}
		if i > 0 && bytes.Compare(n.Keys[i-1], key) >= 0 {
			return nil, Corruptf(id, "entry %d: keys out of order", i)
		}

		v := ValueRef{Compressed: kind&kindCompressed != 0}
		if kind&kindOverflow != 0 {
			v.Length = length
			v.Overflow = PageID(r.u64())
			if r.err == nil && (v.Overflow == MetaPageID || v.Overflow == id) {
				return nil, Corruptf(id, "entry %d: invalid overflow head %d", i, v.Overflow)
			}
		} else {
			v.Inline = r.bytes(int(length))
			v.Length = length
		}
		if r.err != nil {
			return nil, r.err
		}

		n.Keys = append(n.Keys, key)
		n.Values = append(n.Values, v)
	}
	return n, nil
}

// EncodeBranch writes a branch page for n into buf, which must be one page long.
func EncodeBranch(buf []byte, n *Node) error {
	if len(n.Keys) == 0 || len(n.Children) != len(n.Keys)+1 || len(n.Keys) > maxCountField {
		return fmt.Errorf("%w: branch %d has %d keys and %d children", ErrPageOverflow, n.PageID, len(n.Keys), len(n.Children))
	}
	clear(buf)
	off := PageHeaderSize
	size := len(n.Children) * 8
	for _, key := range n.Keys {
		size += 2 + len(key)
	}
	if off+size > len(buf) {
		return fmt.Errorf("%w: branch %d needs %d bytes, page has %d", ErrPageOverflow, n.PageID, off+size, len(buf))
	}

	for _, key := range n.Keys {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(key)))
		off += 2
		off += copy(buf[off:], key)
	}
	for _, child := range n.Children {
		binary.LittleEndian.PutUint64(buf[off:], uint64(child))
		off += 8
	}

	WriteHeader(buf, &PageHeader{
		Type:   BranchPage,
		Count:  uint16(len(n.Keys)),
		PageID: n.PageID,
	})
	Seal(buf)
	return nil
}

// DecodeBranch decodes and validates a branch page. Keys are copied.
func DecodeBranch(buf []byte, id PageID) (*Node, error) {
	h, err := Verify(buf, id, BranchPage)
	if err != nil {
		return nil, err
	}
	if h.Count == 0 {
		return nil, Corruptf(id, "branch without keys")
	}

	n := &Node{
		PageID:   id,
		Keys:     make([][]byte, 0, h.Count),
		Children: make([]PageID, 0, int(h.Count)+1),
	}

	r := reader{buf: buf, off: PageHeaderSize, id: id}
	for i := 0; i < int(h.Count); i++ {
		key := r.key()
		if r.err != nil {
			return nil, r.err
		}
		if i > 0 && bytes.Compare(n.Keys[i-1], key) >= 0 {
			return nil, Corruptf(id, "separator %d out of order", i)
		}
		n.Keys = append(n.Keys, key)
	}
	for i := 0; i <= int(h.Count); i++ {
		child := PageID(r.u64())
		if r.err != nil {
			return nil, r.err
		}
		if child == MetaPageID || child == id {
			return nil, Corruptf(id, "child %d: invalid pointer %d", i, child)
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// EncodeOverflow writes one link of an overflow chain.
func EncodeOverflow(buf []byte, id PageID, payload []byte, next PageID) error {
	if len(payload) > len(buf)-PageHeaderSize {
		return fmt.Errorf("%w: overflow payload %d exceeds %d", ErrPageOverflow, len(payload), len(buf)-PageHeaderSize)
	}
	clear(buf)
	copy(buf[PageHeaderSize:], payload)
	WriteHeader(buf, &PageHeader{
		Type:   OverflowPage,
		Aux:    uint32(len(payload)),
		PageID: id,
		Next:   next,
	})
	Seal(buf)
	return nil
}

// DecodeOverflow returns the payload (aliasing buf) and the next page in the chain.
func DecodeOverflow(buf []byte, id PageID) ([]byte, PageID, error) {
	h, err := Verify(buf, id, OverflowPage)
	if err != nil {
		return nil, 0, err
	}
	if int(h.Aux) > len(buf)-PageHeaderSize {
		return nil, 0, fmt.Errorf("page %d: %w: payload length %d", id, ErrInvalidOffset, h.Aux)
	}
	if h.Next == id {
		return nil, 0, Corruptf(id, "overflow page links to itself")
	}
	return buf[PageHeaderSize : PageHeaderSize+int(h.Aux)], h.Next, nil
}

// EncodeFree writes a free-list page pointing at next.
func EncodeFree(buf []byte, id PageID, next PageID) {
	// The body is left as is: freed pages are not zeroed.
	WriteHeader(buf, &PageHeader{
		Type:   FreePage,
		PageID: id,
		Next:   next,
	})
	Seal(buf)
}

// DecodeFree returns the next free page after id.
func DecodeFree(buf []byte, id PageID) (PageID, error) {
	h, err := Verify(buf, id, FreePage)
	if err != nil {
		return 0, err
	}
	if h.Next == id {
		return 0, Corruptf(id, "free page links to itself")
	}
	return h.Next, nil
}

// reader is a bounds-checked cursor over a page body. The first failure sticks.
type reader struct {
	buf []byte
	off int
	id  PageID
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("page %d: %w: need %d bytes at %d", r.id, ErrInvalidOffset, n, r.off)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) key() []byte {
	n := int(r.u16())
	if r.err == nil && n == 0 {
		r.err = Corruptf(r.id, "empty key at offset %d", r.off)
		return nil
	}
	return r.bytes(n)
}
