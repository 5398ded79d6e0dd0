package base

import (
	"encoding/binary"
	"fmt"
)

// MetaFlagCompression marks files whose values may be snappy compressed.
const MetaFlagCompression uint32 = 0x01

// MetaPrefixSize is enough of page 0 to identify the file and its page size.
const MetaPrefixSize = PageHeaderSize + metaBodySize

const metaBodySize = 96

// Meta represents database metadata stored in page 0.
//
// Layout after the page header:
// [Magic: 4][Version: 2][Reserved: 2][PageSize: 4][MaxKeySize: 4][MaxValueSize: 4]
// [LeafCapacity: 2][BranchCapacity: 2][Root: 8][FreeHead: 8][PageCount: 8]
// [Generation: 8][Entries: 8][Depth: 4][Flags: 4][FreeCount: 8][StoreID: 16]
type Meta struct {
	Magic          uint32
	Version        uint16
	PageSize       uint32
	MaxKeySize     uint32
	MaxValueSize   uint32
	LeafCapacity   uint16
	BranchCapacity uint16
	Root           PageID // 0 until the first root is written
	FreeHead       PageID // head of the free list, 0 when empty
	PageCount      uint64 // file extent in pages, meta included
	Generation     uint64 // incremented on every meta write
	Entries        uint64
	Depth          uint32 // 1 when the root is a leaf
	Flags          uint32
	FreeCount      uint64 // pages on the free list
	StoreID        [16]byte
}

// Geometry returns the page layout recorded in the meta page.
func (m *Meta) Geometry() Geometry {
	return Geometry{
		PageSize:       int(m.PageSize),
		MaxKeySize:     int(m.MaxKeySize),
		MaxValueSize:   int(m.MaxValueSize),
		LeafCapacity:   int(m.LeafCapacity),
		BranchCapacity: int(m.BranchCapacity),
	}
}

// NewMeta creates metadata for a new file.
func NewMeta(g Geometry, storeID [16]byte) Meta {
	return Meta{
		Magic:          MagicNumber,
		Version:        FormatVersion,
		PageSize:       uint32(g.PageSize),
		MaxKeySize:     uint32(g.MaxKeySize),
		MaxValueSize:   uint32(g.MaxValueSize),
		LeafCapacity:   uint16(g.LeafCapacity),
		BranchCapacity: uint16(g.BranchCapacity),
		PageCount:      1,
		StoreID:        storeID,
	}
}

// EncodeMeta writes m as page 0 into buf.
func EncodeMeta(buf []byte, m *Meta) {
	clear(buf)
	b := buf[PageHeaderSize:]
	binary.LittleEndian.PutUint32(b[0:], m.Magic)
	binary.LittleEndian.PutUint16(b[4:], m.Version)
	binary.LittleEndian.PutUint32(b[8:], m.PageSize)
	binary.LittleEndian.PutUint32(b[12:], m.MaxKeySize)
	binary.LittleEndian.PutUint32(b[16:], m.MaxValueSize)
	binary.LittleEndian.PutUint16(b[20:], m.LeafCapacity)
	binary.LittleEndian.PutUint16(b[22:], m.BranchCapacity)
	binary.LittleEndian.PutUint64(b[24:], uint64(m.Root))
	binary.LittleEndian.PutUint64(b[32:], uint64(m.FreeHead))
	binary.LittleEndian.PutUint64(b[40:], m.PageCount)
	binary.LittleEndian.PutUint64(b[48:], m.Generation)
	binary.LittleEndian.PutUint64(b[56:], m.Entries)
	binary.LittleEndian.PutUint32(b[64:], m.Depth)
	binary.LittleEndian.PutUint32(b[68:], m.Flags)
	binary.LittleEndian.PutUint64(b[72:], m.FreeCount)
	copy(b[80:96], m.StoreID[:])

	WriteHeader(buf, &PageHeader{Type: MetaPage, PageID: MetaPageID})
	Seal(buf)
}

// PeekPageSize identifies the file from the first MetaPrefixSize bytes and
// returns its page size. It fails with ErrFormat for foreign or newer files.
func PeekPageSize(prefix []byte) (int, error) {
	if len(prefix) < MetaPrefixSize {
		return 0, fmt.Errorf("%w: file too small (%d bytes)", ErrFormat, len(prefix))
	}
	b := prefix[PageHeaderSize:]
	if PageType(prefix[offType]) != MetaPage || binary.LittleEndian.Uint32(b[0:]) != MagicNumber {
		return 0, ErrInvalidMagicNumber
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != FormatVersion {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	size := int(binary.LittleEndian.Uint32(b[8:]))
	if size < MinPageSize || size > MaxPageSize || !IsPowerOfTwo(size) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}
	return size, nil
}

// DecodeMeta decodes and validates a full meta page.
func DecodeMeta(buf []byte) (Meta, error) {
	if _, err := PeekPageSize(buf); err != nil {
		return Meta{}, err
	}
	if _, err := Verify(buf, MetaPageID, MetaPage); err != nil {
		return Meta{}, err
	}

	b := buf[PageHeaderSize:]
	m := Meta{
		Magic:          binary.LittleEndian.Uint32(b[0:]),
		Version:        binary.LittleEndian.Uint16(b[4:]),
		PageSize:       binary.LittleEndian.Uint32(b[8:]),
		MaxKeySize:     binary.LittleEndian.Uint32(b[12:]),
		MaxValueSize:   binary.LittleEndian.Uint32(b[16:]),
		LeafCapacity:   binary.LittleEndian.Uint16(b[20:]),
		BranchCapacity: binary.LittleEndian.Uint16(b[22:]),
		Root:           PageID(binary.LittleEndian.Uint64(b[24:])),
		FreeHead:       PageID(binary.LittleEndian.Uint64(b[32:])),
		PageCount:      binary.LittleEndian.Uint64(b[40:]),
		Generation:     binary.LittleEndian.Uint64(b[48:]),
		Entries:        binary.LittleEndian.Uint64(b[56:]),
		Depth:          binary.LittleEndian.Uint32(b[64:]),
		Flags:          binary.LittleEndian.Uint32(b[68:]),
		FreeCount:      binary.LittleEndian.Uint64(b[72:]),
	}
	copy(m.StoreID[:], b[80:96])

	if int(m.PageSize) != len(buf) {
		return Meta{}, fmt.Errorf("%w: meta says %d, page is %d", ErrInvalidPageSize, m.PageSize, len(buf))
	}
	if err := m.Geometry().Validate(); err != nil {
		return Meta{}, Corruptf(MetaPageID, "%v", err)
	}
	if m.PageCount == 0 || uint64(m.Root) >= m.PageCount || uint64(m.FreeHead) >= m.PageCount {
		return Meta{}, Corruptf(MetaPageID, "pointers outside extent (root %d, free %d, pages %d)",
			m.Root, m.FreeHead, m.PageCount)
	}
	return m, nil
}
