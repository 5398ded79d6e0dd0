package base

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 65536

	// MagicNumber for file format identification ("leaf" in hex)
	MagicNumber uint32 = 0x6c656166

	FormatVersion uint16 = 1

	PageHeaderSize = 32 // Type(1) + Flags(1) + Count(2) + Aux(4) + PageID(8) + Next(8) + Checksum(8)

	// MetaPageID is fixed; it doubles as the "no page" sentinel in every pointer.
	MetaPageID PageID = 0
)

// PageType is the tag stored in the first byte of every page.
type PageType uint8

const (
	MetaPage     PageType = 1
	BranchPage   PageType = 2
	LeafPage     PageType = 3
	OverflowPage PageType = 4
	FreePage     PageType = 5
)

func (t PageType) String() string {
	switch t {
	case MetaPage:
		return "meta"
	case BranchPage:
		return "branch"
	case LeafPage:
		return "leaf"
	case OverflowPage:
		return "overflow"
	case FreePage:
		return "free"
	default:
		return "unknown"
	}
}

type PageID uint64

// PageHeader is the fixed-size header at the start of each page.
//
// PAGE HEADER LAYOUT (32 bytes, little-endian):
// ┌──────┬───────┬───────┬──────┬─────────┬─────────┬──────────────┐
// │ Type │ Flags │ Count │ Aux  │ PageID  │ Next    │ Checksum     │
// │  1   │   1   │   2   │  4   │   8     │   8     │   8          │
// └──────┴───────┴───────┴──────┴─────────┴─────────┴──────────────┘
//
// Count is the number of keys (branch) or entries (leaf). Aux holds the payload
// length of an overflow page. Next links overflow chains and the free list.
// Checksum is xxhash64 over the whole page with the checksum field excluded.
type PageHeader struct {
	Type   PageType
	Flags  uint8
	Count  uint16
	Aux    uint32
	PageID PageID
	Next   PageID
}

const (
	offType     = 0
	offFlags    = 1
	offCount    = 2
	offAux      = 4
	offPageID   = 8
	offNext     = 16
	offChecksum = 24
)

// WriteHeader writes h into the first PageHeaderSize bytes of buf.
func WriteHeader(buf []byte, h *PageHeader) {
	buf[offType] = byte(h.Type)
	buf[offFlags] = h.Flags
	binary.LittleEndian.PutUint16(buf[offCount:], h.Count)
	binary.LittleEndian.PutUint32(buf[offAux:], h.Aux)
	binary.LittleEndian.PutUint64(buf[offPageID:], uint64(h.PageID))
	binary.LittleEndian.PutUint64(buf[offNext:], uint64(h.Next))
}

// ReadHeader decodes the header of buf without validating it.
func ReadHeader(buf []byte) PageHeader {
	return PageHeader{
		Type:   PageType(buf[offType]),
		Flags:  buf[offFlags],
		Count:  binary.LittleEndian.Uint16(buf[offCount:]),
		Aux:    binary.LittleEndian.Uint32(buf[offAux:]),
		PageID: PageID(binary.LittleEndian.Uint64(buf[offPageID:])),
		Next:   PageID(binary.LittleEndian.Uint64(buf[offNext:])),
	}
}

// Checksum computes the page checksum, skipping the checksum field itself.
func Checksum(buf []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(buf[:offChecksum])
	_, _ = d.Write(buf[PageHeaderSize:])
	return d.Sum64()
}

// Seal stamps the checksum into a fully encoded page.
func Seal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[offChecksum:], Checksum(buf))
}

// Verify checks that buf is a sealed page of type want stored at id.
func Verify(buf []byte, id PageID, want PageType) (PageHeader, error) {
	if binary.LittleEndian.Uint64(buf[offChecksum:]) != Checksum(buf) {
		return PageHeader{}, fmt.Errorf("page %d: %w", id, ErrInvalidChecksum)
	}
	h := ReadHeader(buf)
	if h.Type != want {
		return h, fmt.Errorf("page %d: %w: got %s, want %s", id, ErrInvalidPageType, h.Type, want)
	}
	if h.PageID != id {
		return h, fmt.Errorf("page %d: %w: header says %d", id, ErrInvalidPageID, h.PageID)
	}
	return h, nil
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
