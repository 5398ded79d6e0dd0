package base

import (
	"errors"
	"fmt"
)

// Error categories. Every error produced by the engine wraps exactly one of these.
var (
	ErrIO           = errors.New("i/o error")
	ErrCorruption   = errors.New("data corruption detected")
	ErrFormat       = errors.New("unsupported file format")
	ErrPageOverflow = errors.New("page overflow")
)

var (
	ErrInvalidOffset      = fmt.Errorf("%w: invalid offset: out of bounds", ErrCorruption)
	ErrInvalidChecksum    = fmt.Errorf("%w: invalid checksum", ErrCorruption)
	ErrInvalidPageType    = fmt.Errorf("%w: unexpected page type", ErrCorruption)
	ErrInvalidPageID      = fmt.Errorf("%w: page id mismatch", ErrCorruption)
	ErrInvalidMagicNumber = fmt.Errorf("%w: invalid magic number", ErrFormat)
	ErrInvalidVersion     = fmt.Errorf("%w: invalid format version", ErrFormat)
	ErrInvalidPageSize    = fmt.Errorf("%w: invalid page size", ErrFormat)
	ErrInvalidGeometry    = errors.New("invalid page geometry")
	ErrKeyEmpty           = errors.New("key cannot be empty")
	ErrKeyTooLarge        = fmt.Errorf("%w: key too large", ErrPageOverflow)
	ErrValueTooLarge      = fmt.Errorf("%w: value too large", ErrPageOverflow)
)

// Corruptf returns an ErrCorruption-wrapping error for page id.
func Corruptf(id PageID, format string, args ...any) error {
	return fmt.Errorf("%w: page %d: %s", ErrCorruption, id, fmt.Sprintf(format, args...))
}
