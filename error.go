package leafdb

import (
	"errors"

	"github.com/alexhholmes/leafdb/internal/base"
	"github.com/alexhholmes/leafdb/internal/storage"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrDatabaseClosed = errors.New("database is closed")

	// Error categories, match with errors.Is
	ErrIO           = base.ErrIO
	ErrCorruption   = base.ErrCorruption
	ErrFormat       = base.ErrFormat
	ErrPageOverflow = base.ErrPageOverflow

	ErrKeyEmpty           = base.ErrKeyEmpty
	ErrKeyTooLarge        = base.ErrKeyTooLarge
	ErrValueTooLarge      = base.ErrValueTooLarge
	ErrInvalidOffset      = base.ErrInvalidOffset
	ErrInvalidChecksum    = base.ErrInvalidChecksum
	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidGeometry    = base.ErrInvalidGeometry

	ErrFileAlreadyOpened = storage.ErrFileAlreadyOpened
	ErrFileAlreadyExists = storage.ErrFileAlreadyExists
	ErrFileNotOpened     = storage.ErrFileNotOpened
)
