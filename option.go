package leafdb

import (
	"github.com/alexhholmes/leafdb/internal/base"
	"github.com/alexhholmes/leafdb/internal/storage"
)

// SyncMode controls when database writes are fsynced to disk
type SyncMode int

const (
	// SyncEveryCommit flushes after every Put and Delete.
	// - Guarantees zero data loss on power failure
	// - Limited by fsync latency (typically 1-10ms per commit)
	// - Use for: Financial transactions, critical data
	SyncEveryCommit SyncMode = iota

	// SyncBytes flushes when at least N bytes have been written since the
	// last flush.
	// - Balances durability and performance
	// - Some data loss possible on crash (up to N bytes)
	// - Use for: General purpose applications
	SyncBytes

	// SyncOff only flushes on an explicit Flush or on Close.
	// - Maximum throughput
	// - All unflushed data lost on crash
	// - Use for: Testing, bulk imports with external durability
	SyncOff
)

func (m SyncMode) String() string {
	switch m {
	case SyncEveryCommit:
		return "every-commit"
	case SyncBytes:
		return "bytes"
	case SyncOff:
		return "off"
	default:
		return "unknown"
	}
}

// DBOptions configures database behavior.
type DBOptions struct {
	syncMode  SyncMode
	syncBytes uint64 // Number of bytes to write before fsync when SyncMode is SyncBytes.

	// Page layout, only used when a file is created
	pageSize       int
	maxKeySize     int
	maxValueSize   int
	leafCapacity   int
	branchCapacity int // 0 derives the largest capacity that fits a page
	compression    bool

	cacheSize    int     // Page cache capacity in pages. 0 disables the cache.
	bloomItems   uint    // Expected number of keys. 0 disables the filter.
	bloomFPR     float64 // Target false positive rate of the filter.
	reserveBatch int

	logger Logger
}

// DefaultDBOptions returns safe default configuration.
//
// goland:noinspection GoUnusedExportedFunction
func DefaultDBOptions() DBOptions {
	return DBOptions{
		syncMode:     SyncEveryCommit,
		syncBytes:    1024 * 1024, // 1MB
		pageSize:     base.DefaultPageSize,
		maxKeySize:   base.DefaultMaxKeySize,
		maxValueSize: base.DefaultMaxValueSize,
		leafCapacity: base.DefaultLeafCapacity,
		cacheSize:    1024, // 4MB of 4KB pages
		bloomFPR:     0.01,
		reserveBatch: storage.DefaultReserveBatch,
		logger:       DiscardLogger{},
	}
}

// geometry returns the page layout new files are created with.
func (o DBOptions) geometry() base.Geometry {
	g := base.Geometry{
		PageSize:       o.pageSize,
		MaxKeySize:     o.maxKeySize,
		MaxValueSize:   o.maxValueSize,
		LeafCapacity:   o.leafCapacity,
		BranchCapacity: o.branchCapacity,
	}
	if g.BranchCapacity == 0 {
		g.BranchCapacity = g.DefaultBranchCapacity()
	}
	return g
}

// DBOption configures database options using the functional options pattern.
type DBOption func(*DBOptions)

// WithSyncEveryCommit configures the database to fsync on every commit.
// This provides maximum durability (zero data loss) but lower throughput.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncEveryCommit() DBOption {
	return func(opts *DBOptions) {
		opts.syncMode = SyncEveryCommit
	}
}

// WithSyncBytes configures the database to fsync once at least n bytes were
// written since the last fsync.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncBytes(n uint64) DBOption {
	return func(opts *DBOptions) {
		opts.syncMode = SyncBytes
		opts.syncBytes = n
	}
}

// WithSyncOff disables fsync entirely.
// This provides maximum throughput but all unflushed data is lost on crash.
// Only use for testing or bulk loads where data can be reconstructed.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncOff() DBOption {
	return func(opts *DBOptions) {
		opts.syncMode = SyncOff
	}
}

// WithPageSize sets the page size of new files. It must be a power of two
// between 512 and 65536.
func WithPageSize(size int) DBOption {
	return func(opts *DBOptions) {
		opts.pageSize = size
	}
}

// WithMaxKeySize sets the largest key accepted by new files.
func WithMaxKeySize(size int) DBOption {
	return func(opts *DBOptions) {
		opts.maxKeySize = size
	}
}

// WithMaxValueSize sets the largest value accepted by new files.
func WithMaxValueSize(size int) DBOption {
	return func(opts *DBOptions) {
		opts.maxValueSize = size
	}
}

// WithLeafCapacity sets the maximum number of entries per leaf page.
func WithLeafCapacity(n int) DBOption {
	return func(opts *DBOptions) {
		opts.leafCapacity = n
	}
}

// WithBranchCapacity sets the maximum number of separator keys per branch
// page.
func WithBranchCapacity(n int) DBOption {
	return func(opts *DBOptions) {
		opts.branchCapacity = n
	}
}

// WithCompression snappy-compresses values too large to store inline. Only
// applies to new files.
func WithCompression(enabled bool) DBOption {
	return func(opts *DBOptions) {
		opts.compression = enabled
	}
}

// WithCacheSize sets the page cache capacity in pages. 0 disables the cache.
//
//goland:noinspection GoUnusedExportedFunction
func WithCacheSize(pages int) DBOption {
	return func(opts *DBOptions) {
		opts.cacheSize = pages
	}
}

// WithBloomFilter keeps an in-memory bloom filter of all keys, sized for
// items keys at false positive rate fpr. Lookups of absent keys that the
// filter rules out skip the tree.
func WithBloomFilter(items uint, fpr float64) DBOption {
	return func(opts *DBOptions) {
		opts.bloomItems = items
		opts.bloomFPR = fpr
	}
}

// WithLogger sets the logger. slog.Logger implements Logger directly; see
// package logger for zap and logrus adapters.
func WithLogger(logger Logger) DBOption {
	return func(opts *DBOptions) {
		if logger == nil {
			logger = DiscardLogger{}
		}
		opts.logger = logger
	}
}

func withReserveBatch(n int) DBOption {
	return func(opts *DBOptions) {
		opts.reserveBatch = n
	}
}
