// Package leafdb is an embedded key-value store kept as a copy-on-write
// B+Tree in a single file of fixed-size pages.
package leafdb

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alexhholmes/leafdb/internal/base"
	"github.com/alexhholmes/leafdb/internal/btree"
	"github.com/alexhholmes/leafdb/internal/storage"
)

// CheckReport is the result of DB.Check.
type CheckReport = btree.CheckReport

// DB is an open store.
//
// CONCURRENCY: Get, Has, Scan steps, Stats and Check share a read lock.
// Put, Delete, Flush and Close take the write lock, so there is a single
// writer at a time and no reader observes a half-applied mutation.
type DB struct {
	mu     sync.RWMutex
	path   string
	pager  *storage.Pager
	tree   *btree.Tree
	filter *filter
	opts   DBOptions
	log    Logger
	id     uuid.UUID

	epoch   uint64      // Bumped by every mutation, iterators re-seek when it moves
	corrupt atomic.Bool // Set once corruption was seen, refuses mutation
	closed  bool        // Database closed flag
}

// Open opens the store at path, creating it if it does not exist. The page
// layout options only apply when the file is created; an existing file keeps
// the layout recorded in it.
func Open(path string, options ...DBOption) (*DB, error) {
	file, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return openFile(file, path, options...)
}

// OpenMemory opens a store kept entirely in memory.
func OpenMemory(options ...DBOption) (*DB, error) {
	return openFile(storage.NewMemFile(), ":memory:", options...)
}

func openFile(file storage.File, path string, options ...DBOption) (*DB, error) {
	// Apply options
	opts := DefaultDBOptions()
	for _, opt := range options {
		opt(&opts)
	}
	log := withFields(opts.logger, "path", path)

	id := uuid.New()
	pager, err := storage.Open(file, storage.Options{
		Geometry:     opts.geometry(),
		Compression:  opts.compression,
		StoreID:      id,
		CacheSize:    opts.cacheSize,
		ReserveBatch: opts.reserveBatch,
	})
	if err != nil {
		_ = file.Close()
		log.Error("failed to open database", "error", err)
		return nil, err
	}

	meta := pager.Meta()
	geo := pager.Geometry()
	if pager.Created() {
		log.Info("created database",
			"page_size", geo.PageSize,
			"leaf_capacity", geo.LeafCapacity,
			"branch_capacity", geo.BranchCapacity,
			"compression", opts.compression)
	} else {
		id = uuid.UUID(meta.StoreID)
		if want := opts.geometry(); want != geo {
			log.Warn("ignoring page layout options, file was created with a different layout",
				"page_size", geo.PageSize,
				"leaf_capacity", geo.LeafCapacity,
				"branch_capacity", geo.BranchCapacity)
		}
		log.Info("opened database",
			"id", id,
			"entries", meta.Entries,
			"depth", meta.Depth,
			"pages", meta.PageCount,
			"generation", meta.Generation)
	}

	tree, err := btree.Open(pager, btree.State{
		Root:    meta.Root,
		Depth:   meta.Depth,
		Entries: meta.Entries,
	}, btree.Options{
		Geometry:    geo,
		Compression: meta.Flags&base.MetaFlagCompression != 0,
	})
	if err != nil {
		_ = pager.Close()
		log.Error("failed to open tree", "error", err)
		return nil, err
	}

	// A new empty root must be durable before the first mutation
	if meta.Root == 0 {
		if err := pager.Flush(); err != nil {
			_ = pager.Close()
			return nil, err
		}
	}

	d := &DB{
		path:  path,
		pager: pager,
		tree:  tree,
		opts:  opts,
		log:   log,
		id:    id,
	}

	if opts.bloomItems > 0 {
		if err := d.buildFilter(); err != nil {
			_ = pager.Close()
			return nil, err
		}
	}
	return d, nil
}

// buildFilter loads every key into a new bloom filter.
func (d *DB) buildFilter() error {
	f := newFilter(max(d.opts.bloomItems, uint(d.tree.Len())), d.opts.bloomFPR)
	c := d.tree.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		f.add(k)
	}
	if err := c.Err(); err != nil {
		d.log.Error("failed to build bloom filter", "error", err)
		return err
	}
	d.filter = f
	return nil
}

// Get returns the value stored under key and whether it exists. The returned
// slice is owned by the caller.
func (d *DB) Get(key []byte) ([]byte, bool, error) {
	if err := d.checkKey(key); err != nil {
		return nil, false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, false, ErrDatabaseClosed
	}
	if !d.filter.mayContain(key) {
		return nil, false, nil
	}

	value, ok, err := d.tree.Get(key)
	if err != nil {
		return nil, false, d.fail("get", err)
	}
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

// Has reports whether key exists without reading its value.
func (d *DB) Has(key []byte) (bool, error) {
	if err := d.checkKey(key); err != nil {
		return false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false, ErrDatabaseClosed
	}
	if !d.filter.mayContain(key) {
		return false, nil
	}

	ok, err := d.tree.Has(key)
	if err != nil {
		return false, d.fail("has", err)
	}
	return ok, nil
}

// Put stores value under key, replacing any previous value.
func (d *DB) Put(key, value []byte) error {
	if err := d.checkKey(key); err != nil {
		return err
	}
	if len(value) > d.pager.Geometry().MaxValueSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(value), d.pager.Geometry().MaxValueSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(); err != nil {
		return err
	}
	if err := d.tree.Put(key, value); err != nil {
		return d.fail("put", err)
	}
	d.filter.add(key)
	d.epoch++
	return d.maybeSync()
}

// Delete removes key and reports whether it existed.
func (d *DB) Delete(key []byte) (bool, error) {
	if err := d.checkKey(key); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(); err != nil {
		return false, err
	}
	found, err := d.tree.Delete(key)
	if err != nil {
		return false, d.fail("delete", err)
	}
	if !found {
		return false, nil
	}
	d.epoch++
	return true, d.maybeSync()
}

// Flush makes every mutation so far durable.
func (d *DB) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(); err != nil {
		return err
	}
	return d.pager.Flush()
}

// Close flushes and closes the store. Mutations of a session that saw
// corruption are not flushed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDatabaseClosed
	}
	d.closed = true

	var errs []error
	if d.corrupt.Load() {
		d.log.Warn("closing corrupted database without flush")
	} else if err := d.pager.Flush(); err != nil {
		d.log.Error("failed to flush on close", "error", err)
		errs = append(errs, err)
	}
	if err := d.pager.Close(); err != nil {
		errs = append(errs, err)
	}

	d.log.Info("closed database", "entries", d.tree.Len())
	return errors.Join(errs...)
}

// Len returns the number of entries.
func (d *DB) Len() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree.Len()
}

// ID returns the identifier assigned to the store when it was created.
func (d *DB) ID() uuid.UUID {
	return d.id
}

// Path returns the path the store was opened from.
func (d *DB) Path() string {
	return d.path
}

// Check verifies the structure of the whole tree and its free list.
func (d *DB) Check() (CheckReport, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return CheckReport{}, ErrDatabaseClosed
	}
	free, err := d.pager.FreePages()
	if err != nil {
		return CheckReport{}, d.fail("check", err)
	}
	report, err := d.tree.Check(free, d.pager.Meta().PageCount)
	if err != nil {
		return report, d.fail("check", err)
	}
	return report, nil
}

// Stats holds database statistics.
type Stats struct {
	Entries        uint64
	Depth          uint32
	PageSize       int
	PageCount      uint64
	FreePages      uint64
	Generation     uint64
	Reads          uint64
	Writes         uint64
	Syncs          uint64
	Allocations    uint64
	Frees          uint64
	BytesWritten   uint64
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
	FilterSkips    uint64
}

// Stats returns database statistics
func (d *DB) Stats() Stats {
	d.mu.RLock()
	entries, depth := d.tree.Len(), d.tree.Depth()
	d.mu.RUnlock()

	ps := d.pager.Stats()
	return Stats{
		Entries:        entries,
		Depth:          depth,
		PageSize:       d.pager.Geometry().PageSize,
		PageCount:      ps.PageCount,
		FreePages:      ps.FreePages,
		Generation:     ps.Generation,
		Reads:          ps.Reads,
		Writes:         ps.Writes,
		Syncs:          ps.Syncs,
		Allocations:    ps.Allocations,
		Frees:          ps.Frees,
		BytesWritten:   ps.BytesWritten,
		CacheHits:      ps.CacheHits,
		CacheMisses:    ps.CacheMisses,
		CacheEvictions: ps.CacheEvictions,
		FilterSkips:    d.filter.skipped(),
	}
}

func (d *DB) checkKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if limit := d.pager.Geometry().MaxKeySize; len(key) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrKeyTooLarge, len(key), limit)
	}
	return nil
}

// writable must be called with the write lock held.
func (d *DB) writable() error {
	if d.closed {
		return ErrDatabaseClosed
	}
	if d.corrupt.Load() {
		return fmt.Errorf("%w: database must be reopened", ErrCorruption)
	}
	return nil
}

// fail records corruption so later mutations are refused.
func (d *DB) fail(op string, err error) error {
	if errors.Is(err, ErrCorruption) && d.corrupt.CompareAndSwap(false, true) {
		d.log.Error("corruption detected, refusing further writes", "op", op, "error", err)
	}
	return err
}

// maybeSync flushes according to the sync mode. Called with the write lock
// held after a successful mutation.
func (d *DB) maybeSync() error {
	switch d.opts.syncMode {
	case SyncEveryCommit:
		return d.pager.Flush()
	case SyncBytes:
		if d.pager.Unsynced() >= d.opts.syncBytes {
			return d.pager.Flush()
		}
	}
	return nil
}
