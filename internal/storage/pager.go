package storage

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alexhholmes/leafdb/internal/base"
	"github.com/alexhholmes/leafdb/internal/cache"
)

// DefaultReserveBatch is how many pages Allocate pops from the persistent free
// list at a time.
const DefaultReserveBatch = 64

var ErrPagerClosed = errors.New("pager is closed")

// Options configures a Pager. Geometry, Compression and StoreID only apply
// when the file is created; an existing file keeps what its meta page says.
type Options struct {
	Geometry     base.Geometry
	Compression  bool
	StoreID      [16]byte
	CacheSize    int // pages, 0 disables the cache
	ReserveBatch int
}

// Pager hands out fixed-size pages of a File. It owns page 0 and the free
// list, and tracks which freed pages are safe to reuse.
//
// Crash safety comes from ordering, not logging. Tree pages are written to
// pages no durable root can reach; Flush syncs them before the meta page
// that publishes the new root, and only then recycles the pages the old
// root used. A crash at any point can leak pages but never loses or
// corrupts data reachable from the durable root.
type Pager struct {
	mu      sync.RWMutex
	file    File
	geo     base.Geometry
	meta    base.Meta // working state, published by Flush
	durable base.Meta // last meta page known to be on stable storage
	free    *freeList
	cache   *cache.Cache
	batch   int
	created bool
	dirty   bool
	closed  bool
	zero    []byte

	// Stats counters
	reads    atomic.Uint64
	writes   atomic.Uint64
	syncs    atomic.Uint64
	allocs   atomic.Uint64
	frees    atomic.Uint64
	written  atomic.Uint64
	unsynced atomic.Uint64
}

// Open loads the meta page of file, or formats file if it is empty.
func Open(file File, opts Options) (*Pager, error) {
	size, err := file.Size()
	if err != nil {
		return nil, ioError("stat", err)
	}

	c, err := cache.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	p := &Pager{
		file:  file,
		free:  newFreeList(),
		cache: c,
		batch: opts.ReserveBatch,
	}
	if p.batch <= 0 {
		p.batch = DefaultReserveBatch
	}

	if size == 0 {
		err = p.create(opts)
	} else {
		err = p.load(size)
	}
	if err != nil {
		return nil, err
	}
	p.zero = make([]byte, p.geo.PageSize)
	return p, nil
}

func (p *Pager) create(opts Options) error {
	if err := opts.Geometry.Validate(); err != nil {
		return err
	}
	p.geo = opts.Geometry
	p.meta = base.NewMeta(opts.Geometry, opts.StoreID)
	if opts.Compression {
		p.meta.Flags |= base.MetaFlagCompression
	}
	if err := p.writeMeta(&p.meta); err != nil {
		return err
	}
	if err := p.sync(); err != nil {
		return err
	}
	p.durable = p.meta
	p.created = true
	return nil
}

func (p *Pager) load(size int64) error {
	prefix := make([]byte, min(size, base.MetaPrefixSize))
	if err := p.readFull(prefix, 0); err != nil {
		return err
	}
	pageSize, err := base.PeekPageSize(prefix)
	if err != nil {
		return err
	}
	if size < int64(pageSize) {
		return base.Corruptf(base.MetaPageID, "file holds %d bytes, page size is %d", size, pageSize)
	}

	buf := make([]byte, pageSize)
	if err := p.readFull(buf, 0); err != nil {
		return err
	}
	meta, err := base.DecodeMeta(buf)
	if err != nil {
		return err
	}
	if want := int64(meta.PageCount) * int64(pageSize); size < want {
		return base.Corruptf(base.MetaPageID, "file holds %d bytes, meta claims %d pages", size, meta.PageCount)
	}

	p.meta = meta
	p.durable = meta
	p.geo = meta.Geometry()
	return nil
}

// Created reports whether Open formatted a new file.
func (p *Pager) Created() bool {
	return p.created
}

// Geometry returns the page layout of the file.
func (p *Pager) Geometry() base.Geometry {
	return p.geo
}

// Meta returns a copy of the working meta state.
func (p *Pager) Meta() base.Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta
}

// Read returns the image of page id. The returned slice may be shared with
// the cache and must not be modified.
func (p *Pager) Read(id base.PageID) ([]byte, error) {
	p.mu.RLock()
	count, closed := p.meta.PageCount, p.closed
	p.mu.RUnlock()

	if closed {
		return nil, ErrPagerClosed
	}
	if id == base.MetaPageID || uint64(id) >= count {
		return nil, fmt.Errorf("%w: page %d outside file extent (%d pages)", base.ErrCorruption, id, count)
	}

	if buf, ok := p.cache.Get(id); ok {
		return buf, nil
	}

	buf := make([]byte, p.geo.PageSize)
	if err := p.readFull(buf, p.offset(id)); err != nil {
		return nil, err
	}
	p.cache.Put(id, buf)
	return buf, nil
}

// Write stores a full page image at id.
func (p *Pager) Write(id base.PageID, buf []byte) error {
	if len(buf) != p.geo.PageSize {
		return fmt.Errorf("%w: page %d: partial page write (%d of %d bytes)", base.ErrIO, id, len(buf), p.geo.PageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	if id == base.MetaPageID || uint64(id) >= p.meta.PageCount {
		return fmt.Errorf("%w: page %d outside file extent (%d pages)", base.ErrCorruption, id, p.meta.PageCount)
	}
	if err := p.writePage(id, buf); err != nil {
		p.cache.Invalidate(id)
		return err
	}
	p.cache.Put(id, slices.Clone(buf))
	p.dirty = true
	return nil
}

// Allocate returns a page that is safe to overwrite. Pages freed since the
// last flush are reused first, then the persistent free list, then the file
// grows by one page.
func (p *Pager) Allocate() (base.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPagerClosed
	}

	id, ok := p.free.take()
	if !ok && p.meta.FreeHead != 0 {
		if err := p.reserve(); err != nil {
			return 0, err
		}
		id, ok = p.free.take()
	}

	if !ok {
		id = base.PageID(p.meta.PageCount)
		if err := p.writePage(id, p.zero); err != nil {
			return 0, err
		}
		p.meta.PageCount++
		p.free.markFresh(id)
	}

	p.allocs.Add(1)
	p.dirty = true
	return id, nil
}

// reserve pops a batch of pages off the persistent free list. The shortened
// list is made durable before any of the pages can be handed out, so a crash
// never leaves a reused page on the on-disk free list.
func (p *Pager) reserve() error {
	var ids []base.PageID
	head := p.meta.FreeHead
	for len(ids) < p.batch && head != 0 {
		if uint64(head) >= p.meta.PageCount || p.free.contains(head) || slices.Contains(ids, head) {
			return base.Corruptf(head, "free list loops or leaves the file")
		}
		next, err := p.readFree(head)
		if err != nil {
			return err
		}
		ids = append(ids, head)
		head = next
	}

	m := p.durable
	m.FreeHead = head
	m.FreeCount = saturatingSub(m.FreeCount, uint64(len(ids)))
	if err := p.writeMeta(&m); err != nil {
		return err
	}
	if err := p.sync(); err != nil {
		return err
	}

	p.durable = m
	p.meta.FreeHead = m.FreeHead
	p.meta.FreeCount = m.FreeCount
	p.meta.Generation = m.Generation
	p.free.reserve(ids)
	return nil
}

// Free releases page id. It becomes reusable immediately if it was allocated
// since the last flush, otherwise after the next flush.
func (p *Pager) Free(id base.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	if id == base.MetaPageID || uint64(id) >= p.meta.PageCount {
		return fmt.Errorf("%w: free of page %d outside file extent (%d pages)", base.ErrCorruption, id, p.meta.PageCount)
	}
	if p.free.contains(id) {
		return base.Corruptf(id, "double free")
	}

	p.cache.Invalidate(id)
	p.free.release(id)
	p.frees.Add(1)
	p.dirty = true
	return nil
}

// SetRoot records the tree shape to publish at the next flush.
func (p *Pager) SetRoot(root base.PageID, depth uint32, entries uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.meta.Root = root
	p.meta.Depth = depth
	p.meta.Entries = entries
	p.dirty = true
}

// Flush makes every write since the previous flush durable and publishes the
// working meta state.
//
// Phase one syncs the data pages, then writes and syncs the meta page with
// the new root. Phase two threads the pages released during the epoch onto
// the persistent free list, syncs them, then writes and syncs the meta page
// again with the new free head.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	if !p.dirty {
		return nil
	}

	if err := p.sync(); err != nil {
		return err
	}
	if err := p.writeMeta(&p.meta); err != nil {
		return err
	}
	if err := p.sync(); err != nil {
		return err
	}
	p.durable = p.meta

	if ids := p.free.drain(); len(ids) > 0 {
		buf := make([]byte, p.geo.PageSize)
		head := p.meta.FreeHead
		for _, id := range ids {
			clear(buf)
			base.EncodeFree(buf, id, head)
			if err := p.writePage(id, buf); err != nil {
				return err
			}
			head = id
		}
		if err := p.sync(); err != nil {
			return err
		}

		p.meta.FreeHead = head
		p.meta.FreeCount += uint64(len(ids))
		if err := p.writeMeta(&p.meta); err != nil {
			return err
		}
		if err := p.sync(); err != nil {
			return err
		}
		p.durable = p.meta
	}

	p.dirty = false
	p.unsynced.Store(0)
	return nil
}

// Unsynced returns the number of bytes written since the last flush.
func (p *Pager) Unsynced() uint64 {
	return p.unsynced.Load()
}

// FreePages lists every page on the persistent free list and every page
// released since the last flush.
func (p *Pager) FreePages() ([]base.PageID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := p.free.pages()
	seen := make(map[base.PageID]struct{}, len(out))
	for _, id := range out {
		seen[id] = struct{}{}
	}

	for head := p.meta.FreeHead; head != 0; {
		if uint64(head) >= p.meta.PageCount {
			return nil, base.Corruptf(head, "free list leaves the file (%d pages)", p.meta.PageCount)
		}
		if _, dup := seen[head]; dup {
			return nil, base.Corruptf(head, "free list loops")
		}
		seen[head] = struct{}{}
		out = append(out, head)

		next, err := p.readFree(head)
		if err != nil {
			return nil, err
		}
		head = next
	}
	return out, nil
}

// Close closes the underlying file without flushing.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	p.closed = true
	p.cache.Purge()
	if err := p.file.Close(); err != nil {
		return ioError("close", err)
	}
	return nil
}

type Stats struct {
	Reads          uint64
	Writes         uint64
	Syncs          uint64
	Allocations    uint64
	Frees          uint64
	BytesWritten   uint64
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
	PageCount      uint64
	FreePages      uint64
	Generation     uint64
}

// Stats returns pager statistics
func (p *Pager) Stats() Stats {
	p.mu.RLock()
	meta, pending := p.meta, p.free.size()
	p.mu.RUnlock()

	cs := p.cache.Stats()
	return Stats{
		Reads:          p.reads.Load(),
		Writes:         p.writes.Load(),
		Syncs:          p.syncs.Load(),
		Allocations:    p.allocs.Load(),
		Frees:          p.frees.Load(),
		BytesWritten:   p.written.Load(),
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		CacheEvictions: cs.Evictions,
		PageCount:      meta.PageCount,
		FreePages:      meta.FreeCount + uint64(pending),
		Generation:     meta.Generation,
	}
}

func (p *Pager) offset(id base.PageID) int64 {
	return int64(id) * int64(p.geo.PageSize)
}

// readFree reads a free-list page directly, bypassing the cache.
func (p *Pager) readFree(id base.PageID) (base.PageID, error) {
	buf := make([]byte, p.geo.PageSize)
	if err := p.readFull(buf, p.offset(id)); err != nil {
		return 0, err
	}
	return base.DecodeFree(buf, id)
}

func (p *Pager) readFull(buf []byte, off int64) error {
	p.reads.Add(1)
	n, err := p.file.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read at offset %d: got %d bytes, expected %d",
			base.ErrCorruption, off, n, len(buf))
	}
	return ioError("read", err)
}

func (p *Pager) writePage(id base.PageID, buf []byte) error {
	p.writes.Add(1)
	n, err := p.file.WriteAt(buf, p.offset(id))
	p.written.Add(uint64(n))
	p.unsynced.Add(uint64(n))
	if err != nil {
		return ioError("write", err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short write to page %d: wrote %d bytes, expected %d", base.ErrIO, id, n, len(buf))
	}
	return nil
}

func (p *Pager) writeMeta(m *base.Meta) error {
	m.Generation++
	buf := make([]byte, m.PageSize)
	base.EncodeMeta(buf, m)
	return p.writePage(base.MetaPageID, buf)
}

func (p *Pager) sync() error {
	p.syncs.Add(1)
	if err := p.file.Sync(); err != nil {
		return ioError("sync", err)
	}
	return nil
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", base.ErrIO, op, err)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
