package storage

import (
	"slices"

	"github.com/alexhholmes/leafdb/internal/base"
)

// freeList tracks the in-memory side of page reuse between flushes.
//
// A page is fresh if it was allocated after the last flush. No durable root
// can reach a fresh page, so freeing one makes it ready for reuse at once.
// Freeing any other page parks it in pending: the last durable root may
// still point at it, so it only becomes reusable after the flush that makes
// a root without it durable.
//
// ready also holds pages reserved from the persistent chain. Reserved pages
// are already off the chain on disk, so they are pushed back at flush if
// they were not used.
type freeList struct {
	fresh   map[base.PageID]struct{}
	members map[base.PageID]struct{} // ready and pending
	ready   []base.PageID
	pending []base.PageID
}

func newFreeList() *freeList {
	return &freeList{
		fresh:   make(map[base.PageID]struct{}),
		members: make(map[base.PageID]struct{}),
	}
}

// take pops a ready page and marks it fresh.
func (f *freeList) take() (base.PageID, bool) {
	if len(f.ready) == 0 {
		return 0, false
	}
	id := f.ready[len(f.ready)-1]
	f.ready = f.ready[:len(f.ready)-1]
	delete(f.members, id)
	f.fresh[id] = struct{}{}
	return id, true
}

func (f *freeList) markFresh(id base.PageID) {
	f.fresh[id] = struct{}{}
}

// release frees a page.
func (f *freeList) release(id base.PageID) {
	f.members[id] = struct{}{}
	if _, ok := f.fresh[id]; ok {
		delete(f.fresh, id)
		f.ready = append(f.ready, id)
		return
	}
	f.pending = append(f.pending, id)
}

// reserve adds pages popped from the persistent chain.
func (f *freeList) reserve(ids []base.PageID) {
	for _, id := range ids {
		f.members[id] = struct{}{}
	}
	f.ready = append(f.ready, ids...)
}

// drain returns every page that must go back on the persistent chain and
// starts a new epoch.
func (f *freeList) drain() []base.PageID {
	out := make([]base.PageID, 0, len(f.ready)+len(f.pending))
	out = append(out, f.ready...)
	out = append(out, f.pending...)
	slices.Sort(out)
	f.ready = f.ready[:0]
	f.pending = f.pending[:0]
	clear(f.fresh)
	clear(f.members)
	return out
}

func (f *freeList) contains(id base.PageID) bool {
	_, ok := f.members[id]
	return ok
}

func (f *freeList) size() int {
	return len(f.ready) + len(f.pending)
}

// pages returns a copy of all in-memory free pages.
func (f *freeList) pages() []base.PageID {
	out := make([]base.PageID, 0, f.size())
	out = append(out, f.ready...)
	return append(out, f.pending...)
}
