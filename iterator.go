package leafdb

import (
	"bytes"
	"slices"

	"github.com/alexhholmes/leafdb/internal/btree"
)

// Range selects keys for Scan. A nil Start or End is unbounded. By default
// Start is inclusive and End exclusive.
type Range struct {
	Start          []byte
	End            []byte
	StartExclusive bool
	EndInclusive   bool
}

// belowEnd reports whether key is below the upper bound.
func (r Range) belowEnd(key []byte) bool {
	if r.End == nil {
		return true
	}
	c := bytes.Compare(key, r.End)
	return c < 0 || (c == 0 && r.EndInclusive)
}

// Iterator walks a key range in ascending order.
//
// Entries are read lazily: each Next holds the read lock only while it
// steps. A Put or Delete between two steps is tolerated; the iterator then
// re-seeks to the first key after the last one it returned, so it sees the
// mutation if it lies ahead.
//
//	it := db.Scan(leafdb.Range{Start: []byte("a"), End: []byte("b")})
//	defer it.Close()
//	for it.Next() {
//	    fmt.Printf("%s=%s\n", it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type Iterator struct {
	db     *DB
	r      Range
	cursor *btree.Cursor
	epoch  uint64
	key    []byte
	value  []byte
	err    error
	begun  bool
	done   bool
}

// Scan returns an iterator over r.
func (d *DB) Scan(r Range) *Iterator {
	return &Iterator{db: d, r: r}
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	d := it.db
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return it.stop(ErrDatabaseClosed)
	}

	var k, v []byte
	switch {
	case !it.begun:
		it.begun = true
		it.cursor = d.tree.Cursor()
		k, v = it.cursor.Seek(it.r.Start)
		if k != nil && it.r.StartExclusive && bytes.Equal(k, it.r.Start) {
			k, v = it.cursor.Next()
		}
	case it.epoch != d.epoch:
		// Pages under the cursor may have been freed and reused
		k, v = it.cursor.Seek(it.key)
		if k != nil && bytes.Equal(k, it.key) {
			k, v = it.cursor.Next()
		}
	default:
		k, v = it.cursor.Next()
	}
	it.epoch = d.epoch

	if err := it.cursor.Err(); err != nil {
		return it.stop(d.fail("scan", err))
	}
	if k == nil || !it.r.belowEnd(k) {
		return it.stop(nil)
	}

	it.key = slices.Clone(k)
	it.value = slices.Clone(v)
	return true
}

// Key returns the current key. It is valid until the next call to Next.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value. It is valid until the next call to Next.
func (it *Iterator) Value() []byte {
	return it.value
}

// Err returns the error that ended the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator. Further calls to Next return false.
func (it *Iterator) Close() {
	if !it.done {
		it.done = true
		it.err = nil
	}
	it.cursor = nil
	it.key, it.value = nil, nil
}

func (it *Iterator) stop(err error) bool {
	it.done = true
	it.err = err
	it.cursor = nil
	it.key, it.value = nil, nil
	return false
}
