package leafdb

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// filter is a bloom filter over every key ever put in this session. Deletes
// are not removed, they only cost a false positive. A nil filter admits
// every key.
type filter struct {
	bf   *bloom.BloomFilter
	skip atomic.Uint64
}

func newFilter(items uint, fpr float64) *filter {
	return &filter{bf: bloom.NewWithEstimates(items, fpr)}
}

// add must be called with the write lock held.
func (f *filter) add(key []byte) {
	if f == nil {
		return
	}
	f.bf.Add(key)
}

// mayContain reports false only if key was never added.
func (f *filter) mayContain(key []byte) bool {
	if f == nil {
		return true
	}
	if f.bf.Test(key) {
		return true
	}
	f.skip.Add(1)
	return false
}

func (f *filter) skipped() uint64 {
	if f == nil {
		return 0
	}
	return f.skip.Load()
}
