package storage

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/leafdb/internal/base"
)

var _ = flag.Bool("slow", false, "run slow tests")

func testOptions() Options {
	return Options{
		Geometry:  base.DefaultGeometry(),
		StoreID:   [16]byte{1, 2, 3},
		CacheSize: 32,
	}
}

func setupPager(t *testing.T) (*Pager, *MemFile) {
	t.Helper()

	file := NewMemFile()
	p, err := Open(file, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p, file
}

func reopen(t *testing.T, p *Pager, file *MemFile) *Pager {
	t.Helper()

	require.NoError(t, p.Close())
	require.NoError(t, file.Open())
	p, err := Open(file, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func leafPage(t *testing.T, p *Pager, id base.PageID, key, value string) []byte {
	t.Helper()

	node := &base.Node{
		PageID: id,
		Leaf:   true,
		Keys:   [][]byte{[]byte(key)},
		Values: []base.ValueRef{{Inline: []byte(value), Length: uint32(len(value))}},
	}
	buf := make([]byte, p.Geometry().PageSize)
	require.NoError(t, node.Encode(buf))
	return buf
}

func TestPagerCreate(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)
	assert.True(t, p.Created())
	assert.Equal(t, base.DefaultGeometry(), p.Geometry())

	meta := p.Meta()
	assert.Equal(t, uint64(1), meta.PageCount)
	assert.Equal(t, base.PageID(0), meta.Root)
	assert.Equal(t, base.PageID(0), meta.FreeHead)
	assert.Equal(t, [16]byte{1, 2, 3}, meta.StoreID)

	size, err := file.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(base.DefaultPageSize), size)
}

func TestPagerReopen(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id)

	require.NoError(t, p.Write(id, leafPage(t, p, id, "k", "v")))
	p.SetRoot(id, 1, 1)
	require.NoError(t, p.Flush())

	p = reopen(t, p, file)
	assert.False(t, p.Created())

	meta := p.Meta()
	assert.Equal(t, id, meta.Root)
	assert.Equal(t, uint32(1), meta.Depth)
	assert.Equal(t, uint64(1), meta.Entries)
	assert.Equal(t, uint64(2), meta.PageCount)

	buf, err := p.Read(id)
	require.NoError(t, err)
	node, err := base.DecodeLeaf(buf, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("k"), node.Keys[0])
	assert.Equal(t, []byte("v"), node.Values[0].Inline)
}

func TestPagerUnflushedRootIsLost(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Write(id, leafPage(t, p, id, "a", "1")))
	p.SetRoot(id, 1, 1)
	require.NoError(t, p.Flush())

	// Second root written but never flushed
	next, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Write(next, leafPage(t, p, next, "b", "2")))
	p.SetRoot(next, 1, 1)

	p = reopen(t, p, file)
	assert.Equal(t, id, p.Meta().Root)

	buf, err := p.Read(id)
	require.NoError(t, err)
	_, err = base.DecodeLeaf(buf, id)
	require.NoError(t, err)
}

func TestPagerAllocateGrowsFile(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)
	for i := 1; i <= 5; i++ {
		id, err := p.Allocate()
		require.NoError(t, err)
		assert.Equal(t, base.PageID(i), id)
	}
	assert.Equal(t, uint64(6), p.Meta().PageCount)

	size, err := file.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(6*base.DefaultPageSize), size)
}

func TestPagerFreshPageReusedImmediately(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Free(id))

	again, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, id, again, "page allocated in this epoch should be reused")
	assert.Equal(t, uint64(2), p.Meta().PageCount)
}

func TestPagerDurablePageReusedAfterFlush(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Write(id, leafPage(t, p, id, "a", "1")))
	p.SetRoot(id, 1, 1)
	require.NoError(t, p.Flush())

	// id is reachable from the durable root until the next flush
	require.NoError(t, p.Free(id))
	other, err := p.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	require.NoError(t, p.Write(other, leafPage(t, p, other, "a", "2")))
	p.SetRoot(other, 1, 1)
	require.NoError(t, p.Flush())

	meta := p.Meta()
	assert.Equal(t, id, meta.FreeHead)
	assert.Equal(t, uint64(1), meta.FreeCount)

	reused, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, id, reused)
	assert.Equal(t, uint64(3), p.Meta().PageCount)
}

func TestPagerFreeListSurvivesReopen(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)

	var ids []base.PageID
	for range 3 {
		id, err := p.Allocate()
		require.NoError(t, err)
		require.NoError(t, p.Write(id, leafPage(t, p, id, "k", "v")))
		ids = append(ids, id)
	}
	require.NoError(t, p.Flush())
	for _, id := range ids {
		require.NoError(t, p.Free(id))
	}
	require.NoError(t, p.Flush())

	p = reopen(t, p, file)
	meta := p.Meta()
	assert.Equal(t, uint64(3), meta.FreeCount)

	free, err := p.FreePages()
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, free)

	var got []base.PageID
	for range 3 {
		id, err := p.Allocate()
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.ElementsMatch(t, ids, got)
	assert.Equal(t, uint64(4), p.Meta().PageCount, "file must not grow while free pages exist")

	// The reservation was persisted before the pages were handed out
	assert.Equal(t, base.PageID(0), p.Meta().FreeHead)
	assert.Equal(t, uint64(0), p.Meta().FreeCount)
}

func TestPagerReservedPagesReturnedOnFlush(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	var ids []base.PageID
	for range 4 {
		id, err := p.Allocate()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, p.Flush())
	for _, id := range ids {
		require.NoError(t, p.Free(id))
	}
	require.NoError(t, p.Flush())

	// Reserves the whole chain but uses one page
	_, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.Meta().FreeCount)

	require.NoError(t, p.Flush())
	assert.Equal(t, uint64(3), p.Meta().FreeCount)

	free, err := p.FreePages()
	require.NoError(t, err)
	assert.Len(t, free, 3)
}

func TestPagerDoubleFree(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Flush())
	require.NoError(t, p.Free(id))

	err = p.Free(id)
	assert.ErrorIs(t, err, base.ErrCorruption)
}

func TestPagerOutOfExtent(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	_, err := p.Read(5)
	assert.ErrorIs(t, err, base.ErrCorruption)

	_, err = p.Read(base.MetaPageID)
	assert.ErrorIs(t, err, base.ErrCorruption)

	err = p.Free(5)
	assert.ErrorIs(t, err, base.ErrCorruption)

	err = p.Write(5, make([]byte, base.DefaultPageSize))
	assert.ErrorIs(t, err, base.ErrCorruption)
}

func TestPagerPartialWrite(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)

	err = p.Write(id, make([]byte, 100))
	assert.ErrorIs(t, err, base.ErrIO)
}

func TestPagerCorruptMeta(t *testing.T) {
	t.Parallel()

	p, file := setupPager(t)
	require.NoError(t, p.Close())

	// Flip a byte in the meta body past the identifying prefix
	file.Corrupt(int64(base.PageHeaderSize+40), []byte{0xff})
	require.NoError(t, file.Open())

	_, err := Open(file, testOptions())
	assert.ErrorIs(t, err, base.ErrCorruption)
}

func TestPagerFormatErrors(t *testing.T) {
	t.Parallel()

	t.Run("TooSmall", func(t *testing.T) {
		t.Parallel()

		file := NewMemFile()
		_, err := file.WriteAt([]byte("not a database"), 0)
		require.NoError(t, err)

		_, err = Open(file, testOptions())
		assert.ErrorIs(t, err, base.ErrFormat)
	})

	t.Run("ForeignFile", func(t *testing.T) {
		t.Parallel()

		file := NewMemFile()
		junk := make([]byte, base.DefaultPageSize)
		for i := range junk {
			junk[i] = byte(i * 7)
		}
		_, err := file.WriteAt(junk, 0)
		require.NoError(t, err)

		_, err = Open(file, testOptions())
		assert.ErrorIs(t, err, base.ErrFormat)
	})

	t.Run("NewerVersion", func(t *testing.T) {
		t.Parallel()

		p, file := setupPager(t)
		require.NoError(t, p.Close())
		file.Corrupt(int64(base.PageHeaderSize+4), []byte{0x09, 0x00})
		require.NoError(t, file.Open())

		_, err := Open(file, testOptions())
		assert.ErrorIs(t, err, base.ErrInvalidVersion)
		assert.ErrorIs(t, err, base.ErrFormat)
	})
}

func TestPagerInvalidGeometry(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Geometry.LeafCapacity = 1
	_, err := Open(NewMemFile(), opts)
	assert.ErrorIs(t, err, base.ErrInvalidGeometry)
}

func TestPagerCompressionFlag(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Compression = true
	p, err := Open(NewMemFile(), opts)
	require.NoError(t, err)
	defer p.Close()

	assert.NotZero(t, p.Meta().Flags&base.MetaFlagCompression)
}

func TestPagerStats(t *testing.T) {
	t.Parallel()

	p, _ := setupPager(t)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Write(id, leafPage(t, p, id, "k", "v")))
	_, err = p.Read(id)
	require.NoError(t, err)
	p.SetRoot(id, 1, 1)
	require.NoError(t, p.Flush())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Allocations)
	assert.Equal(t, uint64(1), stats.CacheHits, "write-through should populate the cache")
	assert.GreaterOrEqual(t, stats.Syncs, uint64(2))
	assert.Equal(t, uint64(2), stats.PageCount)
	assert.Greater(t, stats.BytesWritten, uint64(0))
	assert.Equal(t, uint64(0), p.Unsynced())
}

func TestPagerClosed(t *testing.T) {
	t.Parallel()

	p, err := Open(NewMemFile(), testOptions())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Allocate()
	assert.ErrorIs(t, err, ErrPagerClosed)
	_, err = p.Read(1)
	assert.ErrorIs(t, err, ErrPagerClosed)
	assert.ErrorIs(t, p.Close(), ErrPagerClosed)
}

func TestMemFileLifecycle(t *testing.T) {
	t.Parallel()

	file := NewMemFile()
	assert.ErrorIs(t, file.Open(), ErrFileAlreadyOpened)
	require.NoError(t, file.Close())
	assert.ErrorIs(t, file.Close(), ErrFileNotOpened)

	_, err := file.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrFileNotOpened)
	require.NoError(t, file.Open())
}

func TestOSFileLocking(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")

	f, err := CreateFile(path)
	require.NoError(t, err)

	_, err = CreateFile(path)
	assert.ErrorIs(t, err, ErrFileAlreadyExists)

	_, err = OpenFile(path)
	assert.ErrorIs(t, err, ErrFileAlreadyOpened)

	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Close(), ErrFileNotOpened)

	f, err = OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	p, err := Open(f, testOptions())
	require.NoError(t, err)
	assert.True(t, p.Created())
}
