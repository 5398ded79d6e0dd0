package test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/leafdb"
)

func pattern(size int) []byte {
	value := make([]byte, size)
	for i := range value {
		value[i] = byte('A' + (i % 26))
	}
	return value
}

func get(t *testing.T, db *leafdb.DB, key string) []byte {
	t.Helper()

	value, ok, err := db.Get([]byte(key))
	require.NoError(t, err, "Failed to read %s", key)
	require.True(t, ok, "%s not found", key)
	return value
}

func TestOverflowBasicWriteRead(t *testing.T) {
	t.Parallel()

	db, _ := setup(t)

	// Larger than any inline value
	largeValue := pattern(5 * 1024)
	require.NoError(t, db.Put([]byte("overflow-key"), largeValue), "Failed to write overflow value")
	assert.Equal(t, largeValue, get(t, db, "overflow-key"), "Overflow value mismatch")
}

func TestOverflowLargeValue(t *testing.T) {
	t.Parallel()

	db, _ := setup(t)

	largeValue := make([]byte, 1<<20)
	for i := range largeValue {
		largeValue[i] = byte(i % 251)
	}
	require.NoError(t, db.Put([]byte("large-overflow-key"), largeValue))

	retrieved := get(t, db, "large-overflow-key")
	assert.Equal(t, len(largeValue), len(retrieved), "Large overflow value length mismatch")
	assert.Equal(t, largeValue, retrieved, "Large overflow value content mismatch")

	report, err := db.Check()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.OverflowPages, (1<<20)/4096)
}

func TestOverflowUpdate(t *testing.T) {
	t.Parallel()

	db, _ := setup(t)
	key := "update-key"

	require.NoError(t, db.Put([]byte(key), pattern(10000)))
	first, err := db.Check()
	require.NoError(t, err)

	// Larger, then back to small, then back to overflow
	require.NoError(t, db.Put([]byte(key), pattern(30000)))
	assert.Equal(t, pattern(30000), get(t, db, key))

	require.NoError(t, db.Put([]byte(key), []byte("small")))
	assert.Equal(t, []byte("small"), get(t, db, key))
	report, err := db.Check()
	require.NoError(t, err)
	assert.Zero(t, report.OverflowPages)

	require.NoError(t, db.Put([]byte(key), pattern(10000)))
	report, err = db.Check()
	require.NoError(t, err)
	assert.Equal(t, first.OverflowPages, report.OverflowPages)
	assert.Equal(t, uint64(1), db.Len())
}

func TestOverflowDelete(t *testing.T) {
	t.Parallel()

	db, _ := setup(t)
	require.NoError(t, db.Put([]byte("a"), pattern(20000)))
	require.NoError(t, db.Put([]byte("b"), pattern(20000)))

	existed, err := db.Delete([]byte("a"))
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, pattern(20000), get(t, db, "b"))

	report, err := db.Check()
	require.NoError(t, err)
	assert.Zero(t, report.Leaked)
	assert.Greater(t, report.FreePages, 0)
}

func TestOverflowCursorIteration(t *testing.T) {
	t.Parallel()

	db, _ := setup(t, leafdb.WithSyncOff())
	want := map[string][]byte{}
	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("key%02d", i)
		size := 10
		if i%3 == 0 {
			size = 9000 + i
		}
		want[key] = pattern(size)
		require.NoError(t, db.Put([]byte(key), want[key]))
	}

	it := db.Scan(leafdb.Range{})
	defer it.Close()
	n := 0
	for it.Next() {
		assert.Equal(t, want[string(it.Key())], it.Value(), string(it.Key()))
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 30, n)
}

func TestOverflowPersistence(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			t.Parallel()

			db, _ := setup(t, leafdb.WithCompression(compress))
			for i := 0; i < 5; i++ {
				require.NoError(t, db.Put([]byte(fmt.Sprintf("key%d", i)), pattern(7000*(i+1))))
			}

			db = reopen(t, db)
			for i := 0; i < 5; i++ {
				assert.Equal(t, pattern(7000*(i+1)), get(t, db, fmt.Sprintf("key%d", i)))
			}
			_, err := db.Check()
			require.NoError(t, err)
		})
	}
}
