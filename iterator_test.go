package leafdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it *Iterator) []string {
	t.Helper()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Err())
	return keys
}

func keyRange(from, to int) []string {
	var keys []string
	for i := from; i <= to; i++ {
		keys = append(keys, fmt.Sprintf("%04d", i))
	}
	return keys
}

func TestScanRanges(t *testing.T) {
	t.Parallel()

	db := setupMemory(t, WithLeafCapacity(4))
	for i := 1; i <= 1000; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("%04d", i)), []byte(fmt.Sprintf("v%d", i))))
	}

	tests := []struct {
		name string
		r    Range
		want []string
	}{
		{"everything", Range{}, keyRange(1, 1000)},
		{"inclusive start exclusive end", Range{Start: []byte("0010"), End: []byte("0020")}, keyRange(10, 19)},
		{"inclusive end", Range{Start: []byte("0010"), End: []byte("0020"), EndInclusive: true}, keyRange(10, 20)},
		{"exclusive start", Range{Start: []byte("0010"), End: []byte("0020"), StartExclusive: true}, keyRange(11, 19)},
		{"open start", Range{End: []byte("0005")}, keyRange(1, 4)},
		{"open end", Range{Start: []byte("0995")}, keyRange(995, 1000)},
		{"start between keys", Range{Start: []byte("0010a"), End: []byte("0013")}, keyRange(11, 12)},
		{"empty", Range{Start: []byte("0500"), End: []byte("0500")}, nil},
		{"inverted", Range{Start: []byte("0600"), End: []byte("0500")}, nil},
		{"past the end", Range{Start: []byte("2000")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := db.Scan(tt.r)
			defer it.Close()
			assert.Equal(t, tt.want, collect(t, it))
		})
	}
}

func TestScanValues(t *testing.T) {
	t.Parallel()

	db := setupMemory(t)
	big := make([]byte, 20000)
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, db.Put([]byte("a"), []byte("small")))
	require.NoError(t, db.Put([]byte("b"), big))
	require.NoError(t, db.Put([]byte("c"), nil))

	it := db.Scan(Range{})
	defer it.Close()

	require.True(t, it.Next())
	assert.Equal(t, []byte("small"), it.Value())
	require.True(t, it.Next())
	assert.Equal(t, big, it.Value())
	require.True(t, it.Next())
	assert.Empty(t, it.Value())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestScanWithConcurrentMutation(t *testing.T) {
	t.Parallel()

	db := setupMemory(t, WithLeafCapacity(4))
	for i := 0; i < 100; i += 2 {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("%04d", i)), []byte("v")))
	}

	it := db.Scan(Range{})
	defer it.Close()

	var seen []string
	for it.Next() {
		k := string(it.Key())
		seen = append(seen, k)

		switch k {
		case "0010":
			// Behind the iterator: not visited
			require.NoError(t, db.Put([]byte("0005"), []byte("v")))
			// Ahead of the iterator: visited
			require.NoError(t, db.Put([]byte("0051"), []byte("v")))
			// Deleted before it is reached
			_, err := db.Delete([]byte("0060"))
			require.NoError(t, err)
		case "0020":
			// The current key itself goes away
			_, err := db.Delete([]byte("0020"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, it.Err())

	assert.NotContains(t, seen, "0005")
	assert.Contains(t, seen, "0051")
	assert.NotContains(t, seen, "0060")
	assert.Contains(t, seen, "0022")
	assert.IsIncreasing(t, seen)
	assert.Len(t, seen, 50)
}

func TestScanClose(t *testing.T) {
	t.Parallel()

	db := setupMemory(t)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	it := db.Scan(Range{})
	require.True(t, it.Next())
	it.Close()
	assert.False(t, it.Next())
	assert.Nil(t, it.Key())
	assert.NoError(t, it.Err())
}
