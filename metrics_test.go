package leafdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	db := setupMemory(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}

	c := NewCollector(db)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 15, testutil.CollectAndCount(c))

	expected := fmt.Sprintf(`
# HELP leafdb_entries Number of keys stored.
# TYPE leafdb_entries gauge
leafdb_entries{db=%q} 10
# HELP leafdb_tree_depth Number of levels in the tree.
# TYPE leafdb_tree_depth gauge
leafdb_tree_depth{db=%q} 1
`, db.ID().String(), db.ID().String())
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "leafdb_entries", "leafdb_tree_depth")
	assert.NoError(t, err)
}
