package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pstree/algorithm"
	"github.com/wyfcoding/pstree/config"
	"github.com/wyfcoding/pstree/xerrors"
)

func TestNewWiresTreeOptions(t *testing.T) {
	conf := &config.Config{
		Service: config.ServiceConfig{Name: "kth-index", Version: "v1.2.0", Environment: "test"},
		Log:     config.LogConfig{Level: "info"},
		Metrics: config.MetricsConfig{Enabled: true},
		Tree: config.TreeConfig{
			MaxNodes:         19,
			BatchConcurrency: 2,
			QueryCache:       config.QueryCacheConfig{Enabled: true, MaxMB: 4},
		},
	}
	b, err := New(conf)
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.Metrics)

	opts, err := TreeOptions[int64](b, "orders")
	require.NoError(t, err)
	tree, err := algorithm.NewPersistentSegmentTree[int64](8, algorithm.Int64Sum{}, opts...)
	require.NoError(t, err)
	assert.Equal(t, "orders", tree.Name())

	// 15 个节点建树，再一次更新用满 19 个节点
	_, err = tree.Add(0, 3, 1)
	require.NoError(t, err)
	_, err = tree.Add(1, 4, 1)
	assert.ErrorIs(t, err, xerrors.ErrOutOfMemory)

	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.OperationsTotal.WithLabelValues("orders", "add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.OperationsTotal.WithLabelValues("orders", "add", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(b.Metrics.BuildInfo))

	reader, err := CachedReader(b, tree)
	require.NoError(t, err)
	defer reader.Close()
	got, err := reader.Query(context.Background(), 1, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	sums, err := algorithm.BatchQuery(context.Background(), tree, []algorithm.RangeRequest{
		{Version: 0, Lo: 1, Hi: 8},
		{Version: 1, Lo: 3, Hi: 3},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, sums)
}

func TestNewWithoutMetrics(t *testing.T) {
	b, err := New(&config.Config{Service: config.ServiceConfig{Name: "plain"}})
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Metrics)

	opts, err := TreeOptions[int64](b, "plain")
	require.NoError(t, err)
	_, err = algorithm.NewPersistentSegmentTree[int64](4, algorithm.Int64Sum{}, opts...)
	assert.NoError(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[service]
name = "distinct-index"

[metrics]
enabled = true
port = "0"

[tree]
memory_budget = "1MiB"
`), 0o600))

	b, err := Load(path)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "distinct-index", b.Config.Service.Name)
	assert.Equal(t, "dev", b.Config.Service.Environment)
	require.NotNil(t, b.Metrics)

	_, err = TreeOptions[int64](b, "distinct")
	assert.NoError(t, err)

	b.Config.Tree.MemoryBudget = "a lot"
	_, err = TreeOptions[int64](b, "distinct")
	assert.Error(t, err)
}
