package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pstree/config"
)

func TestEngineMetricsExposed(t *testing.T) {
	m := NewFromConfig(config.ServiceConfig{Name: "pst", Version: "v0.1.0", Environment: "test"})
	m.RegisterBuildInfo("pst", "ignored", "prod")

	m.NodesAllocated.WithLabelValues("orders").Set(31)
	m.OperationsTotal.WithLabelValues("orders", "add", "ok").Add(2)
	m.OperationDuration.WithLabelValues("orders", "add").Observe(0.0001)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues("pst", "v0.1.0", "test", runtime.Version())))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BuildInfo))
	assert.Equal(t, 31.0, testutil.ToFloat64(m.NodesAllocated.WithLabelValues("orders")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `pst_operations_total{op="add",result="ok",tree="orders"} 2`)
	assert.Contains(t, string(body), "pst_operation_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestBuildInfoDefaults(t *testing.T) {
	m := NewMetrics("pst")
	m.RegisterBuildInfo("", "", "")

	var nilMetrics *Metrics
	nilMetrics.RegisterBuildInfo("pst", "v1", "dev")

	assert.Equal(t, 1, testutil.CollectAndCount(m.BuildInfo))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues("unknown", moduleVersion(), "unknown", runtime.Version())))
}
