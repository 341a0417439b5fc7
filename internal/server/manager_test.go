package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/internal/metrics"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ReadHeaderTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestNewManager_NotRunningBeforeStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), nil)
	assert.False(t, m.IsRunning())
	assert.Equal(t, ":9091", m.Addr())
}

func startMetrics(t *testing.T, reg *prometheus.Registry) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewMetricsManager(reg, cfg, zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsManager_ServesCollectorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector("srv", reg, nil)
	c.RecordWorkflowRun("wf", "success", time.Second)

	m := startMetrics(t, reg)
	assert.True(t, m.IsRunning())

	code, body := get(t, "http://"+m.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `srv_workflow_runs_total{status="success",workflow="wf"} 1`)

	code, body = get(t, "http://"+m.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestManager_StartTwiceAndAfterShutdown(t *testing.T) {
	m := startMetrics(t, prometheus.NewRegistry())
	assert.ErrorContains(t, m.Start(), "already started")

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "shutdown is idempotent")
	assert.False(t, m.IsRunning())
	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_ListenFailure(t *testing.T) {
	first := startMetrics(t, prometheus.NewRegistry())

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager(http.NewServeMux(), cfg, nil)
	assert.ErrorContains(t, second.Start(), "failed to listen")
}
