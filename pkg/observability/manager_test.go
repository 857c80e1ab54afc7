package observability

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/snow-ghost/autotune/pkg/logging"
	"github.com/snow-ghost/autotune/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Logging: logging.Config{Level: "error", Format: "json", Output: filepath.Join(t.TempDir(), "obs.log")},
		Tracing: tracing.Config{ServiceName: "autotune-test"},
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNewManager(t *testing.T) {
	m, err := NewManager(testConfig(t))
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	assert.NotNil(t, m.GetLogger())
	assert.NotNil(t, m.GetTracer())
	m.GetMetrics().RecordGeneration(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GetMetrics().GenerationsTotal))

	count, err := testutil.GatherAndCount(m.GetRegistry(), "autotune_generations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewManager_ServesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = freeAddr(t)
	m, err := NewManager(cfg)
	require.NoError(t, err)
	m.GetMetrics().RuleApplied("auto_inline")

	url := fmt.Sprintf("http://%s/metrics", cfg.MetricsAddr)
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, `autotune_rule_applications_total{rule="auto_inline"} 1`))

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNewManager_BadLogOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Output = filepath.Join(t.TempDir(), "missing", "obs.log")
	_, err := NewManager(cfg)
	assert.Error(t, err)
}
