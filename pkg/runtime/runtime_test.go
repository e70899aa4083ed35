package runtime

import (
	"context"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1"},
		LLMs: map[string]*config.LLMConfig{
			"default": {Provider: config.LLMProviderOpenAI, APIKey: "test-key"},
		},
		Embedders: map[string]*config.EmbedderConfig{
			"default": {Provider: config.EmbedderProviderOpenAI, APIKey: "test-key"},
		},
		Databases: map[string]*config.DatabaseConfig{
			"default": {Type: config.DatabaseTypeChromem},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// freePort reserves an ephemeral port and releases it for the runtime
// to bind.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNew_NilConfig(t *testing.T) {
	rt, err := New(nil)
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestNew_BuildsRuntime(t *testing.T) {
	rt, err := New(testConfig())
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.NotNil(t, rt.Components())
	require.NoError(t, rt.Close())
}

func TestNew_ComponentFailureSurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.LLMs["default"].APIKey = ""

	rt, err := New(cfg)
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "failed to initialize components")
}

func TestRuntime_StartStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)

	rt, err := New(cfg)
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rt.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop after context cancellation")
	}
}

func TestRuntime_MetricsHandlerServesPrometheusText(t *testing.T) {
	rt, err := New(testConfig())
	require.NoError(t, err)
	defer rt.Close()

	srv := rt.newMetricsServer()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestRuntime_ApplyReloadChangesLogLevel(t *testing.T) {
	logger.Init(slog.LevelInfo, os.Stderr, "text")

	rt, err := New(testConfig())
	require.NoError(t, err)
	defer rt.Close()

	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	reloaded := testConfig()
	reloaded.Logging.Level = "debug"
	rt.applyReload(reloaded)

	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	assert.Equal(t, "debug", rt.logLevel)

	logger.SetLevel(slog.LevelInfo)
}
