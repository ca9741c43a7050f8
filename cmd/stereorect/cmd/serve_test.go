package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/config"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 9000
	cfg.Server.CORSOrigin = "https://example.com"
	cfg.Server.MaxUploadMB = 12
	cfg.Server.TimeoutSec = 7
	cfg.Server.RateLimitPerMinute = 30
	cfg.Server.DailyUploadMB = 500
	cfg.Rectify.View = "inside"

	sc, err := buildServerConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9000, sc.Port)
	assert.Equal(t, "https://example.com", sc.CORSOrigin)
	assert.Equal(t, int64(12), sc.MaxUploadMB)
	assert.Equal(t, 7, sc.TimeoutSec)
	assert.Equal(t, 30, sc.RateLimitPerMinute)
	assert.Equal(t, int64(500), sc.DailyUploadMB)
	assert.Equal(t, epipolar.ViewInside, sc.RectifyConfig.View)

	cfg.Resample.Border = "mirror"
	_, err = buildServerConfig(&cfg)
	require.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRunServerShutsDownOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	sc, err := buildServerConfig(&cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, sc, 2*time.Second) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", sc.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServerListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port
	sc, err := buildServerConfig(&cfg)
	require.NoError(t, err)

	err = runServer(context.Background(), sc, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}
