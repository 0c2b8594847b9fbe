package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/config"
	"github.com/kilianp07/consolidation/core/factory"
)

func TestNewDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Shadow.Audit.Path = t.TempDir() + "/shadow.jsonl"
	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })

	require.NotNil(t, svc.Audit)
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/shadow/config", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewUnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store = factory.ModuleConfig{Type: "cassandra"}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
