package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nebula-labs/nebula/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHealth(t *testing.T) {
	s := New(Config{Gatherer: prometheus.NewRegistry()}, zap.NewNop())

	code, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "healthy", payload["status"])
}

func TestReady(t *testing.T) {
	var notReady error = errors.New("index not loaded")
	s := New(Config{
		Gatherer: prometheus.NewRegistry(),
		Ready:    func() error { return notReady },
	}, nil)

	code, body := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "index not loaded")

	notReady = nil
	code, body = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ready"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SyncOutcome(metrics.OutcomeSuccess)

	s := New(Config{Gatherer: reg}, nil)
	code, body := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `nebula_sync_bundles_total{outcome="success"} 1`), body)
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeListenError(t *testing.T) {
	s := New(Config{Addr: "256.0.0.1:bad"}, nil)
	err := s.Serve(context.Background())
	assert.Error(t, err)
}
