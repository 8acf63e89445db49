package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/config"
	"github.com/tendant/simple-composite/pkg/composite/httpclient"
	"github.com/tendant/simple-composite/pkg/composite/metrics"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	httpMetrics, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)

	cfg, err := config.Load(config.WithEventLogging(false), config.WithEventSinks(recorder))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := cfg.BuildService(composite.WithLogger(logger))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHTTPServer(svc, cfg, ProcessConfig{}, reg, httpMetrics, logger).Routes())
	t.Cleanup(srv.Close)
	return srv
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

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	status, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestServer_Config(t *testing.T) {
	srv := newTestServer(t)
	status, body := get(t, srv.URL+"/api/v1/config")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"database_type":"memory"`)
	assert.Contains(t, body, `"duplicate_policy":"allow"`)
}

func TestServer_BuildAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c, err := httpclient.New(srv.URL + "/api/v1")
	require.NoError(t, err)
	defer c.Close()

	leaf, err := composite.NewScalarBuilder(composite.StringValue("x")).Build(ctx, c)
	require.NoError(t, err)
	psb := composite.NewParallelStreamBuilder()
	require.NoError(t, psb.AddStream(leaf))
	ps, err := psb.Build(ctx, c)
	require.NoError(t, err)

	doc, err := c.Resolve(ctx, ps)
	require.NoError(t, err)
	assert.Equal(t, []composite.ObjectID{leaf}, doc.Members)

	status, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `composite_objects_sealed_total{type_tag="parallel_stream"} 1`)
	assert.Contains(t, body, `composite_objects_sealed_total{type_tag="scalar"} 1`)
	assert.Contains(t, body, `composite_http_request_duration_seconds_count{method="POST",route="/api/v1/objects/allocate",status="201"} 2`)
}

func TestProcessConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := ProcessConfig{LogLevel: "warn", LogFormat: "json"}.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = ProcessConfig{LogLevel: "nonsense"}.Logger(&buf)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("shown")))
	assert.NotContains(t, buf.String(), "hidden")
}
