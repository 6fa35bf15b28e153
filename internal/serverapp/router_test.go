package serverapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moalmanac-api/internal/config"
	"moalmanac-api/internal/testutil/almanacdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func stubMux() *http.ServeMux {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux := http.NewServeMux()
	mux.Handle("GET /health", ok)
	mux.Handle("GET /genes", ok)
	mux.Handle("GET /genes/{id}", ok)
	return mux
}

func TestHTTPRootSpanName(t *testing.T) {
	mux := stubMux()
	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{name: "static", method: http.MethodGet, path: "/health", want: "GET /health"},
		{name: "list", method: http.MethodGet, path: "/genes?gene=BRAF", want: "GET /genes"},
		{name: "wildcard", method: http.MethodGet, path: "/genes/12", want: "GET /genes/{id}"},
		{name: "unknown", method: http.MethodGet, path: "/users/123", want: "GET /*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			assert.Equal(t, tt.want, httpRootSpanName(mux, req))
		})
	}
	assert.Equal(t, "HTTP /*", httpRootSpanName(mux, nil))
}

func TestWrapHTTPHandler_UsesRoutePatternSpanName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
	})

	cfg := &config.Config{
		Observability: config.ObservabilityConfig{
			TracingEnabled: true,
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), stubMux())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/genes/7", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "GET /genes/{id}")
}

func TestWrapHTTPHandler_RateLimitExemptsProbes(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitEnabled: true,
			RateLimitRPS:     0.001,
			RateLimitBurst:   1,
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), stubMux())

	serve := func(path string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("/genes"))
	assert.Equal(t, http.StatusTooManyRequests, serve("/genes"))
	assert.Equal(t, http.StatusNoContent, serve("/health"))
	assert.Equal(t, http.StatusNoContent, serve("/health"))
}

func TestWrapHTTPHandler_CORSPreflight(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			CORSEnabled:        true,
			CORSAllowedOrigins: []string{"https://moalmanac.org"},
			CORSAllowedMethods: []string{"GET", "OPTIONS"},
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), stubMux())

	req := httptest.NewRequest(http.MethodOptions, "/genes", nil)
	req.Header.Set("Origin", "https://moalmanac.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://moalmanac.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestHealthHandler(t *testing.T) {
	db := almanacdb.NewTestDB(t)
	health := healthHandler(db, time.Second)

	rec := httptest.NewRecorder()
	health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())

	require.NoError(t, db.Close())
	rec = httptest.NewRecorder()
	health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","database":"failed"}`, rec.Body.String())
}
