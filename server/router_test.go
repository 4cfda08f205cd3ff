package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/lattice/cache"
	"github.com/wyfcoding/lattice/config"
	"github.com/wyfcoding/lattice/health"
	"github.com/wyfcoding/lattice/limiter"
	"github.com/wyfcoding/lattice/logging"
	"github.com/wyfcoding/lattice/metrics"
	"github.com/wyfcoding/lattice/middleware"
	"github.com/wyfcoding/lattice/service"
	"github.com/wyfcoding/lattice/xerrors"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
	Detail string          `json:"detail"`
}

func newTestRouter(t *testing.T, l limiter.Limiter) *gin.Engine {
	t.Helper()
	c, err := cache.NewBigCache(context.Background(), time.Minute, 0, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	cfg := config.Default()
	logger := logging.NewWithWriter(io.Discard, "test", "server")
	m := metrics.NewMetrics("test")
	return NewRouter(RouterDeps{
		Config:  cfg,
		Pricer:  service.NewPricingService(cfg.Pricing, c, m, logger),
		Metrics: m,
		Limiter: l,
		Logger:  logger,
		Version: "test",
	})
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	engine := newTestRouter(t, nil)
	rec, _ := do(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderXRequestID))
}

func TestPriceLatticeEndpoint(t *testing.T) {
	engine := newTestRouter(t, nil)
	rec, env := do(t, engine, http.MethodPost, "/v1/lattice/price", map[string]any{
		"initial_price": 100, "up": 1.1, "down": 0.9, "rate": 0.02,
		"strike": 105, "maturity": 2, "option_type": "PUT", "style": "AMERICAN",
		"include_lattice": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, env.Code)

	var res service.LatticeResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.InDelta(t, 7.266435986159170, res.Price, 1e-9)
	assert.Equal(t, "7.2664", res.Quote.String())
	assert.Len(t, res.Lattice, 3)
}

func TestPriceLatticeEndpointRejectsArbitrage(t *testing.T) {
	engine := newTestRouter(t, nil)
	rec, env := do(t, engine, http.MethodPost, "/v1/lattice/price", map[string]any{
		"initial_price": 100, "up": 1, "down": 2, "strike": 100, "maturity": 1, "option_type": "CALL",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, xerrors.CodeInvalidParameters, env.Code)
	assert.NotEmpty(t, env.Detail)
}

func TestApproximateEndpoint(t *testing.T) {
	engine := newTestRouter(t, nil)
	body := map[string]any{
		"initial_price": 105, "volatility": 0.3, "risk_free_rate": 0.1,
		"strike": 100, "maturity": 0.5, "option_type": "CALL", "timesteps": 1000,
	}
	rec, env := do(t, engine, http.MethodPost, "/v1/continuous/price", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.ApproximateResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.InDelta(t, 14.287, res.Price, 2e-3)
	require.NotNil(t, res.Reference)
	assert.False(t, res.Cached)

	_, env = do(t, engine, http.MethodPost, "/v1/continuous/price", body)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Cached)
}

func TestApproximateEndpointValidation(t *testing.T) {
	engine := newTestRouter(t, nil)

	rec, env := do(t, engine, http.MethodPost, "/v1/continuous/price", map[string]any{
		"initial_price": 105, "volatility": 0.3, "strike": 100, "maturity": 0.5, "option_type": "CALL", "timesteps": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, xerrors.CodeInvalidParameters, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/continuous/price", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	engine.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestConvergenceEndpoint(t *testing.T) {
	engine := newTestRouter(t, nil)
	rec, env := do(t, engine, http.MethodPost, "/v1/continuous/convergence", map[string]any{
		"initial_price": 105, "volatility": 0.3, "risk_free_rate": 0.1,
		"strike": 100, "maturity": 0.5, "option_type": "CALL", "steps": []int{100, 10},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.ConvergenceResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 10, res.Rows[0].Timesteps)
	assert.Equal(t, 100, res.Rows[1].Timesteps)
	assert.True(t, res.Rows[1].HasReference)
}

func TestRateLimit(t *testing.T) {
	engine := newTestRouter(t, limiter.NewLocalLimiter(rate.Every(time.Hour), 1))
	body := map[string]any{
		"initial_price": 100, "up": 1.2, "down": 0.8, "strike": 100, "maturity": 1, "option_type": "CALL",
	}

	rec, _ := do(t, engine, http.MethodPost, "/v1/lattice/price", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, engine, http.MethodPost, "/v1/lattice/price", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, xerrors.CodeRateLimited, env.Code)

	// 健康检查不受限流影响
	rec, _ = do(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestRouter(t, nil)
	do(t, engine, http.MethodPost, "/v1/lattice/price", map[string]any{
		"initial_price": 100, "up": 1.2, "down": 0.8, "strike": 100, "maturity": 1, "option_type": "CALL",
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lattice_pricing_requests_total{operation="lattice",status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `http_server_requests_total{method="POST",path="/v1/lattice/price",status="200"} 1`)
}

func TestNoRoute(t *testing.T) {
	engine := newTestRouter(t, nil)
	rec, env := do(t, engine, http.MethodGet, "/v2/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

type panicPricer struct{ Pricer }

func (panicPricer) PriceLattice(context.Context, service.LatticeRequest) (*service.LatticeResult, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	engine := NewRouter(RouterDeps{
		Config: config.Default(),
		Pricer: panicPricer{},
		Logger: logging.NewWithWriter(io.Discard, "test", "server"),
	})
	rec, env := do(t, engine, http.MethodPost, "/v1/lattice/price", map[string]any{
		"initial_price": 100, "up": 1.2, "down": 0.8, "strike": 100, "maturity": 1, "option_type": "CALL",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, env.Code)
}

func TestReady(t *testing.T) {
	cfg := config.Default()
	logger := logging.NewWithWriter(io.Discard, "test", "server")
	checks := health.NewRegistry(time.Second)
	engine := NewRouter(RouterDeps{
		Config: cfg,
		Pricer: service.NewPricingService(cfg.Pricing, nil, nil, logger),
		Health: checks,
		Logger: logger,
	})

	rec, _ := do(t, engine, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checks.Register("upstream", func(context.Context) error { return assert.AnError })
	rec, _ = do(t, engine, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"upstream"`)
	assert.Contains(t, rec.Body.String(), `"status":"down"`)
}
