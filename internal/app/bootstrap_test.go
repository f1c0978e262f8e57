package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/api/handlers"
	"aura.dev/aura/internal/api/middleware"
	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Store:    config.StoreConfig{Mode: config.StoreModeAppend, WriteTimeout: 5 * time.Second},
		Worker:   config.WorkerConfig{GeneralPoolSize: 2, ResolvePoolSize: 2},
		Resolver: config.ResolverConfig{
			LateArrivalThresholdHours: 12,
			ShadowStockGapHours:       6,
			CriticalStockThreshold:    30,
			ReorderThreshold:          50,
			HighConfidenceThreshold:   0.85,
		},
		Gate: config.GateConfig{MinReliability: 0.6, MaxFreshnessHours: 24},
	}
}

func TestBootstrap_NoDB(t *testing.T) {
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     "localhost",
		Port:     65432, // Non-existent port
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestBootstrap_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	app, err := Bootstrap(ctx, testConfig())
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	require.NoError(t, app.Start(ctx))
	require.NotNil(t, app.Pipeline)

	now := time.Now().UTC()
	body, err := json.Marshal(handlers.EventsRequest{Events: []domain.Event{{
		EventID: "w1", EventType: domain.EventStockCount, ItemID: "P001", ItemName: "Hydraulic Pump",
		Quantity: 45, QuantitySemantic: domain.SemanticOnShelf, EventTimestamp: now.Add(-time.Hour),
		SourceSystem: "warehouse_stock", ReliabilityScore: 0.9,
	}}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/items/P001/ask", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"SAFE"`)

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/log/level", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBootstrap_JWTScopes(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{JWTSigningKey: "test-signing-key", JWTIssuer: "aura"}

	app, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)

	jwtCfg := middleware.JWTConfig{SigningKey: []byte(cfg.Security.JWTSigningKey), Issuer: "aura", ExpiresIn: time.Hour}
	reader, _, err := middleware.GenerateToken(jwtCfg, "planner-agent", []string{middleware.ScopeRead})
	require.NoError(t, err)

	do := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/health/live", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/items/P001/ask", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/items/P001/ask", reader))
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/api/v1/resolve", reader))
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
