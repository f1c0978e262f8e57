package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{
		SigningKey: []byte("test-signing-key-1234567890123456"),
		Issuer:     "aura",
		ExpiresIn:  time.Hour,
	}
}

func TestJWTConfigValidateToken_Success(t *testing.T) {
	cfg := testJWTConfig()

	token, _, err := GenerateToken(cfg, "agent-7", []string{ScopeRead})
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.AgentID)
	assert.Equal(t, []string{ScopeRead}, claims.Scopes)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.NotBefore)
}

func TestJWTConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := GenerateToken(cfg, "agent-7", nil)
	require.NoError(t, err)

	other := cfg
	other.Issuer = "other-issuer"
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, AgentClaims{
		AgentID: "agent-7",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aura",
			Subject:   "agent-7",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testJWTConfig().ValidateToken(tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_Expired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpiresIn = -time.Minute
	token, _, err := GenerateToken(cfg, "agent-7", nil)
	require.NoError(t, err)

	_, err = cfg.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTConfigValidateToken_RequiresSigningKey(t *testing.T) {
	token, _, err := GenerateToken(testJWTConfig(), "agent-7", nil)
	require.NoError(t, err)

	_, err = JWTConfig{Issuer: "aura"}.ValidateToken(token)
	require.Error(t, err)
}

func protectedRouter(cfg JWTConfig, scope string) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuth(cfg), RequireScope(scope))
	router.GET("/p", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"agent_id": GetAgentID(c.Request.Context())})
	})
	return router
}

func TestJWTAuth(t *testing.T) {
	cfg := testJWTConfig()
	reader, _, err := GenerateToken(cfg, "reader", []string{ScopeRead})
	require.NoError(t, err)
	admin, _, err := GenerateToken(cfg, "admin", []string{ScopeAdmin})
	require.NoError(t, err)

	tests := []struct {
		name   string
		scope  string
		header string
		want   int
	}{
		{name: "missing header", scope: ScopeRead, header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", scope: ScopeRead, header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", scope: ScopeRead, header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "read scope", scope: ScopeRead, header: "Bearer " + reader, want: http.StatusOK},
		{name: "read scope cannot write", scope: ScopeWrite, header: "Bearer " + reader, want: http.StatusForbidden},
		{name: "admin can write", scope: ScopeWrite, header: "Bearer " + admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			protectedRouter(cfg, tt.scope).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireScope_NoClaims(t *testing.T) {
	router := gin.New()
	router.Use(RequireScope(ScopeRead))
	router.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/r", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/r", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	router.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}
