package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"aura.dev/aura/internal/api/handlers"
	"aura.dev/aura/internal/api/middleware"
	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/pkg/logger"
)

// defaultOrigins is the CORS allowlist used when none is configured.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	router.Any("/log/level", gin.WrapH(logger.HTTPHandler()))

	v1 := router.Group("/api/v1")
	server.RegisterPublic(v1)

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
	}
	read := v1.Group("")
	write := v1.Group("")
	if jwtCfg.Enabled() {
		read.Use(middleware.JWTAuth(jwtCfg), middleware.RequireScope(middleware.ScopeRead))
		write.Use(middleware.JWTAuth(jwtCfg), middleware.RequireScope(middleware.ScopeWrite))
	} else {
		logger.Warn("security.jwt_signing_key is empty: item and ingest routes are unauthenticated")
	}
	server.RegisterRead(read)
	server.RegisterWrite(write)
	return router
}

// buildCORSConfig turns the server settings into a cors.Config. A wildcard
// origin is dropped unless UnsafeAllowAllOrigins is set; allowing all origins
// always disables credentials. An empty allowlist falls back to the local
// development origins.
func buildCORSConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AddAllowHeaders("Authorization", "X-Request-ID")
	corsConfig.AddExposeHeaders("X-Request-ID")
	corsConfig.MaxAge = 12 * time.Hour

	if cfg.Server.UnsafeAllowAllOrigins {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
		corsConfig.AllowCredentials = false
		return corsConfig
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultOrigins...)
	}
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = cfg.Server.AllowCredentials
	return corsConfig
}
