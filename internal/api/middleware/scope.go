package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// Agent scopes.
const (
	ScopeRead  = "inventory:read"
	ScopeWrite = "inventory:write"
	ScopeAdmin = "inventory:admin"
)

// RequireScope returns middleware that checks the authenticated agent holds
// scope. inventory:admin satisfies every scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, exists := c.Get("scopes")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "no scopes in context",
			})
			return
		}
		scopes, ok := raw.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "invalid scopes type",
			})
			return
		}

		if slices.Contains(scopes, ScopeAdmin) || slices.Contains(scopes, scope) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": "FORBIDDEN", "message": "insufficient scope",
		})
	}
}
