package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/internhub/internhub-api/internal/middleware"
	"github.com/internhub/internhub-api/internal/models"
)

// claimsFromContext returns the authenticated caller, or nil on routes where
// the JWT middleware did not run or the token was absent.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
