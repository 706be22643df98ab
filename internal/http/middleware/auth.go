package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/config"
	"github.com/router-for-me/QuizAccess/internal/security"
	log "github.com/sirupsen/logrus"
)

const identityKey = "identity"

// RequireUser validates the bearer JWT and stores the caller identity in the context.
func RequireUser(jwtCfg config.JWTConfig, nowFn func() time.Time) gin.HandlerFunc {
	if nowFn == nil {
		nowFn = time.Now
	}
	return func(c *gin.Context) {
		token, errBearer := security.BearerToken(c.GetHeader("Authorization"))
		if errBearer != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errBearer.Error()})
			return
		}
		identity, errJWT := security.ParseToken(jwtCfg.Secret, token, nowFn())
		if errJWT != nil {
			log.WithError(errJWT).Debug("auth: rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireAdmin rejects callers whose identity lacks the admin flag. It must run after RequireUser.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if !identity.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireUser.
func IdentityFrom(c *gin.Context) (security.Identity, bool) {
	raw, ok := c.Get(identityKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := raw.(security.Identity)
	return identity, ok
}
