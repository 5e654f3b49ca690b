package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextAddressKey holds the token address in the gin context.
const ContextAddressKey = "auth.address"

// AddressSource reports the connected identity.
type AddressSource interface {
	Address() string
}

// Middleware requires a bearer token whose address is the connected
// identity. A nil issuer lets every request through.
func Middleware(issuer *TokenIssuer, identity AddressSource, logger *zap.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if issuer == nil || skip[c.FullPath()] {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or malformed Authorization header"})
			return
		}

		claims, err := issuer.Parse(parts[1])
		if err != nil {
			logger.Warn("Token validation failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if current := identity.Address(); current == "" || current != claims.Address {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token does not match the connected identity"})
			return
		}

		c.Set(ContextAddressKey, claims.Address)
		c.Next()
	}
}
