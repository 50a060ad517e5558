package authentication

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
	"github.com/mehmetcc/calibration-auth-service/internal/user"
)

// ContextClaimsKey is the key under which verified access claims are stored in
// the gin context.
const ContextClaimsKey = "claims"

// AuthMiddleware verifies the bearer access token. It is pure: signature and
// expiry only, no store or database lookups.
func AuthMiddleware(issuer *TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierror.Abort(c, http.StatusUnauthorized, "authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			apierror.Abort(c, http.StatusUnauthorized, "authorization header format must be Bearer <token>")
			return
		}

		claims, err := issuer.VerifyAccess(parts[1])
		if err != nil {
			logger.Debug("access token rejected", zap.Error(err))
			if errors.Is(err, ErrJWTExpired) {
				apierror.Abort(c, http.StatusUnauthorized, ErrTokenExpired.Error())
				return
			}
			apierror.Abort(c, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) (*Claims, bool) {
	raw, exists := c.Get(ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := raw.(*Claims)
	return claims, ok
}

// RoleMiddleware only lets through requests whose claims carry requiredRole.
func RoleMiddleware(requiredRole user.Role, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			apierror.Abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if claims.Role != requiredRole {
			logger.Warn("role check failed",
				zap.Uint("userID", claims.UserID),
				zap.String("role", string(claims.Role)),
				zap.String("required", string(requiredRole)),
			)
			apierror.Abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
