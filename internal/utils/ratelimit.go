package utils

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
)

// RateLimitMiddleware limits each client IP to perSecond requests on the
// routes it is attached to.
func RateLimitMiddleware(perSecond float64, logger *zap.Logger) gin.HandlerFunc {
	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetMethods([]string{http.MethodPost})

	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpErr != nil {
			logger.Warn("rate limit exceeded",
				zap.String("path", c.FullPath()),
				zap.String("ip", c.ClientIP()),
			)
			apierror.Abort(c, httpErr.StatusCode, "too many requests")
			return
		}
		c.Next()
	}
}
