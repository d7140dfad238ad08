package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	grpcmiddleware "user-manager/internal/adapter/grpc/middleware"
)

// RateLimiter returns a Gin middleware drawing from the same token buckets
// as the gRPC interceptor. Buckets are per route pattern and client IP.
func RateLimiter(limiter *grpcmiddleware.RateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		scope := c.Request.Method + ":" + route
		clientIP := c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), scope, clientIP)
		if err != nil {
			log.Warn("rate limiter redis error, allowing request",
				zap.String("client_ip", clientIP),
				zap.String("route", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			log.Warn("rate limit exceeded", zap.String("client_ip", clientIP), zap.String("route", scope))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": limiter.ExceededMessage(),
			})
			return
		}

		c.Next()
	}
}
