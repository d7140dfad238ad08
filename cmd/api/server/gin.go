package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ginhandler "user-manager/internal/adapter/gin/handler"
	ginrouter "user-manager/internal/adapter/gin/router"
	grpcmiddleware "user-manager/internal/adapter/grpc/middleware"
)

// SetupGinServer creates and configures the Gin REST API server
func SetupGinServer(
	handler *ginhandler.UserHandler,
	rateLimiter *grpcmiddleware.RateLimiter,
	trustedProxies []string,
	serviceName string,
	ginAddr string,
	l *zap.Logger,
) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := ginrouter.SetupRouter(handler, rateLimiter, trustedProxies, l, serviceName)

	l.Info("Gin REST API configured",
		zap.String("address", ginAddr),
		zap.String("swagger", ginrouter.SwaggerDocPath),
		zap.Bool("rate_limited", rateLimiter.Enabled()),
	)

	return &http.Server{
		Addr:              ginAddr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
