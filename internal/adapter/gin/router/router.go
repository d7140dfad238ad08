package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"user-manager/api"
	"user-manager/internal/adapter/gin/handler"
	"user-manager/internal/adapter/gin/middleware"
	grpcmiddleware "user-manager/internal/adapter/grpc/middleware"
)

// SwaggerDocPath serves the embedded OpenAPI document.
const SwaggerDocPath = "/docs/user.swagger.json"

// SetupRouter configures and returns a Gin router with all routes and middleware.
// rateLimiter may be nil. Forwarding headers only set the client IP when the
// request comes from one of trustedProxies.
func SetupRouter(
	userHandler *handler.UserHandler,
	rateLimiter *grpcmiddleware.RateLimiter,
	trustedProxies []string,
	log *zap.Logger,
	serviceName string,
) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		log.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	router.GET(SwaggerDocPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", api.UserSwagger)
	})
	router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
		httpSwagger.URL(SwaggerDocPath),
	)))

	users := router.Group("/users", middleware.RateLimiter(rateLimiter, log))
	{
		users.GET("", userHandler.ListUsers)
		users.POST("/create", userHandler.CreateUser)
		users.PUT("/update/:id", userHandler.UpdateUser)
		users.GET("/find/:id", userHandler.GetUser)
		users.DELETE("/delete/:id", userHandler.DeleteUser)
	}

	return router
}
