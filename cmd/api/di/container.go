package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-manager/cmd/api/infrastructure"
	"user-manager/internal/adapter/cache"
	"user-manager/internal/adapter/db/gormdb"
	"user-manager/internal/adapter/db/memory"
	ginhandler "user-manager/internal/adapter/gin/handler"
	grpcadapter "user-manager/internal/adapter/grpc"
	"user-manager/internal/adapter/grpc/middleware"
	"user-manager/internal/adapter/repository/cached"
	"user-manager/internal/config"
	"user-manager/internal/usecase/user"
	redisclient "user-manager/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB            // nil for the memory driver
	RedisClient *redisclient.Client // nil when Redis is disabled
	UserUC      user.Usecase
	RateLimiter *middleware.RateLimiter // nil when rate limiting is off
	GinHandler  *ginhandler.UserHandler
	GRPCService *grpcadapter.UserServiceServer
}

// NewContainer creates and initializes all application dependencies
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l}

	repo, err := c.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		rdb, err := infrastructure.NewRedisClient(ctx, cfg, l)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		c.RedisClient = rdb

		userCache := cache.NewRedisUserCache(rdb.Client, time.Duration(cfg.Redis.CacheTTL)*time.Second, l)
		repo = cached.NewUserRepository(repo, userCache, l)

		if cfg.RateLimit.Enabled {
			c.RateLimiter = middleware.NewRateLimiter(
				rdb.Client,
				middleware.RateLimiterConfig{
					RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
					BurstCapacity:     cfg.RateLimit.BurstCapacity,
					Enabled:           cfg.RateLimit.Enabled,
					TrustedProxies:    cfg.App.TrustedProxies,
				},
				l,
			)
		}
	} else if cfg.RateLimit.Enabled {
		l.Warn("rate limiting needs Redis, running without it")
	}

	c.UserUC = user.New(repo, l)
	c.GinHandler = ginhandler.NewUserHandler(c.UserUC, l)
	c.GRPCService = grpcadapter.NewUserServiceServer(c.UserUC, l)

	return c, nil
}

func (c *Container) newRepository(ctx context.Context) (user.Repository, error) {
	if c.Config.DB.Driver == config.DriverMemory {
		c.Logger.Info("using in-memory user store")
		return memory.NewUserRepo(c.Logger), nil
	}

	db, err := infrastructure.NewDatabase(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db

	return gormdb.NewUserRepo(db, c.Logger), nil
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
