package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-lifecycle-service/config"
	"github.com/oksasatya/identity-lifecycle-service/internal/application"
	"github.com/oksasatya/identity-lifecycle-service/internal/container"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
	"github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/cache"
	"github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/postgres"
	"github.com/oksasatya/identity-lifecycle-service/internal/interface/middleware"
	"github.com/oksasatya/identity-lifecycle-service/internal/router"
	"github.com/oksasatya/identity-lifecycle-service/pkg/helpers"
	"github.com/oksasatya/identity-lifecycle-service/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// Redis backs rate limiting and the identity cache; both degrade to off.
	var identityCache application.IdentityCache
	if cfg.RedisEnabled {
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, running without cache and rate limits")
		} else {
			defer func() { _ = rdb.Close() }()
			container.SetRedis(rdb)
			identityCache = cache.NewIdentityCache(rdb, cfg.CacheTTL)
		}
	}

	var publisher application.EventPublisher
	if cfg.EventsEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQIdentityQueue)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to rabbitmq")
		}
		defer pub.Close()
		publisher = pub
	}

	svc := application.NewService(store, logger, publisher, identityCache, application.Options{
		StoreTimeout:     cfg.StoreTimeout,
		ReadRetryBackoff: cfg.ReadRetryBackoff,
	})

	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetIdentityService(svc)

	sweepDone := make(chan struct{})
	if cfg.SweeperEnabled {
		sweeper := application.NewSweeper(svc.Machine, logger, svc, nil, cfg.SweepInterval, cfg.PendingTTL)
		go func() {
			defer close(sweepDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(sweepDone)
	}

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if cfg.HTTPLogEnabled || cfg.Env == "development" {
		r.Use(gin.Logger())
	}

	reg := router.NewRegistry(r)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	<-sweepDone
	logger.Info("server exited properly")
}

// openStore selects the identity store from STORE_DRIVER. The postgres
// driver migrates the schema before serving.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repo.IdentityStore, func()) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory identity store; data is lost on restart")
		return memory.NewIdentityStore(), func() {}
	case "postgres":
		pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
			DSN:         cfg.PostgresDSN(),
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
			MaxConnLife: cfg.DBMaxConnLife,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), logger); err != nil {
			pool.Close()
			logger.WithError(err).Fatal("migration failed")
		}
		return pginfra.NewIdentityRepository(pool), pool.Close
	default:
		logger.WithField("driver", cfg.StoreDriver).Fatal("unknown STORE_DRIVER")
		return nil, nil
	}
}
