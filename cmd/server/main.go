package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/courier-auth/api/handler"
	"github.com/fastygo/courier-auth/internal/cache"
	"github.com/fastygo/courier-auth/internal/config"
	"github.com/fastygo/courier-auth/internal/infrastructure/boltdb"
	"github.com/fastygo/courier-auth/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/courier-auth/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/courier-auth/internal/infrastructure/redis"
	"github.com/fastygo/courier-auth/internal/metrics"
	"github.com/fastygo/courier-auth/internal/middleware"
	"github.com/fastygo/courier-auth/internal/ratelimit"
	"github.com/fastygo/courier-auth/internal/router"
	"github.com/fastygo/courier-auth/internal/services/lifecycle"
	"github.com/fastygo/courier-auth/internal/token"
	"github.com/fastygo/courier-auth/pkg/httpcontext"
	"github.com/fastygo/courier-auth/pkg/logger"
	"github.com/fastygo/courier-auth/repository"
	boltRepo "github.com/fastygo/courier-auth/repository/bolt"
	"github.com/fastygo/courier-auth/repository/postgres"
	redisRepo "github.com/fastygo/courier-auth/repository/redis"
	authUC "github.com/fastygo/courier-auth/usecase/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	codec, err := token.New(cfg.Auth.JWTSecret, token.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		zapLogger.Fatal("token codec", zap.Error(err))
	}

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	probes := []monitor.Probe{monitor.PostgresProbe(pool)}
	var gauges []monitor.Gauge

	var revocations repository.RevocationList
	switch cfg.Auth.RevocationBackend {
	case config.RevocationRedis:
		redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.RegisterCloser("redis", redisClient)
		probes = append(probes, monitor.RedisProbe(redisClient, true))
		revocations = redisRepo.NewRevocationRepository(redisClient)
	case config.RevocationBolt:
		db, err := boltdb.Open(cfg.Auth.RevocationBoltPath, boltRepo.Bucket)
		if err != nil {
			zapLogger.Fatal("failed to open revocation store", zap.Error(err))
		}
		manager.RegisterCloser("revocation_store", db)
		boltRevocations := boltRepo.NewRevocationRepository(db)
		gauges = append(gauges, monitor.Gauge{Name: "revocations", Read: boltRevocations.Size})
		revocations = boltRevocations
	}
	zapLogger.Info("refresh token revocation", zap.String("backend", cfg.Auth.RevocationBackend))

	authMetrics := metrics.New(metrics.Config{})
	userCache := cache.NewUserCache(cache.Config{})
	limiter := ratelimit.New(ratelimit.Config{
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Lockout:     cfg.Auth.Lockout,
	})

	sessions := authUC.NewSessionStore(codec, revocations, authMetrics, zapLogger, authUC.SessionConfig{
		AccessTTL: cfg.Auth.AccessTTL,
	})
	sessions.Start()
	manager.Register("session_sweep", func(ctx context.Context) error {
		sessions.Stop(ctx)
		return nil
	})
	gauges = append(gauges, monitor.Gauge{Name: "sessions", Read: func() (int, error) {
		return sessions.Count(), nil
	}})

	mon := monitor.New(probes, gauges, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	userRepo := postgres.NewUserRepository(pool)
	authUseCase := authUC.New(userRepo, sessions, limiter, userCache, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, cfg.HTTP.TrustProxy)

	authenticator := middleware.NewAuthenticator(middleware.Config{
		Codec:    codec,
		Users:    userRepo,
		Cache:    userCache,
		Sessions: sessions,
		Adapter:  ctxAdapter,
		Metrics:  authMetrics,
		Logger:   zapLogger,
	})

	handlers := router.Handlers{
		Auth:   apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	var routerOpts router.Options
	if cfg.HTTP.EnableMetrics {
		routerOpts.Metrics = prometheus.DefaultGatherer
	}
	r := router.New(handlers, authenticator, routerOpts)

	server := &fasthttp.Server{
		Handler:            r.Handler,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		Concurrency:        cfg.HTTP.MaxConn,
		Name:               cfg.AppName,
		MaxRequestBodySize: 64 * 1024,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
