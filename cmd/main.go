package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/biolink/config"
	"github.com/oksasatya/biolink/db/migrations"
	"github.com/oksasatya/biolink/internal/container"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/infrastructure/cache"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
	pginfra "github.com/oksasatya/biolink/internal/infrastructure/postgres"
	"github.com/oksasatya/biolink/internal/interface/middleware"
	"github.com/oksasatya/biolink/internal/router"
	"github.com/oksasatya/biolink/pkg/helpers"
	"github.com/oksasatya/biolink/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	// Run migrations using database/sql with pgx stdlib
	if err := pginfra.RunMigrations(cfg.PostgresDSN(), migrations.FS, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	// Initialize Postgres pool
	poolCfg := pginfra.PoolConfig{
		DSN:         cfg.PostgresDSN(),
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxConnLife: cfg.DBMaxConnLife,
		SlowQuery:   cfg.DBSlowQuery,
	}
	if cfg.DBTraceSQL {
		poolCfg.Logger = logger
	}
	pool, err := pginfra.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	// Redis
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()

	opts := []pginfra.Option{
		pginfra.WithLogger(logger),
		pginfra.WithOmit("User", "password"),
		pginfra.WithTxOptions(repository.WithMaxWait(cfg.TxMaxWait), repository.WithTimeout(cfg.TxTimeout)),
		pginfra.WithMiddleware(
			pginfra.LoggingMiddleware(logger),
			pginfra.ValidationMiddleware(validator.New()),
			pginfra.PasswordMiddleware(),
		),
	}
	if cfg.CacheEnabled {
		opts = append(opts, pginfra.WithCache(cache.NewRedis(rdb, cfg.CacheNamespace)))
	}

	// Mutation events
	if cfg.EventsEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEventsQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable; mutation events disabled")
		} else {
			defer pub.Close()
			container.SetRabbitPub(pub)
			opts = append(opts, pginfra.WithPublisher(events.NewAMQPPublisher(pub)))
		}
	}

	// Elasticsearch
	if cfg.SearchEnabled {
		es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch unavailable; profile search disabled")
		} else {
			container.SetES(es)
		}
	}

	client := pginfra.NewClient(pool, opts...)

	// Provide infra singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	container.SetRedis(rdb)
	container.SetClient(client)

	// Gin engine and global middleware
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		log.Fatalf("invalid TRUSTED_PROXIES: %v", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	// CORS
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled {
		r.Use(gin.Logger())
	}

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r)
	reg.Check("postgres", pool.Ping)
	reg.Check("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	if pub := container.GetRabbitPub(); pub != nil {
		reg.Check("rabbitmq", pub.Ping)
	}
	if es := container.GetES(); es != nil {
		reg.Check("elasticsearch", func(ctx context.Context) error {
			res, err := es.Ping(es.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer func() { _ = res.Body.Close() }()
			if res.IsError() {
				return fmt.Errorf("elasticsearch: %s", res.Status())
			}
			return nil
		})
	}
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port}).Info("studio starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Info("server exited properly")
}
