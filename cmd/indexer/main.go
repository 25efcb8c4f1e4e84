package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"prophyt/internal/archive"
	"prophyt/internal/cache"
	"prophyt/internal/client/coingecko"
	"prophyt/internal/client/datasource"
	"prophyt/internal/client/nautilus"
	"prophyt/internal/client/sui"
	"prophyt/internal/config"
	"prophyt/internal/db"
	"prophyt/internal/feed"
	"prophyt/internal/handler"
	"prophyt/internal/indexer"
	"prophyt/internal/logger"
	"prophyt/internal/metrics"
	"prophyt/internal/pricecache"
	"prophyt/internal/repository"
	gormrepository "prophyt/internal/repository/gorm"
	memrepository "prophyt/internal/repository/memory"
	"prophyt/internal/resolution"
	"prophyt/internal/scheduler"
	"prophyt/internal/service"

	_ "prophyt/docs"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	cfgPath := os.Getenv("PM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  repository.Repository
		pinger handler.Pinger
	)
	if cfg.DB.Driver == "memory" {
		logger.Warn("using in-memory storage, state is lost on restart")
		store = memrepository.New()
	} else {
		dbConn, err := db.Open(ctx, cfg.DB, logger.Named("gorm"))
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		pinger = dbConn.SQL
	}

	m := metrics.New()
	hub := feed.NewHub(m, logger)
	kv := initCache(ctx, cfg.Cache, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.Ledger.RateLimitRPS), cfg.Ledger.RateBurst)
	suiClient := sui.NewClient(&http.Client{Timeout: cfg.Ledger.RequestTimeout}, cfg.Ledger.RPCURL, limiter)
	sender := &sui.TxSender{Client: suiClient, GasBudget: cfg.Ledger.GasBudget}
	if key := strings.TrimSpace(cfg.Ledger.PrivateKey); key != "" {
		signer, err := sui.ParsePrivateKey(key)
		if err != nil {
			logger.Fatal("invalid ledger private key", zap.Error(err))
		}
		sender.Signer = signer
		logger.Info("ledger signer loaded", zap.String("address", signer.Address()))
	}

	oracle := nautilus.NewClient(&http.Client{}, cfg.Nautilus.BaseURL, cfg.Nautilus.Timeout, cfg.Nautilus.HealthTimeout)
	prices := &pricecache.Service{
		Source:  coingecko.NewClient(&http.Client{Timeout: cfg.Price.Timeout}, cfg.Price.BaseURL),
		Cache:   kv,
		TTL:     cfg.Price.TTL,
		Metrics: m,
		Logger:  logger,
	}

	var attestations archive.Archiver = archive.Nop{}
	if cfg.Archive.Enabled {
		s3Archive, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:       cfg.Archive.Bucket,
			Region:       cfg.Archive.Region,
			Prefix:       cfg.Archive.Prefix,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.UsePathStyle,
		})
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		attestations = s3Archive
	}

	engine := &resolution.Engine{
		Repo:       store,
		Ledger:     sender,
		Objects:    suiClient,
		Oracle:     oracle,
		DataSource: datasource.NewClient(&http.Client{}, cfg.DataSource.UserAgent, cfg.DataSource.Timeout),
		Prices:     prices,
		Archive:    attestations,
		Config: resolution.Config{
			BatchSize:            cfg.Resolution.BatchSize,
			MaxRetries:           cfg.Resolution.MaxRetries,
			RetryBaseDelay:       cfg.Resolution.RetryBaseDelay,
			SkewThreshold:        cfg.Resolution.SkewThreshold,
			DefaultOutcomePolicy: cfg.Resolution.DefaultOutcomePolicy,
			NautilusEnabled:      cfg.Resolution.NautilusEnabled,
			PackageID:            cfg.Ledger.PackageID,
			CoinType:             cfg.Ledger.CoinType,
			MarketStateID:        cfg.Ledger.MarketStateID,
			RegistryID:           cfg.Ledger.RegistryID,
			NautilusRegistryID:   cfg.Ledger.NautilusRegistryID,
			SuilendStateID:       cfg.Ledger.SuilendStateID,
			HaedalStateID:        cfg.Ledger.HaedalStateID,
			VoloStateID:          cfg.Ledger.VoloStateID,
		},
		Metrics: m,
		Logger:  logger.Named("resolution"),
	}

	poller := &indexer.Poller{
		Ledger:  suiClient,
		Cursors: indexer.NewCursorStore(store),
		Handler: &indexer.Handler{
			Repo:   store,
			Feed:   hub,
			Logger: logger.Named("indexer"),
		},
		Kinds:             indexer.AllKinds(),
		PackageID:         cfg.Ledger.PackageID,
		PollInterval:      cfg.Indexer.PollInterval,
		PageLimit:         cfg.Indexer.PageLimit,
		Concurrency:       cfg.Indexer.Concurrency,
		RestartBackoff:    cfg.Indexer.RestartBackoff,
		MaxRestartBackoff: cfg.Indexer.MaxRestartBackoff,
		Metrics:           m,
		Logger:            logger.Named("indexer"),
	}

	sched := &scheduler.Scheduler{
		Sweeper: engine,
		Prices:  prices,
		Config: scheduler.Config{
			SweepEnabled: cfg.Resolution.Enabled,
			SweepSpec:    cfg.Resolution.SweepSpec,
			PriceEnabled: cfg.Price.Enabled,
			PriceSpec:    cfg.Price.RefreshSpec,
		},
		Logger: logger.Named("scheduler"),
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(handler.WriteAudit(logger.Named("audit")))

	query := &service.QueryService{Repo: store}
	operatorSecret := ""
	if cfg.Auth.Enabled {
		operatorSecret = cfg.Auth.JWTSecret
	}

	healthHandler := &handler.HealthHandler{DB: pinger, Metrics: m.Handler()}
	healthHandler.Register(router)
	marketHandler := &handler.MarketHandler{Query: query, Logger: logger}
	marketHandler.Register(router)
	betHandler := &handler.BetHandler{Query: query, Logger: logger}
	betHandler.Register(router)
	userHandler := &handler.UserHandler{Query: query, Logger: logger}
	userHandler.Register(router)
	chartHandler := &handler.ChartHandler{Query: query, Logger: logger}
	chartHandler.Register(router)
	nautilusHandler := &handler.NautilusHandler{Resolver: engine, Pending: oracle, Query: query, Logger: logger}
	nautilusHandler.Register(router, handler.RequireOperator(operatorSecret))
	indexerHandler := &handler.IndexerHandler{Query: query, Logger: logger}
	indexerHandler.Register(router)
	oracleHandler := &handler.OracleHandler{Prices: prices, Logger: logger}
	oracleHandler.Register(router)
	feedHandler := &handler.FeedHandler{Hub: hub, Buffer: cfg.Feed.Buffer, OriginPatterns: []string{"*"}, Logger: logger}
	feedHandler.Register(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	pollerDone := make(chan struct{})
	if cfg.Indexer.Enabled {
		go func() {
			defer close(pollerDone)
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("indexer stopped", zap.Error(err))
			}
		}()
	} else {
		close(pollerDone)
		logger.Info("indexer disabled")
	}

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()
	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		logger.Warn("indexer did not stop in time")
	}
}

func initCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) cache.Store {
	var backend cache.Store = cache.NewMemoryStore()
	if cfg.Backend == "redis" {
		redisStore := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, using memory cache", zap.Error(err))
		} else {
			backend = redisStore
		}
	}
	if cfg.KeyPrefix == "" {
		return backend
	}
	return cache.Prefixed{Store: backend, Prefix: cfg.KeyPrefix}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
