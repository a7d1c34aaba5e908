package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/lowpoly/internal/config"
	"github.com/example/lowpoly/internal/grpcserver"
	"github.com/example/lowpoly/internal/handlers"
	"github.com/example/lowpoly/internal/imageprocessor"
	"github.com/example/lowpoly/internal/logging"
	"github.com/example/lowpoly/internal/repository"
	"github.com/example/lowpoly/internal/usecase"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo := initRepository(ctx, cfg, logger)
	cache := initCache(ctx, cfg, logger)
	renderer := imageprocessor.NewTriangleRenderer(logger, runtime.GOMAXPROCS(0))
	uc := usecase.NewLowPolyUseCase(repo, cache, renderer, logger, cfg.CacheTTL)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.GRPCAddr != "" {
		health, err := startHealthServer(cfg.GRPCAddr, logger)
		if err != nil {
			logger.Fatal("failed to start gRPC health server", zap.Error(err))
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer stopCancel()
			health.Stop(stopCtx)
		}()
		health.MarkServing()
	}

	logger.Info("low poly API listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// initRepository connects to Postgres when DATABASE_DSN is set; otherwise
// processing logs are dropped.
func initRepository(ctx context.Context, cfg *config.Server, zapLogger *zap.Logger) usecase.ProcessingRepository {
	if cfg.DatabaseDSN == "" {
		zapLogger.Info("DATABASE_DSN not set, processing log disabled")
		return usecase.NopRepository{}
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	repo := repository.NewProcessingRepository(db, zapLogger)
	if err := repo.AutoMigrate(ctx); err != nil {
		zapLogger.Fatal("auto migrate failed", zap.Error(err))
	}
	return repo
}

// initCache connects to Redis when REDIS_ADDR is set; otherwise every
// request renders.
func initCache(ctx context.Context, cfg *config.Server, zapLogger *zap.Logger) usecase.Cache {
	if cfg.RedisAddr == "" {
		zapLogger.Info("REDIS_ADDR not set, result cache disabled")
		return usecase.NopCache{}
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return usecase.NewRedisCache(client)
}

func startHealthServer(addr string, logger *zap.Logger) (*grpcserver.HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	health := grpcserver.NewHealthServer(logger)
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	return health, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
