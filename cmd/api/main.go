package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"asistencia/internal/attendance"
	"asistencia/internal/config"
	"asistencia/internal/queue"
	"asistencia/internal/store"
	"asistencia/internal/tableapi"
	"asistencia/internal/tally"
)

func main() {
	cfg, err := config.LoadServer(context.Background())
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runHTTP(cfg *config.Server) error {
	logger := zap.L()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		tables tableapi.Tables
		db     *store.DB
	)
	if cfg.StoreBackend == "memory" {
		tables = attendance.NewMemoryStore()
		logger.Warn("using in-memory tables; data is lost on exit")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema applied")
		}
		tables = attendance.NewRepository(db.Client)
	}

	var (
		q         queue.Queue
		summaries tally.Store
		rdb       *store.Redis
	)
	if cfg.QueueBackend == "memory" {
		// No worker process: count in-process.
		mem := queue.NewInMemory(64)
		q = mem
		counts := tally.NewMemory()
		summaries = counts
		msgs, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		go tally.Run(ctx, msgs, counts, logger.Named("tally"))
	} else {
		rdb = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
		summaries = tally.NewRedis(rdb.Client, "")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := tableapi.NewMetrics(reg)

	h := tableapi.NewHandler(tables, q, summaries, metrics, logger.Named("tableapi"))
	r, err := tableapi.NewRouter(tableapi.RouterConfig{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		TrustedProxies:  cfg.TrustedProxies,
		Gatherer:        reg,
		Health: func(ctx context.Context) map[string]bool {
			checks := map[string]bool{}
			if db != nil {
				checks["db"] = db.Healthy(ctx)
			}
			if rdb != nil {
				checks["redis"] = rdb.Healthy(ctx)
			}
			return checks
		},
	}, h)
	if err != nil {
		return err
	}

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
