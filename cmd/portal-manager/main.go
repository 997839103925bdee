// cmd/portal-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"treasury-portal/internal/airbase"
	"treasury-portal/internal/alerts"
	"treasury-portal/internal/catalog"
	"treasury-portal/internal/common/aws"
	"treasury-portal/internal/common/config"
	"treasury-portal/internal/common/database"
	"treasury-portal/internal/common/logger"
	"treasury-portal/internal/common/observability"
	"treasury-portal/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portal manager...")

	obs := observability.New("portal-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional search mirror) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Alert Channels ---
	var sesClient *aws.SESClient
	var snsClient *aws.SNSClient
	if cfg.Alerts.Email.Enabled {
		sesClient, err = aws.NewSESClient(ctx, cfg.Alerts.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
	}
	if cfg.Alerts.SNS.Enabled {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Alerts.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
	}

	// --- Wire the catalog pipeline ---
	layered := store.NewLayered(pg.GetDB(), redis.GetClient(), log)
	source := airbase.NewClient(cfg.Airbase, layered, log)

	refresher := catalog.NewRefresher(source, layered, config.GetSeconds(cfg.Catalog.CacheTTL), log)
	refresher.Alerter = alerts.NewManager(cfg.Alerts, sesClient, snsClient, log)
	refresher.Obs = obs
	if esClient != nil {
		refresher.Indexer = catalog.NewESIndexer(esClient, cfg.Database.Elasticsearch.Index, log)
	}

	service := catalog.NewService(layered, refresher, cfg.Catalog, log)

	zapLog.Info("Catalog pipeline wired",
		zap.String("table", cfg.Airbase.TablePath),
		zap.Int("cacheTTL_s", cfg.Catalog.CacheTTL),
		zap.Int("refreshInterval_s", cfg.Catalog.RefreshInterval),
	)

	// --- Initial warm-up ---
	// A failed warm-up is not fatal; reads fall back to the durable
	// copy and the ticker keeps retrying.
	if _, err := service.GetAllVendors(ctx); err != nil {
		zapLog.Warn("initial catalog load failed", zap.Error(err))
	} else {
		zapLog.Info("Catalog warmed up successfully")
	}

	// --- Periodic Refresh ---
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	ticker := time.NewTicker(config.GetSeconds(cfg.Catalog.RefreshInterval))
	go func() {
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := service.RefreshVendorCache(refreshCtx); err != nil {
					zapLog.Error("scheduled refresh failed", zap.Error(err))
				}
			}
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.App.HealthPort)
		zapLog.Info("Health/Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping refresh loop...")
	ticker.Stop()
	stopRefresh()

	zapLog.Info("Portal manager stopped gracefully")
}
