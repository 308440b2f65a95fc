// Package main is the entry point for the tpvcore API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tpvcore/internal/config"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/domain/auth"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/rectification"
	"tpvcore/internal/domain/register"
	"tpvcore/internal/domain/reports"
	"tpvcore/internal/domain/tax"
	"tpvcore/internal/infrastructure/cache"
	v1 "tpvcore/internal/infrastructure/http/v1"
	"tpvcore/internal/infrastructure/metrics"
	"tpvcore/internal/infrastructure/numerator"
	"tpvcore/internal/infrastructure/storage/postgres"
	"tpvcore/internal/infrastructure/storage/postgres/ledger_repo"
	"tpvcore/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting tpvcore server", "version", version)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	txm := postgres.NewTxManager(pool, postgres.TxOptions{
		StatementTimeout: cfg.StatementTimeout,
		LockTimeout:      cfg.TenantLockTimeout,
	})

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewPoolCollector(pool),
	)
	ledgerMetrics := metrics.New(registry)

	// --- Repositories ---
	tenants := ledger_repo.NewTenantRepo(txm, ledgerMetrics.ObserveLockWait)
	products := ledger_repo.NewProductRepo(txm)
	customers := ledger_repo.NewCustomerRepo(txm)
	invoices := ledger_repo.NewInvoiceRepo(txm)
	closures := ledger_repo.NewClosureRepo(txm)

	outbox := postgres.NewOutboxPublisher(txm)
	audit, err := postgres.NewAuditService(txm, 512)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}
	numbers := numerator.New(txm)
	locker := tenant.NewLocker(txm, tenants)

	// --- Tax zones ---
	zones, err := config.NewTaxZonesHolder(cfg.TaxZonesFile)
	if err != nil {
		log.Fatalw("failed to load tax zones", "error", err)
	}
	taxes := tax.NewResolver(zones)

	// --- Report cache ---
	reportCache, closeCache := cache.New(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = closeCache() }()

	// --- Services ---
	reportService := reports.NewService(reports.ServiceConfig{
		Tenants:  tenants,
		Closures: closures,
		Reads:    txm,
		Cache:    reportCache,
		CacheTTL: cfg.ReportCacheTTL,
	})
	registerService := register.NewService(register.ServiceConfig{
		Locker:    locker,
		Repo:      closures,
		Invoices:  invoices,
		Events:    outbox,
		Audit:     audit,
		Metrics:   ledgerMetrics,
		Observers: []register.CloseObserver{reportService},
	})
	invoiceService := invoice.NewService(invoice.ServiceConfig{
		Locker:    locker,
		Repo:      invoices,
		Products:  products,
		Customers: customers,
		Taxes:     taxes,
		Shifts:    registerService,
		Numbers:   numbers,
		Numbering: cfg.Numbering,
		Events:    outbox,
		Metrics:   ledgerMetrics,
	})
	rectificationService := rectification.NewService(rectification.ServiceConfig{
		Locker:    locker,
		Invoices:  invoices,
		Products:  products,
		Shifts:    registerService,
		Numbers:   numbers,
		Numbering: cfg.Numbering,
		Events:    outbox,
		Audit:     audit,
		Metrics:   ledgerMetrics,
	})

	// --- JWT Service ---
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:        log,
		JWTValidator:  jwtService,
		DB:            pool,
		Metrics:       ledgerMetrics.Handler(),
		Invoices:      invoiceService,
		Rectification: rectificationService,
		Register:      registerService,
		Reports:       reportService,
		Version:       version,
	}
	if cfg.IdempotencyEnabled {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)
	}
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
