package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/config"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/handler"
	"github.com/boddenberg/security-assessment-go/internal/infra/broker"
	"github.com/boddenberg/security-assessment-go/internal/infra/cache"
	"github.com/boddenberg/security-assessment-go/internal/infra/client"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/infra/resilience"
	"github.com/boddenberg/security-assessment-go/internal/infra/store"
	"github.com/boddenberg/security-assessment-go/internal/infra/supabase"
	"github.com/boddenberg/security-assessment-go/internal/port"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	task := flag.String("task", "", "run an admin task instead of the server: export-all, catalog-check")
	outDir := flag.String("out", "reports", "output directory for export-all")
	flag.Parse()

	// --- Config ---
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("events_enabled", cfg.RabbitURL != ""),
	)

	// --- Catalog ---
	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal("failed to load question catalog", zap.Error(err))
	}

	if *task == "catalog-check" {
		catalogCheck(cat)
		return
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "security-assessment")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	kv, err := openStore(cfg, httpClient, resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kv.Close(ctx); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()
	index := service.NewIndex(kv, logger)

	if *task == "export-all" {
		n, err := service.ExportAll(context.Background(), kv, index, cat, *outDir, cfg.MaxConcurrency, logger)
		if err != nil {
			logger.Fatal("export failed", zap.Int("written", n), zap.Error(err))
		}
		logger.Info("export finished", zap.Int("written", n), zap.String("dir", *outDir))
		return
	}
	if *task != "" {
		logger.Fatal("unknown task", zap.String("task", *task))
	}

	// --- Events ---
	var events port.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := broker.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer pub.Close()
		events = pub
		logger.Info("completion events enabled", zap.String("queue", cfg.RabbitQueue))
	} else {
		logger.Warn("RABBITMQ_URL not set, completion events disabled")
	}

	// --- Registry ---
	var registry *service.RegistryService
	if cfg.RegistryBaseURL != "" {
		registryCache := cache.New[*domain.RegistryRecord](cfg.CacheTTL)
		defer registryCache.Close()
		registryClient := client.NewRegistryClient(
			httpClient,
			cfg.RegistryBaseURL,
			resilience.NewCircuitBreakerWithLogger("registry", logger),
			resilienceCfg,
		)
		registry = service.NewRegistryService(registryClient, registryCache, metrics, logger)
	} else {
		logger.Warn("REGISTRY_BASE_URL empty, CNPJ lookup disabled")
	}

	// --- Services ---
	sessions := service.NewSessions(cat, kv, index, events, metrics, logger)
	sessions.StartEviction(time.Minute, cfg.SessionIdleTTL)
	defer sessions.Close()

	// --- Router ---
	router := handler.NewRouter(sessions, registry, metrics, handler.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port), zap.Int("questions", cat.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openStore(cfg *config.Config, httpClient *http.Client, rcfg resilience.Config, logger *zap.Logger) (port.KVStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case config.BackendSQLite:
		logger.Info("using SQLite store", zap.String("path", cfg.SQLitePath))
		return store.NewSQLite(cfg.SQLitePath)
	case config.BackendMongo:
		logger.Info("using MongoDB store", zap.String("database", cfg.MongoDB))
		mc, err := store.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return store.NewMongo(mc, cfg.MongoDB), nil
	case config.BackendPostgres:
		logger.Info("using Postgres store")
		db, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(db), nil
	case config.BackendSupabase:
		logger.Info("using Supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		sc := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreakerWithLogger("supabase", logger),
			rcfg,
			logger,
		)
		kv := supabase.NewKVStore(sc)
		if err := kv.Ping(ctx); err != nil {
			logger.Warn("supabase not reachable at startup", zap.Error(err))
		}
		return kv, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func catalogCheck(cat *catalog.Catalog) {
	fmt.Printf("questions: %d\n", cat.Len())
	for _, size := range []domain.CompanySize{domain.SizeSmall, domain.SizeMedium, domain.SizeLarge} {
		qs := cat.ForSize(size)
		required := 0
		for _, q := range qs {
			if q.Required {
				required++
			}
		}
		fmt.Printf("%-8s %4d questions, %4d required\n", size, len(qs), required)
	}
	for _, c := range cat.Categories() {
		fmt.Printf("  %s: %d (%d groups)\n", c.Name, c.Total, len(c.Groups))
	}
}
