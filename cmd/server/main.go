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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"creator-automation/backend/internal/api"
	"creator-automation/backend/internal/auth"
	"creator-automation/backend/internal/config"
	"creator-automation/backend/internal/definitions"
	"creator-automation/backend/internal/engine"
	"creator-automation/backend/internal/logging"
	"creator-automation/backend/internal/mcp"
	"creator-automation/backend/internal/repository"
	"creator-automation/backend/internal/services"
	"creator-automation/backend/internal/sources"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "automation-server",
	Short:        "Creator platform workflow automation service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default ./config.yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"db_enabled", cfg.DB.Enable,
		"redis_enabled", cfg.Redis.Enable,
	)

	httpClient := &http.Client{Timeout: cfg.Services.RequestTimeout}
	opts := []engine.Option{
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithDispatcher(services.NewHTTPDispatcher(cfg.DispatcherConfig(), httpClient, logger.With("component", "dispatcher"))),
		engine.WithAlertSink(services.NewLogAlertSink(logger.With("component", "alerts"))),
	}
	if cfg.Services.MetricsURL != "" {
		opts = append(opts, engine.WithMetricFetcher(services.NewHTTPMetricFetcher(cfg.Services.MetricsURL, httpClient)))
	}

	if cfg.Redis.Enable {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		src := sources.NewRedisSource(rdb,
			sources.WithChannel(cfg.Redis.Channel),
			sources.WithLogger(logger.With("component", "redis-source")),
		)
		opts = append(opts, engine.WithEventSources(src))
		logger.Info("Redis event source configured", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	eng := engine.New(cfg.EngineConfig(), opts...)

	var (
		defStore repository.DefinitionStore
		archive  repository.ExecutionStore
		sweeper  *cron.Cron
	)
	if cfg.DB.Enable {
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer pool.Close()
		logger.Info("Database connected")

		store := repository.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		defStore, archive = store, store

		archiver := repository.NewArchiver(store, logger.With("component", "archiver"))
		archiver.Attach(eng)

		sweeper = cron.New()
		retention := cfg.Engine.Retention
		if _, err := sweeper.AddFunc(cfg.Engine.SweepSchedule, func() {
			pruneCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_, _ = archiver.Prune(pruneCtx, retention)
		}); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Engine.SweepSchedule, err)
		}
	}

	authz, err := auth.New(ctx, cfg, logger.With("component", "auth"))
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}

	if defStore != nil {
		n, err := repository.LoadDefinitions(ctx, defStore, eng)
		if err != nil {
			logger.Error("Failed to load stored workflow definitions", "error", err)
		} else {
			logger.Info("Stored workflow definitions loaded", "count", n)
		}
	}
	if cfg.Engine.DefinitionsFile != "" {
		entries, err := definitions.LoadFile(cfg.Engine.DefinitionsFile)
		if err == nil {
			err = definitions.Apply(eng, entries)
		}
		if err != nil {
			_ = eng.Shutdown(ctx)
			return fmt.Errorf("failed to load workflow definitions: %w", err)
		}
		logger.Info("Workflow definitions file applied", "path", cfg.Engine.DefinitionsFile, "count", len(entries))
	}
	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ProblemErrorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("creator-automation"))

	apiServer := api.NewServer(eng, defStore, archive, logger.With("component", "api"))
	e.GET("/health", apiServer.HandleHealth)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	v1 := e.Group("/api/v1", echo.WrapMiddleware(authz.RequireAuth))
	read := v1.Group("", echo.WrapMiddleware(auth.RequireScope(auth.ScopeWorkflowsRead)))
	write := v1.Group("", echo.WrapMiddleware(auth.RequireScope(auth.ScopeWorkflowsWrite)))
	apiServer.RegisterRoutes(read, write)
	logger.Info("REST API handlers mounted")

	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(eng.Collectors()...)
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	mcpServer := mcp.NewServer(eng)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers), echo.WrapMiddleware(authz.RequireAuth))
	logger.Info("MCP protocol handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = eng.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// The engine drains first so in-flight runs triggered over HTTP finish.
	if err := eng.Shutdown(ctx); err != nil {
		logger.Error("Engine shutdown error", "error", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
