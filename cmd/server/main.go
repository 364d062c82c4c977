package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"

	"github.com/innovareai/sam-funnel-engine/internal/api"
	"github.com/innovareai/sam-funnel-engine/internal/auth"
	"github.com/innovareai/sam-funnel-engine/internal/config"
	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/mcp"
	"github.com/innovareai/sam-funnel-engine/internal/metrics"
	"github.com/innovareai/sam-funnel-engine/internal/n8n"
	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/internal/services"
	"github.com/innovareai/sam-funnel-engine/internal/tls"
)

func main() {
	ctx := context.Background()

	// Parse command line flags
	envFile := flag.String("env", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger := logging.NewLoggerAt(logging.ParseLevel(cfg.LogLevel))
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"n8n_base_url", cfg.N8N.BaseURL,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting Sam Funnel Engine")

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Initialize repository layer
	funnelStore := repository.NewPostgresFunnelStore(dbPool)
	prospectStore := repository.NewPostgresProspectStore(dbPool)
	executionStore := repository.NewPostgresExecutionStore(dbPool)
	metricsStore := repository.NewPostgresMetricsStore(dbPool)
	logStore := repository.NewPostgresLogStore(dbPool)

	// Initialize service layer
	stats := metrics.NewProm("funnel_engine")
	client := n8n.NewClient(n8n.Config{
		BaseURL: cfg.N8N.BaseURL,
		APIKey:  cfg.N8N.APIKey,
		Timeout: cfg.N8NTimeout(),
	}, logger, stats)

	progression := services.NewProgression(prospectStore)
	evaluator := services.NewEvaluator(logStore, stats)
	webhookService := services.NewWebhookService(
		funnelStore, executionStore, metricsStore, logStore,
		progression, evaluator, logger, stats,
	)
	funnelService := services.NewFunnelService(client, funnelStore, executionStore, logger)

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize auth", "error", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	// Health and telemetry endpoints stay unauthenticated
	e.GET("/health", echo.WrapHandler(http.HandlerFunc(api.HandleHealth)))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Webhook endpoint authenticates via HMAC signature, not bearer tokens
	webhookHandler, err := api.NewWebhookHandler(webhookService, cfg.Webhook.SigningSecret, logger)
	if err != nil {
		logger.Error("Failed to initialize webhook handler", "error", err)
		log.Fatalf("webhook handler initialization failed: %v", err)
	}
	e.POST("/webhooks/n8n", webhookHandler.Handle)

	// Mount the operator API behind bearer auth
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer := api.NewServer(funnelService, metricsStore)
	apiServer.RegisterRoutes(apiGroup)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(funnelService)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			// ensure certificate exists if requested
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("Failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
