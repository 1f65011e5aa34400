package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pesio-ai/be-ops-indicators/internal/client"
	"github.com/pesio-ai/be-ops-indicators/internal/config"
	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/handler"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/middleware"
	"github.com/pesio-ai/be-ops-indicators/internal/ratelimit"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
	"github.com/pesio-ai/be-ops-indicators/internal/repository/memory"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("storage", cfg.StorageDriver).
		Msg("Starting Indicators Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize datastore
	var store repository.Store
	switch cfg.StorageDriver {
	case config.DriverMemory:
		store = memory.New()
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			DSN:             cfg.Database.DSN(),
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		if cfg.MigrateOnStart {
			applied, err := db.Migrate(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			log.Info().Strs("applied", applied).Msg("Migrations up to date")
		}
		store = repository.NewPostgresStore(db)
	}

	// Failed-login throttle
	var limiter service.LoginLimiter = ratelimit.Noop{}
	if cfg.Redis.URL != "" {
		rdb, err := ratelimit.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		limiter = ratelimit.NewLoginLimiter(rdb, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow)
		log.Info().Int("max_attempts", cfg.Auth.LoginMaxAttempts).Msg("Login throttle enabled")
	}

	// Audit fan-out
	sinks := []service.AuditSink{service.NewLogAuditSink(log)}
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		sinks = append(sinks, client.NewAuditPublisher(nc, cfg.NATS.SubjectPrefix, log))
		log.Info().Str("subject_prefix", cfg.NATS.SubjectPrefix).Msg("Audit publishing enabled")
	}
	auditor := service.NewAuditor(sinks...)

	// Initialize services
	hasher := service.NewPasswordHasher(cfg.Auth.BcryptCost)
	resolver, err := service.NewResolver(hasher, cfg.Auth.PlaceholderPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create resolver")
	}
	authService, err := service.NewAuthService(store, hasher, limiter, auditor, service.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		TTL:    cfg.Auth.TokenTTL,
		Leeway: cfg.Auth.Leeway,
		Issuer: cfg.Auth.Issuer,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth service")
	}
	workflowService := service.NewWorkflowService(store, resolver, auditor, log)
	directoryService := service.NewDirectoryService(store, auditor, log)
	identityService := service.NewIdentityService(store, hasher, cfg.Auth.PlaceholderPassword, auditor, log)

	seeded, err := authService.SeedAdmin(ctx, cfg.Auth.SeedAdminEmail, cfg.Auth.SeedAdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed administrator")
	}
	if seeded {
		log.Info().Str("email", cfg.Auth.SeedAdminEmail).Msg("Administrator seeded")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(store, authService, workflowService, directoryService, identityService, log)
	h := middleware.Chain(httpHandler.Routes(),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	healthChecker := handler.NewHealthChecker(store, log)
	healthChecker.Refresh(ctx)
	grpcServer := handler.NewGRPCServer(authService, healthChecker, log)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	healthChecker.Shutdown()
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
