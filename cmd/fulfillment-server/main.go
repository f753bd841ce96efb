package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fulfillment/internal/config"
	"github.com/ehr/fulfillment/internal/domain/auditevent"
	"github.com/ehr/fulfillment/internal/domain/catalog"
	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/domain/order"
	"github.com/ehr/fulfillment/internal/domain/prescription"
	"github.com/ehr/fulfillment/internal/domain/provider"
	"github.com/ehr/fulfillment/internal/platform/cache"
	"github.com/ehr/fulfillment/internal/platform/db"
	"github.com/ehr/fulfillment/internal/platform/middleware"
	"github.com/ehr/fulfillment/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fulfillment-server",
		Short: "Order fulfillment workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the fulfillment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Cache: Redis when configured, in-process otherwise
	var store cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info().Msg("connected to redis")
	} else {
		mem := cache.NewInMemoryStore()
		mem.StartCleanup(ctx, time.Minute)
		store = mem
	}

	// Repositories
	productRepo := catalog.NewProductRepoPG(pool)
	providerRepo := provider.NewProviderRepoPG(pool)
	profileRepo := compliance.NewProfileRepoPG(pool)
	interactionRepo := compliance.NewInteractionRepoPG(pool)
	orderRepo := order.NewRepoPG(pool)
	rxRepo := prescription.NewRepoPG(pool)
	routingRepo := prescription.NewRoutingRepoPG(pool)
	auditRepo := auditevent.NewAuditEventRepoPG(pool)
	contactRepo := notification.NewContactRepoPG(pool)

	// Services
	catalogSvc := catalog.NewService(productRepo, store, cfg.CatalogCacheTTL)
	auditSvc := auditevent.NewService(auditRepo)

	notifyManager := notification.NewManager(
		&notification.MockEmailSender{},
		&notification.MockSMSSender{},
		notification.NewTemplateEngine(),
	)
	gateway := notification.NewGateway(notifyManager, contactRepo, logger)
	gatewayCtx, gatewayCancel := context.WithCancel(ctx)
	defer gatewayCancel()
	gateway.Start(gatewayCtx)

	rxSvc := prescription.NewService(rxRepo, routingRepo, prescription.NewSigner(cfg.RxSigningSecret), pool)

	orderSvc := order.NewService(order.Deps{
		Orders:              orderRepo,
		Products:            productRepo,
		Validator:           provider.NewValidator(providerRepo),
		Evaluator:           compliance.NewEvaluator(interactionRepo),
		Profiles:            profileRepo,
		Prescriptions:       rxSvc,
		Audit:               auditSvc,
		Gateway:             gateway,
		Pool:                pool,
		Logger:              logger,
		Retries:             cfg.AdvanceRetries,
		PharmacyReceiveWait: cfg.PharmacyReceiveWait,
		PharmacyFillWait:    cfg.PharmacyFillWait,
	})
	defer orderSvc.Shutdown()

	if err := orderSvc.RestoreTimers(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to restore auto-advance timers")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Actor-ID"},
	}))
	e.Use(middleware.AccessLog(logger, auditSvc))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API routes
	apiV1 := e.Group("/api/v1")
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	provider.NewHandler(providerRepo).RegisterRoutes(apiV1)
	compliance.NewHandler(profileRepo, interactionRepo).RegisterRoutes(apiV1)
	order.NewHandler(orderSvc).RegisterRoutes(apiV1)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)
	auditevent.NewHandler(auditSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifyManager, contactRepo).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	gatewayCancel()
	gateway.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
