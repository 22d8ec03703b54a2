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

	"github.com/healthrec/healthrec/internal/config"
	"github.com/healthrec/healthrec/internal/domain/family"
	"github.com/healthrec/healthrec/internal/domain/insights"
	"github.com/healthrec/healthrec/internal/domain/session"
	"github.com/healthrec/healthrec/internal/platform/ai"
	"github.com/healthrec/healthrec/internal/platform/auth"
	"github.com/healthrec/healthrec/internal/platform/blobstore"
	"github.com/healthrec/healthrec/internal/platform/cache"
	"github.com/healthrec/healthrec/internal/platform/db"
	"github.com/healthrec/healthrec/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthrec-server",
		Short: "Health records API server",
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
		Short: "Start the API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			count, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migrations\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, cfg.MigrationsDir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

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

	// Blob store
	var blobs blobstore.BlobStore
	switch cfg.BlobBackend {
	case "s3":
		blobs, err = blobstore.NewS3Store(ctx, cfg.BlobBucket, cfg.BlobRegion)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize S3 blob store")
		}
		logger.Info().Str("bucket", cfg.BlobBucket).Msg("using S3 blob store")
	default:
		blobs = blobstore.NewMemory()
		logger.Warn().Msg("using in-memory blob store; uploads do not survive restarts")
	}

	// Report-path cache
	var paths cache.PathCache = cache.Noop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, cache.DefaultTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; report-path caching disabled")
		} else {
			defer redisCache.Close()
			paths = redisCache
			logger.Info().Msg("connected to redis")
		}
	}

	// AI collaborators
	aiClient := ai.NewClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, logger)
	renderer := ai.NewTemplateRenderer(blobs, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")

	// Family domain
	familySvc := family.NewService(
		family.NewMemberRepoPG(pool),
		family.NewPatternRepoPG(pool),
		logger,
	)
	family.NewHandler(familySvc).RegisterRoutes(apiV1)

	// Session domain
	sessionSvc := session.NewService(
		session.NewSessionRepoPG(pool),
		session.NewFileRepoPG(pool),
		session.NewParsedDocumentRepoPG(pool),
		blobs,
		aiClient,
		logger,
	)
	session.NewHandler(sessionSvc).RegisterRoutes(apiV1)

	// Insights domain
	insightsSvc := insights.NewService(
		insights.NewInsightsRepoPG(pool),
		insights.NewReportRepoPG(pool),
		insights.NewApprovalRepoPG(pool),
		sessionSvc,
		aiClient,
		renderer,
		blobs,
		paths,
		time.Duration(cfg.SignedURLTTL)*time.Second,
		logger,
	)
	insights.NewHandler(insightsSvc).RegisterRoutes(apiV1)

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
	logger.Info().Msg("server stopped")
	return nil
}
