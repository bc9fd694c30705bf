package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phoenikes/calldoc-sync/internal/config"
	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
	"github.com/phoenikes/calldoc-sync/internal/domain/examination"
	"github.com/phoenikes/calldoc-sync/internal/domain/patient"
	syncdomain "github.com/phoenikes/calldoc-sync/internal/domain/sync"
	"github.com/phoenikes/calldoc-sync/internal/platform/db"
	"github.com/phoenikes/calldoc-sync/internal/platform/middleware"
	"github.com/phoenikes/calldoc-sync/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sync-server",
		Short: "Appointment reconciliation service",
		Long:  "Pulls appointments from the scheduling frontend and reconciles them into the examination database.",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
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

// syncCmd runs a single reconciliation in the foreground and exits.
// Useful from cron or for manual catch-up after an outage.
func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			patientID, _ := cmd.Flags().GetInt64("patient")
			kindID, _ := cmd.Flags().GetInt64("kind")
			deleteObsolete, _ := cmd.Flags().GetBool("delete-obsolete")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg)

			day := time.Now()
			if dateStr != "" {
				day, err = time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", dateStr)
				}
			}
			if kindID == 0 {
				kindID = cfg.DefaultProcedureKindID
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			engine := buildEngine(cfg, pool, logger, deleteObsolete)

			scope := syncdomain.Scope{
				Kind:            syncdomain.ScopeDay,
				Date:            day,
				ProcedureKindID: kindID,
			}
			if patientID != 0 {
				scope.Kind = syncdomain.ScopePatient
				scope.ExternalPatientID = patientID
			}

			runCtx, cancel := context.WithTimeout(ctx, cfg.TaskTimeout())
			defer cancel()

			result, err := engine.Reconcile(runCtx, scope)
			if err != nil {
				return err
			}

			fmt.Printf("inserted=%d updated=%d deleted=%d skipped=%d\n",
				result.Inserted, result.Updated, result.Deleted, result.Skipped)
			for _, e := range result.Errors {
				fmt.Printf("warning: %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().String("date", "", "Day to reconcile (YYYY-MM-DD, default today)")
	cmd.Flags().Int64("patient", 0, "Restrict to one scheduling-system patient id")
	cmd.Flags().Int64("kind", 0, "Procedure kind id (default from config)")
	cmd.Flags().Bool("delete-obsolete", false, "Delete future-day records no longer scheduled")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func buildEngine(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, deleteObsolete bool) *syncdomain.Engine {
	source := appointment.NewClient(cfg.SourceBaseURL, cfg.SourceTimeout(), logger)
	return syncdomain.NewEngine(syncdomain.EngineConfig{
		Source:       source,
		Patients:     patient.NewRepoPG(pool),
		Insurance:    patient.NewInsuranceIndexPG(pool),
		Examinations: examination.NewRepoPG(pool),
		Mappings:     examination.NewMappingLoaderPG(pool),
		Defaults: examination.Defaults{
			PractitionerBillingID: cfg.DefaultPractitionerBillingID,
			LocationDeviceID:      cfg.DefaultLocationDeviceID,
			KindID:                cfg.DefaultProcedureKindID,
		},
		DeleteObsolete: deleteObsolete,
		Logger:         logger,
	})
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("database pool established")

	engine := buildEngine(cfg, pool, logger, cfg.DeleteObsolete)

	var sink notify.Sink = notify.NopSink{}
	if cfg.NotifyWebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.NotifyWebhookURL, cfg.NotifyChannel, logger)
	}

	coordinator := syncdomain.NewCoordinator(syncdomain.CoordinatorConfig{
		Engine:    engine,
		Sink:      sink,
		Logger:    logger,
		Workers:   cfg.SyncWorkers,
		Timeout:   cfg.TaskTimeout(),
		Retention: cfg.TaskRetention(),
	})
	coordinator.Start(ctx)
	defer coordinator.Stop()

	var detectorStatus syncdomain.DetectorStatuser
	detectorCtx, stopDetector := context.WithCancel(ctx)
	defer stopDetector()
	if cfg.DetectorEnabled {
		detector := syncdomain.NewDetector(syncdomain.DetectorConfig{
			Source:      appointment.NewClient(cfg.SourceBaseURL, cfg.SourceTimeout(), logger),
			Coordinator: coordinator,
			Interval:    cfg.DetectorInterval(),
			KindID:      cfg.DefaultProcedureKindID,
			Logger:      logger,
		})
		go detector.Run(detectorCtx)
		detectorStatus = detector
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	apiV1 := e.Group("/api/v1")
	handler := syncdomain.NewHandler(coordinator, detectorStatus, cfg.DefaultProcedureKindID)
	handler.RegisterRoutes(apiV1)

	e.GET("/health/db", func(c echo.Context) error {
		s := db.Check(c.Request().Context(), pool)
		code := http.StatusOK
		if !s.Healthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, s)
	})

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
