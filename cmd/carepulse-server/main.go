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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carepulse/carepulse/internal/config"
	"github.com/carepulse/carepulse/internal/domain/alerts"
	"github.com/carepulse/carepulse/internal/domain/identity"
	"github.com/carepulse/carepulse/internal/domain/medication"
	"github.com/carepulse/carepulse/internal/domain/patient"
	"github.com/carepulse/carepulse/internal/domain/pipeline"
	"github.com/carepulse/carepulse/internal/domain/risk"
	"github.com/carepulse/carepulse/internal/domain/vitals"
	"github.com/carepulse/carepulse/internal/domain/vocab"
	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/internal/platform/chat"
	"github.com/carepulse/carepulse/internal/platform/db"
	"github.com/carepulse/carepulse/internal/platform/metrics"
	"github.com/carepulse/carepulse/internal/platform/middleware"
	"github.com/carepulse/carepulse/internal/platform/notify"
	"github.com/carepulse/carepulse/internal/platform/ocr"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carepulse-server",
		Short: "CarePulse patient monitoring API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(vocabCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CarePulse API server",
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

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage the drug vocabulary",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import drugs and interactions from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("csv")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.VocabCSV
			}
			if path == "" {
				return fmt.Errorf("--csv is required (or set VOCAB_CSV)")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			drugRepo := vocab.NewDrugRepoPG(pool)
			interactionRepo := vocab.NewInteractionRepoPG(pool)
			store := vocab.NewStore(drugRepo, interactionRepo, logger)
			svc := vocab.NewService(pool, drugRepo, interactionRepo, store, logger)

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := svc.ImportCSV(ctx, f)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			fmt.Printf("Imported %d drug(s) and %d interaction(s) from %d row(s); %d skipped.\n",
				stats.Drugs, stats.Interactions, stats.Rows, stats.Skipped)
			return nil
		},
	}
	importCmd.Flags().String("csv", "", "Path to the vocabulary CSV file")
	cmd.AddCommand(importCmd)

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

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Alert event fan-out. The server runs without it when Redis is not
	// configured or unreachable; alerts still persist, only events stop.
	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.RedisURL != "" {
		sp, err := notify.NewStreamPublisher(ctx, cfg.RedisURL, cfg.AlertStream, logger)
		if err != nil {
			logger.Error().Err(err).Msg("alert stream publisher unavailable, events disabled")
		} else {
			publisher = sp
			logger.Info().Str("stream", cfg.AlertStream).Msg("alert stream publisher connected")
		}
	}
	defer publisher.Close()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(middleware.RequestTimeout(60 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(metrics.Middleware())
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Secret:  []byte(cfg.JWTSecret),
		Skipper: auth.AuthSkipper,
	}))
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		return c.JSON(http.StatusOK, db.GetPoolStats(pool))
	})
	e.GET("/metrics", metrics.Handler())

	// -- Domain services --

	patientRepo := patient.NewRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)

	userRepo := identity.NewUserRepoPG(pool)
	identitySvc := identity.NewService(pool, userRepo, patientSvc, []byte(cfg.JWTSecret))

	vitalsRepo := vitals.NewRepoPG(pool)
	vitalsSvc := vitals.NewService(vitalsRepo)

	riskEngine := risk.NewEngine(risk.DefaultConfig())
	riskRepo := risk.NewRepoPG(pool)
	riskSvc := risk.NewService(riskRepo, riskEngine)

	drugRepo := vocab.NewDrugRepoPG(pool)
	interactionRepo := vocab.NewInteractionRepoPG(pool)
	vocabStore := vocab.NewStore(drugRepo, interactionRepo, logger)
	vocabSvc := vocab.NewService(pool, drugRepo, interactionRepo, vocabStore, logger)

	prescriptionRepo := medication.NewPrescriptionRepoPG(pool)
	overrideRepo := medication.NewOverrideRepoPG(pool)
	medicationSvc := medication.NewService(prescriptionRepo, overrideRepo, vocabStore, logger)

	alertRepo := alerts.NewRepoPG(pool)
	alertSvc := alerts.NewService(pool, alertRepo, publisher, logger)

	anomalyCfg := alerts.DefaultConfig()
	if cfg.AnomalyDeviationPct > 0 {
		anomalyCfg.DeviationFraction = cfg.AnomalyDeviationPct / 100
	}
	anomalyEngine := alerts.NewEngine(anomalyCfg)

	ocrClient := ocr.NewClient(cfg.OCRURL, cfg.OCRTimeout(), ocr.WithMaxRetries(cfg.UpstreamRetries))
	chatClient := chat.NewClient(cfg.ChatURL, cfg.ChatTimeout(), chat.WithMaxRetries(cfg.UpstreamRetries))

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Patients:      patientSvc,
		Vitals:        vitalsSvc,
		RiskEngine:    riskEngine,
		Risk:          riskSvc,
		AnomalyEngine: anomalyEngine,
		Alerts:        alertSvc,
		Prescriptions: medicationSvc,
		Vocabulary:    vocabStore,
		Normalizer:    medication.NewNormalizer(cfg.MatchThreshold, nil),
		OCR:           ocrClient,
		Logger:        logger,
		WindowDays:    cfg.RiskWindowDays,
	})

	// Warm state: vocabulary snapshot and the open-alert gauge. Both are
	// recoverable, so a failure degrades instead of aborting startup.
	if _, err := vocabSvc.Reload(ctx); err != nil {
		logger.Warn().Err(err).Msg("vocabulary load failed; medication matching degraded until reload")
	}
	if err := alertSvc.SyncOpenGauge(ctx); err != nil {
		logger.Warn().Err(err).Msg("open alert gauge not seeded")
	}

	// -- Register domain handlers --

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	vitals.NewHandler(vitalsSvc).RegisterRoutes(apiV1)
	risk.NewHandler(riskSvc).RegisterRoutes(apiV1)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	alerts.NewHandler(alertSvc).RegisterRoutes(apiV1)
	vocab.NewHandler(vocabSvc).RegisterRoutes(apiV1)
	pipeline.NewHandler(orchestrator).RegisterRoutes(apiV1)

	contextBuilder := &chatContextBuilder{
		patients: patientSvc,
		vitals:   vitalsSvc,
		risks:    riskSvc,
		meds:     medicationSvc,
		alerts:   alertSvc,
	}
	chat.NewHandler(chatClient, contextBuilder.Summarize, logger).RegisterRoutes(apiV1.Group("/patients"))

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

// chatContextBuilder assembles the clinical context for the chat endpoint
// by aggregating across domain services.
type chatContextBuilder struct {
	patients *patient.Service
	vitals   *vitals.Service
	risks    *risk.Service
	meds     *medication.Service
	alerts   *alerts.Service
}

// Summarize implements chat.SummaryFunc. Context pieces are best-effort:
// a failed lookup drops that section rather than failing the chat.
func (b *chatContextBuilder) Summarize(ctx context.Context, patientID string) (chat.ContextData, error) {
	pid, err := uuid.Parse(patientID)
	if err != nil {
		return chat.ContextData{}, chat.ErrUnknownPatient
	}
	p, err := b.patients.GetPatient(ctx, pid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ContextData{}, chat.ErrUnknownPatient
		}
		return chat.ContextData{}, err
	}

	data := chat.ContextData{}
	if p.DateOfBirth != nil {
		data.AgeYears = ageYears(*p.DateOfBirth, time.Now().UTC())
	}
	if p.Gender != nil {
		data.Gender = *p.Gender
	}

	if latest, err := b.vitals.Latest(ctx, pid); err == nil {
		data.Latest = vitalsContext(latest)
	}
	if scores, err := b.risks.Current(ctx, pid); err == nil {
		for _, s := range scores {
			data.Risks = append(data.Risks, chat.RiskLine{
				Type:  string(s.RiskType),
				Level: s.RiskLevel,
				Score: s.Score,
			})
		}
	}
	if _, total, err := b.meds.ListPrescriptions(ctx, pid, 1, 0); err == nil {
		data.PrescriptionCount = total
	}
	open := false
	if _, total, err := b.alerts.List(ctx, alerts.Filter{PatientID: &pid, Acknowledged: &open}, 1, 0); err == nil {
		data.OpenAlertCount = total
	}
	return data, nil
}

func ageYears(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func vitalsContext(s *vitals.Sample) *chat.VitalsSnapshot {
	if s == nil {
		return nil
	}
	return &chat.VitalsSnapshot{
		Systolic:    s.Systolic,
		Diastolic:   s.Diastolic,
		HeartRate:   s.HeartRate,
		Temperature: s.Temperature,
		Glucose:     s.BloodGlucose,
		SpO2:        s.OxygenSaturation,
	}
}
