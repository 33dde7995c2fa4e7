package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chanarr/chanarr/internal/config"
	"github.com/chanarr/chanarr/internal/database"
	"github.com/chanarr/chanarr/internal/database/migrations"
	internalhttp "github.com/chanarr/chanarr/internal/http"
	"github.com/chanarr/chanarr/internal/http/handlers"
	"github.com/chanarr/chanarr/internal/ingestor"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/scheduler"
	"github.com/chanarr/chanarr/internal/service"
	"github.com/chanarr/chanarr/internal/service/logs"
	"github.com/chanarr/chanarr/internal/service/progress"
	"github.com/chanarr/chanarr/internal/startup"
	"github.com/chanarr/chanarr/internal/storage"
	"github.com/chanarr/chanarr/internal/urlutil"
	"github.com/chanarr/chanarr/internal/version"
	"github.com/chanarr/chanarr/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chanarr server",
	Long: `Start the chanarr HTTP server and API.

The server provides:
- REST API for managing stream sources, EPG sources, filters, rules, and proxies
- Published M3U playlists and XMLTV guides at /proxy/{id}.m3u and /proxy/{id}.xmltv
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("dsn", "chanarr.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for generated output files")

	// Pipeline flags
	serveCmd.Flags().Bool("ingestion-guard", true, "Enable ingestion guard (waits for active ingestions before generating)")

	// Bind flags to viper
	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("dsn"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	mustBindPFlag("pipeline.ingestion_guard", serveCmd.Flags().Lookup("ingestion-guard"))
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logs service and wrap the default slog handler so API
	// clients can stream and inspect recent log entries
	logsService := logs.New()
	wrappedHandler := logsService.WrapHandler(slog.Default().Handler())
	slog.SetDefault(slog.New(wrappedHandler))

	logger := slog.Default()

	// Clean up orphaned temp directories from previous runs
	orphansRemoved, err := startup.CleanupSystemTempDirs(logger)
	if err != nil {
		logger.Warn("failed to clean orphaned temp directories",
			slog.String("error", err.Error()),
		)
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned temp directories on startup",
			slog.Int("removed_count", orphansRemoved),
		)
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Initialize database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	// Run migrations
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	streamSourceRepo := repository.NewStreamSourceRepository(db.DB)
	channelRepo := repository.NewChannelRepository(db.DB)
	epgSourceRepo := repository.NewEpgSourceRepository(db.DB)
	epgChannelRepo := repository.NewEpgChannelRepository(db.DB)
	epgProgramRepo := repository.NewEpgProgramRepository(db.DB)
	proxyRepo := repository.NewProxyRepository(db.DB)
	filterRepo := repository.NewFilterRepository(db.DB)
	dataMappingRuleRepo := repository.NewDataMappingRuleRepository(db.DB)

	// Reset proxies left in "generating" by an unclean shutdown
	if recovered, err := startup.RecoverStaleProxyStatuses(context.Background(), logger, proxyRepo); err != nil {
		logger.Warn("failed to recover stale proxy statuses",
			slog.String("error", err.Error()),
		)
	} else if recovered > 0 {
		logger.Info("recovered stale proxy statuses on startup",
			slog.Int("recovered_count", recovered),
		)
	}

	// Initialize storage sandbox
	sandbox, err := storage.NewSandbox(viper.GetString("storage.base_dir"))
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	// Initialize ingestor components
	stateManager := ingestor.NewStateManager()
	streamHandlerFactory := ingestor.NewHandlerFactory()
	epgHandlerFactory := ingestor.NewEpgHandlerFactory()

	// Initialize pipeline factory with default stages and optional ingestion guard
	var ingestionGuardStateManager *ingestor.StateManager
	if viper.GetBool("pipeline.ingestion_guard") {
		ingestionGuardStateManager = stateManager
		logger.Info("ingestion guard enabled for proxy generation")
	}

	baseURL := urlutil.NormalizeBaseURL(viper.GetString("server.base_url"))
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", viper.GetInt("server.port"))
	}

	pipelineFactory := pipeline.NewDefaultFactory(
		channelRepo,
		epgChannelRepo,
		epgProgramRepo,
		sandbox,
		logger,
		ingestionGuardStateManager,
		baseURL,
	)

	// Initialize progress service
	progressService := progress.NewService(logger)
	progressService.Start()
	defer progressService.Stop()

	// Initialize services
	sourceService := service.NewSourceService(
		streamSourceRepo,
		channelRepo,
		streamHandlerFactory,
		stateManager,
	).WithLogger(logger)

	epgService := service.NewEpgService(
		epgSourceRepo,
		epgChannelRepo,
		epgProgramRepo,
		epgHandlerFactory,
		stateManager,
	).WithLogger(logger)

	proxyService := service.NewProxyService(
		proxyRepo,
		pipelineFactory,
	).WithLogger(logger).WithProgressService(progressService)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize scheduler for cron-driven ingestion and regeneration
	schedConfig := scheduler.DefaultConfig()
	schedConfig.CatchupMissedRuns = viper.GetBool("scheduler.catchup_missed_runs")
	if age := viper.GetDuration("scheduler.max_catchup_age"); age > 0 {
		schedConfig.MaxCatchupAge = age
	}

	sched := scheduler.New(streamSourceRepo, epgSourceRepo, proxyRepo).
		WithLogger(logger).
		WithConfig(schedConfig).
		WithStreamIngestService(sourceService).
		WithEpgIngestService(epgService).
		WithProxyGenerateFunc(func(ctx context.Context, proxyID models.ULID) (*scheduler.ProxyGenerateResult, error) {
			result, err := proxyService.Generate(ctx, proxyID)
			if err != nil {
				return nil, err
			}
			return &scheduler.ProxyGenerateResult{
				ChannelCount: result.ChannelCount,
				ProgramCount: result.ProgramCount,
			}, nil
		})
	sched = sched.WithAutoRegeneration(scheduler.NewAutoRegenService(proxyRepo, sched).WithLogger(logger))

	if viper.GetBool("scheduler.enabled") {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
	} else {
		logger.Info("scheduler disabled by configuration")
	}

	// Initialize HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	if cfg.Server.ReadTimeout > 0 {
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Register OpenAPI docs handler with system theme detection (dark/light)
	docsHandler := handlers.NewDocsHandler("chanarr API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	// Serve published playlists and guides at /proxy/{id}.m3u and /proxy/{id}.xmltv
	outputHandler := handlers.NewOutputHandler(sandbox).WithLogger(logger)
	outputHandler.RegisterFileServer(server.Router())
	outputHandler.Register(server.API())

	// Register handlers
	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithCircuitBreakerManager(httpclient.DefaultManager)
	healthHandler.Register(server.API())

	streamSourceHandler := handlers.NewStreamSourceHandler(sourceService).
		WithScheduleSyncer(sched).
		WithProxyUsageChecker(proxyService)
	streamSourceHandler.Register(server.API())

	epgSourceHandler := handlers.NewEpgSourceHandler(epgService).
		WithScheduleSyncer(sched).
		WithProxyUsageChecker(proxyService)
	epgSourceHandler.Register(server.API())

	proxyHandler := handlers.NewProxyHandler(proxyService)
	proxyHandler.Register(server.API())

	expressionHandler := handlers.NewExpressionHandler()
	expressionHandler.Register(server.API())

	filterHandler := handlers.NewFilterHandler(filterRepo).
		WithUsageChecker(proxyService)
	filterHandler.Register(server.API())

	dataMappingRuleHandler := handlers.NewDataMappingRuleHandler(dataMappingRuleRepo).
		WithUsageChecker(proxyService)
	dataMappingRuleHandler.Register(server.API())

	progressHandler := handlers.NewProgressHandler(progressService)
	progressHandler.Register(server.API())
	progressHandler.RegisterSSE(server.Router())

	settingsHandler := handlers.NewSettingsHandler()
	settingsHandler.Register(server.API())

	channelHandler := handlers.NewChannelHandler(db.DB).WithLogger(logger)
	channelHandler.Register(server.API())

	epgHandler := handlers.NewEpgHandler(db.DB)
	epgHandler.Register(server.API())

	circuitBreakerHandler := handlers.NewCircuitBreakerHandler(httpclient.DefaultManager)
	circuitBreakerHandler.Register(server.API())

	configHandler := handlers.NewConfigHandler(httpclient.DefaultManager)
	configHandler.Register(server.API())

	logsHandler := handlers.NewLogsHandler(logsService)
	logsHandler.Register(server.API())
	logsHandler.RegisterSSE(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Start server
	logger.Info("starting chanarr server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
