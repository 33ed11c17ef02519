package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/rhythm/internal/api/handler"
	"github.com/cuongbtq/rhythm/internal/api/router"
	"github.com/cuongbtq/rhythm/internal/config"
	"github.com/cuongbtq/rhythm/internal/extract"
	"github.com/cuongbtq/rhythm/internal/master"
	"github.com/cuongbtq/rhythm/internal/master/storage"
	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/shared/database"
	"github.com/cuongbtq/rhythm/shared/logger"
	"github.com/cuongbtq/rhythm/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("RHYTHM_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/master/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	threads := flag.Int("j", 0, "Number of worker processes (overrides master.threads)")
	batchSize := flag.Int("b", 0, "Jobs per batch (overrides master.batch_size)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [input-file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *threads > 0 {
		cfg.Master.Threads = *threads
	}
	if *batchSize > 0 {
		cfg.Master.BatchSize = *batchSize
	}
	if flag.NArg() > 0 {
		cfg.Master.InputPath = flag.Arg(0)
	}
	if cfg.Master.InputPath == "" {
		flag.Usage()
		return errors.New("input file is required")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	runID := uuid.NewString()
	appLogger = appLogger.With(slog.String("run_id", runID))

	appLogger.Info("Starting master",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Int("threads", cfg.Master.Threads),
		slog.Int("batch_size", cfg.Master.BatchSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize dedup store
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := storage.NewStorage(dbClient.GetDB(), dbClient.Driver(), appLogger.Logger)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	queue, err := buildQueue(ctx, cfg, store, appLogger.Logger)
	if err != nil {
		return err
	}

	// Completion announcements are optional
	var notifier master.CompletionNotifier
	if cfg.Notify.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.Notify.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")
		notifier = master.NewCompletionAnnouncer(rabbitClient, runID, appLogger.Logger)
	}

	sinkCfg := &master.ProgressSinkConfig{
		Logger:   appLogger.Logger,
		Store:    store,
		Notifier: notifier,
	}
	if cfg.Master.DumpStatus {
		sinkCfg.DumpDir = cfg.Master.LogsDir()
	}
	sink := master.NewProgressSink(sinkCfg)

	codec, err := protocol.CodecByName(cfg.Master.Codec)
	if err != nil {
		return err
	}

	executable, err := master.ResolveWorkerExecutable(cfg.Master.WorkerExecutable)
	if err != nil {
		return err
	}

	supervisor := master.NewSupervisor(&master.SupervisorConfig{
		Logger:         appLogger.Logger,
		Executable:     executable,
		Workers:        cfg.Master.Threads,
		SocketPath:     cfg.Master.SocketPath(),
		TmpDir:         cfg.Master.TmpDir,
		LogsDir:        cfg.Master.LogsDir(),
		DownloadDir:    cfg.Master.DownloadDir,
		OutputTemplate: cfg.Master.OutputTemplate,
		Codec:          codec.Name(),
		Simulate:       cfg.Master.Simulate,
		LogLevel:       cfg.Master.WorkerLogLevel,
	})

	m := master.NewMaster(&master.Config{
		Logger:       appLogger.Logger,
		SocketPath:   cfg.Master.SocketPath(),
		Codec:        codec,
		Queue:        queue,
		Sink:         sink,
		Spawner:      supervisor,
		Workers:      cfg.Master.Threads,
		ReadTimeout:  cfg.Session.ReadTimeout,
		DrainTimeout: cfg.Session.DrainTimeout,
		MaxFrameSize: cfg.Session.MaxFrameSize,
	})

	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	g.Go(func() error {
		defer close(runDone)
		return m.Run(gctx)
	})

	if cfg.Server.Enabled {
		srv := initServer(cfg, appLogger.Logger, &handler.Dependencies{
			Logger:         appLogger.Logger,
			RunID:          runID,
			Progress:       sink,
			Queue:          queue,
			DB:             dbClient,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		g.Go(func() error {
			appLogger.Info("Starting HTTP server",
				slog.String("address", srv.Addr),
				slog.Duration("read_timeout", cfg.Server.ReadTimeout),
				slog.Duration("write_timeout", cfg.Server.WriteTimeout),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			select {
			case <-runDone:
			case <-gctx.Done():
			}

			appLogger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("Server forced to shutdown", slog.Any("error", err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Master finished", slog.Any("queue", queue.Stats()))
	return nil
}

// buildQueue extracts the job list, drops everything already downloaded and splits it into batches
func buildQueue(ctx context.Context, cfg *config.Config, store *storage.Storage, logger *slog.Logger) (*master.BatchQueue, error) {
	extractor, err := extract.New(cfg.Extract.Pattern, cfg.Extract.Group)
	if err != nil {
		return nil, err
	}

	jobs, text, err := extractor.ExtractFile(cfg.Master.InputPath)
	if err != nil {
		return nil, err
	}

	if cfg.Extract.ExpandPlaylists {
		expander := extract.NewExpander(extract.NewYTPlaylistLister(cfg.Extract.PlaylistTimeout), logger)
		jobs = expander.Expand(ctx, text, jobs)
	}

	completed, err := store.CompletedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed downloads: %w", err)
	}

	pending := master.FilterCompleted(jobs, completed)
	logger.Info("Jobs extracted",
		slog.String("input", cfg.Master.InputPath),
		slog.Int("found", len(jobs)),
		slog.Int("already_downloaded", len(completed)),
		slog.Int("pending", len(pending)),
	)

	return master.NewBatchQueue(pending, cfg.Master.BatchSize)
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		MaxSizeMB:    cfg.Rotation.MaxSizeMB,
		MaxBackups:   cfg.Rotation.MaxBackups,
		MaxAgeDays:   cfg.Rotation.MaxAgeDays,
		Compress:     cfg.Rotation.Compress,
	}

	return logger.New(loggerCfg)
}

// initDatabase initializes the dedup store database client
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return database.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initServer builds the progress API server
func initServer(cfg *config.Config, logger *slog.Logger, deps *handler.Dependencies) *http.Server {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
