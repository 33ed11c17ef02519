package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/rhythm/internal/config"
	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/internal/worker"
	"github.com/cuongbtq/rhythm/shared/logger"
)

const dialTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	env, err := config.LoadWorkerEnv(os.Getenv)
	if err != nil {
		return fmt.Errorf("invalid worker environment: %w", err)
	}

	// stdout is captured by the master; structured logs go to the shared logs dir
	appLogger, err := logger.New(&logger.Config{
		Level:      env.LogLevel,
		Format:     "json",
		Output:     env.LogFile(),
		TimeFormat: time.RFC3339,
		MaxSizeMB:  20,
		MaxBackups: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.With(slog.Int("worker_id", env.WorkerID))

	appLogger.Info("Starting worker",
		slog.String("socket", env.SocketPath),
		slog.String("download_dir", env.DownloadDir),
		slog.String("work_dir", env.WorkDir),
		slog.String("tmp_dir", env.TmpDir),
		slog.String("codec", env.Codec),
		slog.Bool("simulate", env.Simulate),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := protocol.CodecByName(env.Codec)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := worker.Dial(dialCtx, env.SocketPath)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to master: %w", err)
	}

	downloader := worker.NewYTDLPDownloader(&worker.YTDLPConfig{
		Logger:         appLogger.Logger,
		OutputDir:      env.DownloadDir,
		OutputTemplate: env.OutputTemplate,
		TempDir:        env.WorkDir,
		Simulate:       env.Simulate,
	})

	w := worker.NewWorker(&worker.Config{
		ID:         env.WorkerID,
		Conn:       conn,
		Codec:      codec,
		Downloader: downloader,
		Logger:     appLogger.Logger,
		RelayLevel: logger.ParseLevel(env.LogLevel),
	})

	if err := w.Run(ctx); err != nil {
		appLogger.Error("Worker stopped", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker finished")
	return nil
}
