package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
)

// Spawner starts the worker pool and reaps it.
type Spawner interface {
	WorkerRegistry
	Spawn(ctx context.Context) error
	Wait() error
}

// Config holds the collaborators of a Master run
type Config struct {
	Logger       *slog.Logger
	SocketPath   string
	Codec        protocol.Codec
	Queue        BatchSource
	Sink         StatusSink
	Spawner      Spawner
	Workers      int
	ReadTimeout  time.Duration
	DrainTimeout time.Duration
	MaxFrameSize uint64
}

// Master binds the worker endpoint, launches the pool and serves one session per worker.
type Master struct {
	cfg    Config
	logger *slog.Logger
}

func NewMaster(cfg *Config) *Master {
	c := *cfg
	if c.Codec == nil {
		c.Codec = protocol.JSON()
	}
	return &Master{cfg: c, logger: cfg.Logger}
}

// Run serves the pool until every session has ended and every worker has been reaped.
// Only startup failures (bind, spawn) are returned; session and worker failures are logged.
func (m *Master) Run(ctx context.Context) error {
	if m.cfg.Workers <= 0 {
		return fmt.Errorf("%w: worker count must be greater than 0", domain.ErrSpawn)
	}

	ln, err := Listen(m.cfg.SocketPath, &ListenerConfig{
		Logger:       m.logger,
		Codec:        m.cfg.Codec,
		Queue:        m.cfg.Queue,
		Sink:         m.cfg.Sink,
		Registry:     m.cfg.Spawner,
		ReadTimeout:  m.cfg.ReadTimeout,
		DrainTimeout: m.cfg.DrainTimeout,
		MaxFrameSize: m.cfg.MaxFrameSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ln.Close(); err != nil {
			m.logger.Warn("Failed to clean up socket", slog.Any("error", err))
		}
	}()

	if err := m.cfg.Spawner.Spawn(ctx); err != nil {
		return err
	}

	reaped := make(chan error, 1)
	go func() {
		err := m.cfg.Spawner.Wait()
		// nobody is left to dial
		ln.StopAccepting()
		reaped <- err
	}()

	start := time.Now()
	if err := ln.Serve(ctx, m.cfg.Workers); err != nil {
		m.logger.Error("Accept loop failed", slog.Any("error", err))
		ln.StopAccepting()
	}

	ln.Wait()
	if err := <-reaped; err != nil {
		m.logger.Warn("Some workers exited abnormally", slog.Any("error", err))
	}

	if stats, ok := m.cfg.Queue.(interface{ Stats() QueueStats }); ok {
		s := stats.Stats()
		m.logger.Info("Run finished",
			slog.Int("jobs_handed_out", s.JobsDrawn),
			slog.Int("jobs_remaining", s.Remaining),
			slog.Int("batches", s.BatchesDrawn),
			slog.Duration("elapsed", time.Since(start)),
		)
	} else {
		m.logger.Info("Run finished", slog.Duration("elapsed", time.Since(start)))
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		m.logger.Info("Run was interrupted")
	}
	return nil
}
