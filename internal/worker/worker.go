package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/internal/worker/domain"
)

// Downloader retrieves one job, reporting progress through report.
type Downloader interface {
	Download(ctx context.Context, job domain.Job, report func(*protocol.StatusReport)) error
}

// Config holds worker configuration
type Config struct {
	ID         int
	Conn       io.ReadWriteCloser
	Codec      protocol.Codec
	Downloader Downloader
	// Logger receives local diagnostics; job logs are relayed to the master.
	Logger *slog.Logger
	// RelayLevel is the minimum level relayed to the master.
	RelayLevel slog.Leveler
}

// Worker pulls batches from the master and downloads them one job at a time
type Worker struct {
	id         int
	conn       *protocol.Conn
	downloader Downloader
	logger     *slog.Logger
	remote     *slog.Logger

	jobs   int
	failed int
}

// Dial connects to the master endpoint
func Dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to master at %s: %w", socketPath, err)
	}
	return conn, nil
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	codec := cfg.Codec
	if codec == nil {
		codec = protocol.JSON()
	}
	conn := protocol.NewConn(cfg.Conn, codec)

	return &Worker{
		id:         cfg.ID,
		conn:       conn,
		downloader: cfg.Downloader,
		logger:     cfg.Logger.With(slog.Int("worker_id", cfg.ID)),
		remote: slog.New(NewRelayHandler(conn, cfg.ID, &RelayOptions{
			Level:  cfg.RelayLevel,
			Target: "Thread",
		})),
	}
}

// Remote returns a logger whose records are relayed to the master.
func (w *Worker) Remote() *slog.Logger { return w.remote }

// Run greets the master and processes batches until the master releases the worker.
func (w *Worker) Run(ctx context.Context) error {
	defer w.conn.Close()
	stop := context.AfterFunc(ctx, func() { w.conn.Close() })
	defer stop()

	if err := w.greet(); err != nil {
		return w.wrap(ctx, err)
	}
	w.logger.Info("Connected to master")

	for {
		if err := w.conn.WriteMessage(protocol.BatchRequest()); err != nil {
			return w.wrap(ctx, fmt.Errorf("failed to request batch: %w", err))
		}

		msg, err := w.conn.ReadMessage()
		if err != nil {
			return w.wrap(ctx, fmt.Errorf("failed to read batch: %w", err))
		}

		switch msg.Kind {
		case protocol.KindBatch:
			w.logger.Debug("Batch received", slog.Int("jobs", len(msg.Jobs)))
			for _, id := range msg.Jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := w.processJob(ctx, id); err != nil {
					return w.wrap(ctx, err)
				}
			}
		case protocol.KindEndRequest:
			w.logger.Info("Released by master",
				slog.Int("jobs", w.jobs),
				slog.Int("failed", w.failed),
			)
			return nil
		default:
			return fmt.Errorf("%w: %s while waiting for a batch", domain.ErrUnexpectedMessage, msg.Kind)
		}
	}
}

func (w *Worker) greet() error {
	if err := w.conn.WriteMessage(protocol.Greeting(w.id)); err != nil {
		return fmt.Errorf("failed to send greeting: %w", err)
	}

	msg, err := w.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if msg.Kind != protocol.KindGreeting {
		return fmt.Errorf("%w: %s instead of greeting", domain.ErrUnexpectedMessage, msg.Kind)
	}
	if msg.ID() != w.id {
		return fmt.Errorf("%w: sent %d, got %d", domain.ErrGreetingMismatch, w.id, msg.ID())
	}
	return nil
}

// wrap prefers the cancellation cause over the I/O error it provoked
func (w *Worker) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrUnexpectedMessage) {
		return ctxErr
	}
	return err
}
