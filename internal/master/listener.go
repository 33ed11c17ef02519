package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
)

// IdentityTable tracks which worker ids currently hold a live session.
// A nil table accepts every claim.
type IdentityTable struct {
	mu   sync.Mutex
	live map[int]struct{}
}

func NewIdentityTable() *IdentityTable {
	return &IdentityTable{live: make(map[int]struct{})}
}

// Claim reserves id, returning false if it is already held.
func (t *IdentityTable) Claim(id int) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live[id]; ok {
		return false
	}
	t.live[id] = struct{}{}
	return true
}

func (t *IdentityTable) Release(id int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.live, id)
	t.mu.Unlock()
}

// ListenerConfig holds what every accepted session is built with
type ListenerConfig struct {
	Logger       *slog.Logger
	Codec        protocol.Codec
	Queue        BatchSource
	Sink         StatusSink
	Registry     WorkerRegistry
	ReadTimeout  time.Duration
	DrainTimeout time.Duration
	MaxFrameSize uint64
}

// Listener accepts worker connections on a unix socket and runs one session per connection.
type Listener struct {
	path   string
	ln     net.Listener
	cfg    ListenerConfig
	logger *slog.Logger
	claims *IdentityTable

	wg        sync.WaitGroup
	closeOnce sync.Once
	accepted  int

	mu    sync.Mutex
	limit int
	ready int
}

// Listen binds path, removing a stale socket file left by an earlier run.
func Listen(path string, cfg *ListenerConfig) (*Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	cfg.Logger.Info("Listening for workers", slog.String("socket", path))

	return &Listener{
		path:   path,
		ln:     ln,
		cfg:    *cfg,
		logger: cfg.Logger,
		claims: NewIdentityTable(),
	}, nil
}

func (l *Listener) Path() string { return l.path }

// Serve accepts connections until limit sessions completed their handshake
// (0 means no limit), StopAccepting is called, or ctx is cancelled. Connections
// that fail the handshake do not count towards limit. Sessions keep running
// after Serve returns; use Wait to join them.
func (l *Listener) Serve(ctx context.Context, limit int) error {
	stop := context.AfterFunc(ctx, l.StopAccepting)
	defer stop()

	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: accept failed: %v", domain.ErrTransport, err)
		}
		l.accepted++

		l.wg.Add(1)
		go l.serveConn(ctx, conn, l.accepted)
	}
}

// sessionReady counts a completed handshake and stops accepting once every
// expected worker has one.
func (l *Listener) sessionReady(int) {
	l.mu.Lock()
	l.ready++
	done := l.limit > 0 && l.ready >= l.limit
	ready := l.ready
	l.mu.Unlock()

	if done {
		l.logger.Debug("Every expected worker connected", slog.Int("sessions", ready))
		l.StopAccepting()
	}
}

// Ready returns the number of sessions that completed their handshake.
func (l *Listener) Ready() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn, seq int) {
	defer l.wg.Done()

	pconn := protocol.NewConn(conn, l.cfg.Codec)
	if l.cfg.MaxFrameSize > 0 {
		pconn.SetMaxFrameSize(l.cfg.MaxFrameSize)
	}
	pconn.SetReadTimeout(l.cfg.ReadTimeout)

	session := NewSession(pconn, &SessionConfig{
		Logger:       l.logger.With(slog.Int("connection", seq)),
		Queue:        l.cfg.Queue,
		Sink:         l.cfg.Sink,
		Registry:     l.cfg.Registry,
		Claims:       l.claims,
		DrainTimeout: l.cfg.DrainTimeout,
		OnReady:      l.sessionReady,
	})

	err := session.Run(ctx)

	var protoErr *domain.ProtocolError
	switch {
	case err == nil:
	case errors.As(err, &protoErr):
		l.logger.Warn("Worker session ended with protocol error",
			slog.Int("connection", seq),
			slog.Int("worker_id", protoErr.WorkerID),
			slog.String("state", string(protoErr.State)),
			slog.Any("error", err),
		)
	case ctx.Err() != nil:
		l.logger.Info("Worker session cancelled",
			slog.Int("connection", seq),
			slog.Int("worker_id", session.WorkerID()),
		)
	default:
		l.logger.Warn("Worker session ended unexpectedly",
			slog.Int("connection", seq),
			slog.Int("worker_id", session.WorkerID()),
			slog.Any("error", err),
		)
	}
}

// StopAccepting closes the listening socket. Running sessions are unaffected.
func (l *Listener) StopAccepting() {
	l.closeOnce.Do(func() {
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.logger.Warn("Failed to close listener", slog.Any("error", err))
		}
	})
}

// Wait blocks until every accepted session has finished.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	l.StopAccepting()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}
	return nil
}
