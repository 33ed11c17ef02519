package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/shared/logger"
)

// StatusSink receives the progress side of a session.
type StatusSink interface {
	Register(workerID int)
	Unregister(workerID int)
	Update(ctx context.Context, workerID int, report *protocol.StatusReport) error
	DownloadStarted(workerID int)
	DownloadEnded(workerID int)
}

// WorkerRegistry resolves worker ids to the processes that were spawned for them.
type WorkerRegistry interface {
	Lookup(workerID int) (domain.SpawnRecord, bool)
}

// SessionConfig holds the collaborators of a Session
type SessionConfig struct {
	Logger   *slog.Logger
	Queue    BatchSource
	Sink     StatusSink
	Registry WorkerRegistry
	Claims   *IdentityTable
	// DrainTimeout bounds how long a finished session waits for the peer to hang up.
	DrainTimeout time.Duration
	// OnReady is called once the worker's greeting was accepted.
	OnReady func(workerID int)
}

// Session serves one worker connection.
type Session struct {
	conn         *protocol.Conn
	logger       *slog.Logger
	queue        BatchSource
	sink         StatusSink
	registry     WorkerRegistry
	claims       *IdentityTable
	drainTimeout time.Duration
	onReady      func(workerID int)

	state    domain.SessionState
	workerID int
	batches  int
	jobs     int
}

func NewSession(conn *protocol.Conn, cfg *SessionConfig) *Session {
	return &Session{
		conn:         conn,
		logger:       cfg.Logger,
		queue:        cfg.Queue,
		sink:         cfg.Sink,
		registry:     cfg.Registry,
		claims:       cfg.Claims,
		drainTimeout: cfg.DrainTimeout,
		onReady:      cfg.OnReady,
		state:        domain.SessionAwaitingGreeting,
		workerID:     -1,
	}
}

func (s *Session) State() domain.SessionState { return s.state }

func (s *Session) WorkerID() int { return s.workerID }

// Run drives the session until the worker is released and disconnects, or
// until a protocol or transport error occurs. The connection is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if err := s.handshake(); err != nil {
		return err
	}
	defer s.release()

	for s.state != domain.SessionDone {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return s.readError(err)
		}
		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}

	return s.drain(ctx)
}

func (s *Session) handshake() error {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return s.readError(err)
	}

	if msg.Kind != protocol.KindGreeting {
		return domain.NewProtocolError(s.workerID, s.state, string(msg.Kind), domain.ErrHandshake)
	}

	id := msg.ID()
	if s.registry != nil {
		rec, ok := s.registry.Lookup(id)
		if !ok {
			return domain.NewProtocolError(id, s.state, string(msg.Kind), domain.ErrUnknownWorker)
		}
		s.logger = s.logger.With(slog.Int("pid", rec.PID))
	}
	if s.claims != nil && !s.claims.Claim(id) {
		return domain.NewProtocolError(id, s.state, string(msg.Kind), domain.ErrDuplicateWorker)
	}

	s.workerID = id
	s.logger = s.logger.With(slog.Int("worker_id", id))

	if err := s.conn.WriteMessage(protocol.Greeting(id)); err != nil {
		s.claims.Release(id)
		return fmt.Errorf("%w: failed to answer greeting: %v", domain.ErrTransport, err)
	}

	s.state = domain.SessionReady
	s.sink.Register(id)
	s.logger.Info("Worker connected")
	if s.onReady != nil {
		s.onReady(id)
	}
	return nil
}

func (s *Session) release() {
	s.sink.Unregister(s.workerID)
	s.claims.Release(s.workerID)
	s.logger.Info("Worker session closed",
		slog.String("state", string(s.state)),
		slog.Int("batches", s.batches),
		slog.Int("jobs", s.jobs),
	)
}

func (s *Session) handle(ctx context.Context, msg *protocol.Message) error {
	if s.state == domain.SessionReady {
		s.state = domain.SessionServing
	}

	switch msg.Kind {
	case protocol.KindBatchRequest:
		return s.serveBatch()
	case protocol.KindLog:
		s.relayLog(ctx, msg)
	case protocol.KindStatus:
		if err := s.sink.Update(ctx, s.workerID, msg.Status); err != nil {
			s.logger.Error("Failed to apply status report", slog.Any("error", err))
		}
	case protocol.KindDownloadStart:
		s.sink.DownloadStarted(s.workerID)
	case protocol.KindDownloadEnd:
		s.sink.DownloadEnded(s.workerID)
	case protocol.KindGreeting, protocol.KindBatch, protocol.KindEndRequest:
		return domain.NewProtocolError(s.workerID, s.state, string(msg.Kind), domain.ErrProtocolViolation)
	default:
		return domain.NewProtocolError(s.workerID, s.state, string(msg.Kind), protocol.ErrUnknownKind)
	}
	return nil
}

func (s *Session) serveBatch() error {
	batch, ok := s.queue.Next()
	if !ok {
		if err := s.conn.WriteMessage(protocol.EndRequest()); err != nil {
			return fmt.Errorf("%w: failed to send end request: %v", domain.ErrTransport, err)
		}
		s.state = domain.SessionDone
		s.logger.Info("Queue exhausted, releasing worker")
		return nil
	}

	if err := s.conn.WriteMessage(protocol.Batch(batch)); err != nil {
		return fmt.Errorf("%w: failed to send batch of %d jobs: %v", domain.ErrTransport, len(batch), err)
	}
	s.batches++
	s.jobs += len(batch)

	s.logger.Debug("Batch sent",
		slog.Int("size", len(batch)),
		slog.String("first", batch[0]),
	)
	return nil
}

// drain consumes trailing messages until the worker hangs up.
func (s *Session) drain(ctx context.Context) error {
	if s.drainTimeout > 0 {
		s.conn.SetReadTimeout(s.drainTimeout)
	}

	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger.Debug("Worker did not hang up after release")
				return nil
			}
			return s.readError(err)
		}

		switch msg.Kind {
		case protocol.KindLog, protocol.KindStatus, protocol.KindDownloadStart, protocol.KindDownloadEnd:
			if err := s.handle(ctx, msg); err != nil {
				return err
			}
		default:
			return domain.NewProtocolError(s.workerID, s.state, string(msg.Kind), domain.ErrProtocolViolation)
		}
	}
}

func (s *Session) relayLog(ctx context.Context, msg *protocol.Message) {
	attrs := []slog.Attr{
		slog.String("origin", "worker"),
		slog.String("target", msg.Target),
	}
	if msg.ID() != s.workerID {
		attrs = append(attrs, slog.Int("reported_worker_id", msg.ID()))
	}
	s.logger.LogAttrs(ctx, logger.ParseLevel(msg.Level), msg.Text, attrs...)
}

func (s *Session) readError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: worker disconnected in state %s", domain.ErrTransport, s.state)
	case errors.Is(err, protocol.ErrMalformedPayload),
		errors.Is(err, protocol.ErrUnknownKind),
		errors.Is(err, protocol.ErrInvalidMessage),
		errors.Is(err, protocol.ErrTruncatedFrame),
		errors.Is(err, protocol.ErrFrameTooLarge):
		return domain.NewProtocolError(s.workerID, s.state, "", err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
}
