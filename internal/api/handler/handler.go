package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cuongbtq/rhythm/internal/master"
)

// ProgressSource is the read side of the progress sink
type ProgressSource interface {
	Snapshot() []master.WorkerProgress
	Worker(workerID int) (master.WorkerProgress, bool)
	Subscribe(buffer int) (<-chan master.ProgressEvent, func())
}

// QueueSource exposes batch queue counters
type QueueSource interface {
	Stats() master.QueueStats
}

// HealthChecker reports whether the dedup store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	RunID          string
	Progress       ProgressSource
	Queue          QueueSource
	DB             HealthChecker
	AllowedOrigins []string
}

// ProgressHandler serves progress snapshots and the live event stream
type ProgressHandler struct {
	logger   *slog.Logger
	runID    string
	progress ProgressSource
	queue    QueueSource
	db       HealthChecker
	upgrader websocket.Upgrader
}

// NewProgressHandler creates a new ProgressHandler instance
func NewProgressHandler(deps *Dependencies) *ProgressHandler {
	origins := make(map[string]struct{}, len(deps.AllowedOrigins))
	for _, o := range deps.AllowedOrigins {
		if o == "*" {
			origins = nil
			break
		}
		origins[o] = struct{}{}
	}

	return &ProgressHandler{
		logger:   deps.Logger,
		runID:    deps.RunID,
		progress: deps.Progress,
		queue:    deps.Queue,
		db:       deps.DB,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}
