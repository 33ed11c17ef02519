package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cuongbtq/rhythm/internal/api/dto"
	"github.com/cuongbtq/rhythm/internal/master"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	streamBuffer = 64
)

// Health handles GET /health
func (h *ProgressHandler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Error("Health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "rhythm-master",
		"run_id":  h.runID,
	})
}

// ListProgress handles GET /api/v1/progress
func (h *ProgressHandler) ListProgress(c *gin.Context) {
	snapshot := h.progress.Snapshot()
	workers := make([]dto.WorkerDTO, 0, len(snapshot))
	for _, w := range snapshot {
		workers = append(workers, dto.NewWorkerDTO(w))
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		RunID:   h.runID,
		Workers: workers,
	})
}

// GetWorker handles GET /api/v1/progress/:worker_id
func (h *ProgressHandler) GetWorker(c *gin.Context) {
	workerID, err := strconv.Atoi(c.Param("worker_id"))
	if err != nil || workerID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker_id"})
		return
	}

	w, ok := h.progress.Worker(workerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}

	c.JSON(http.StatusOK, dto.NewWorkerDTO(w))
}

// GetQueue handles GET /api/v1/queue
func (h *ProgressHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, dto.QueueResponse{
		RunID: h.runID,
		Queue: h.queue.Stats(),
	})
}

// Stream handles GET /api/v1/progress/stream. The current snapshot is sent
// as add events, followed by every change until the client goes away.
func (h *ProgressHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade progress stream", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.progress.Subscribe(streamBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	for _, w := range h.progress.Snapshot() {
		if err := writeEvent(conn, dto.NewEventDTO(master.ProgressEvent{Type: master.EventAdd, Worker: w})); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, dto.NewEventDTO(ev)); err != nil {
				h.logger.Debug("Progress stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and closes done once the peer disconnects.
func (h *ProgressHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Progress stream closed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev dto.EventDTO) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
