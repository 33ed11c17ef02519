package master

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
)

// CompletionStore persists completion records.
type CompletionStore interface {
	RecordCompletion(ctx context.Context, rec *domain.CompletionRecord) (domain.InsertResult, error)
}

// CompletionNotifier is told about newly recorded completions.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, rec *domain.CompletionRecord) error
}

// WorkerProgress is the display state of one worker.
type WorkerProgress struct {
	WorkerID   int                   `json:"worker_id"`
	Connected  bool                  `json:"connected"`
	JobID      protocol.JobID        `json:"job_id,omitempty"`
	Label      string                `json:"label,omitempty"`
	Filename   string                `json:"filename,omitempty"`
	Downloaded int64                 `json:"downloaded_bytes"`
	Total      int64                 `json:"total_bytes"`
	Estimated  bool                  `json:"total_estimated"`
	ETA        float64               `json:"eta_seconds,omitempty"`
	Speed      float64               `json:"speed,omitempty"`
	Mode       string                `json:"mode"`
	Status     protocol.ReportStatus `json:"status,omitempty"`
	Finished   int                   `json:"finished"`
	Failed     int                   `json:"failed"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Percent returns completion in [0, 100], or -1 when the size is unknown.
func (w WorkerProgress) Percent() float64 {
	if w.Total <= 0 {
		return -1
	}
	return math.Min(100, float64(w.Downloaded)*100/float64(w.Total))
}

// EventType classifies progress events.
type EventType string

const (
	EventAdd    EventType = "add"
	EventUpdate EventType = "update"
	EventRemove EventType = "remove"
)

// ProgressEvent is delivered to subscribers on every state change.
type ProgressEvent struct {
	Type   EventType      `json:"type"`
	Worker WorkerProgress `json:"worker"`
}

// ProgressSinkConfig holds the collaborators of a ProgressSink
type ProgressSinkConfig struct {
	Logger   *slog.Logger
	Store    CompletionStore
	Notifier CompletionNotifier
	// DumpDir receives one JSON file per finished report when set.
	DumpDir string
}

// ProgressSink aggregates per-worker progress and records completions.
// Each worker's entry is only written by its own session; the lock protects
// the map and concurrent snapshot readers.
type ProgressSink struct {
	logger   *slog.Logger
	store    CompletionStore
	notifier CompletionNotifier
	dumpDir  string
	now      func() time.Time

	mu      sync.RWMutex
	workers map[int]*WorkerProgress

	subMu       sync.RWMutex
	subscribers map[int]chan ProgressEvent
	nextSub     int
}

func NewProgressSink(cfg *ProgressSinkConfig) *ProgressSink {
	return &ProgressSink{
		logger:      cfg.Logger,
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		dumpDir:     cfg.DumpDir,
		now:         time.Now,
		workers:     make(map[int]*WorkerProgress),
		subscribers: make(map[int]chan ProgressEvent),
	}
}

// Register adds a display entry for a worker that completed its handshake.
func (s *ProgressSink) Register(workerID int) {
	s.mu.Lock()
	w := s.entryLocked(workerID)
	w.Connected = true
	w.Mode = domain.ModeSpinner
	snapshot := *w
	s.mu.Unlock()

	s.publish(EventAdd, snapshot)
}

// Unregister marks a worker's session as finished.
func (s *ProgressSink) Unregister(workerID int) {
	s.mu.Lock()
	w, ok := s.workers[workerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	w.Connected = false
	w.UpdatedAt = s.now()
	snapshot := *w
	s.mu.Unlock()

	s.publish(EventRemove, snapshot)
}

// DownloadStarted switches the worker's display to a determinate bar.
func (s *ProgressSink) DownloadStarted(workerID int) {
	s.setMode(workerID, domain.ModeBar)
}

// DownloadEnded switches the worker's display back to a spinner.
func (s *ProgressSink) DownloadEnded(workerID int) {
	s.setMode(workerID, domain.ModeSpinner)
}

func (s *ProgressSink) setMode(workerID int, mode string) {
	s.mu.Lock()
	w := s.entryLocked(workerID)
	w.Mode = mode
	w.UpdatedAt = s.now()
	snapshot := *w
	s.mu.Unlock()

	s.publish(EventUpdate, snapshot)
}

// Update applies a status report. A real completion is recorded in the store;
// the returned error only reports store failures.
func (s *ProgressSink) Update(ctx context.Context, workerID int, report *protocol.StatusReport) error {
	s.mu.Lock()
	w := s.entryLocked(workerID)
	w.JobID = report.JobID
	if w.JobID == "" {
		w.JobID = report.Info.UID()
	}
	w.Label = report.Label()
	w.Filename = report.Filename
	w.Downloaded = report.DownloadedBytes
	w.Total, w.Estimated = report.Total()
	w.ETA, w.Speed = 0, 0
	if report.ETA != nil {
		w.ETA = *report.ETA
	}
	if report.Speed != nil {
		w.Speed = *report.Speed
	}
	w.Status = report.Status
	switch {
	case report.IsFinished():
		w.Finished++
	case report.IsError():
		w.Failed++
	}
	w.UpdatedAt = s.now()
	snapshot := *w
	s.mu.Unlock()

	s.publish(EventUpdate, snapshot)

	if report.IsError() {
		s.logger.Warn("Download failed",
			slog.Int("worker_id", workerID),
			slog.String("job_id", snapshot.JobID),
			slog.String("error", report.Error),
		)
		return nil
	}

	if !report.IsFinished() {
		return nil
	}

	s.logger.Debug("Download part finished",
		slog.Int("worker_id", workerID),
		slog.String("label", snapshot.Label),
		slog.String("part", report.Info.Part()),
	)

	if s.dumpDir != "" {
		if err := s.dump(report); err != nil {
			s.logger.Warn("Failed to write status dump",
				slog.Int("worker_id", workerID),
				slog.Any("error", err),
			)
		}
	}

	if report.IsRealCompletion() {
		return s.recordCompletion(ctx, workerID, report)
	}
	return nil
}

// CompletionFromReport derives the persisted record from a finished report.
func CompletionFromReport(report *protocol.StatusReport) *domain.CompletionRecord {
	return &domain.CompletionRecord{
		UID:         report.Info.UID(),
		Link:        report.Info.WebpageURL,
		Title:       report.Info.Title,
		Author:      report.Info.Author(),
		Duration:    int64(report.Info.Duration),
		Description: report.Info.Description,
	}
}

func (s *ProgressSink) recordCompletion(ctx context.Context, workerID int, report *protocol.StatusReport) error {
	if s.store == nil {
		return nil
	}

	rec := CompletionFromReport(report)
	if rec.UID == "" {
		s.logger.Warn("Finished report carries no id, not recorded",
			slog.Int("worker_id", workerID),
			slog.String("filename", report.Filename),
		)
		return nil
	}

	result, err := s.store.RecordCompletion(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	if result == domain.AlreadyRecorded {
		return nil
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyCompletion(ctx, rec); err != nil {
			s.logger.Warn("Failed to announce completion",
				slog.String("uid", rec.UID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (s *ProgressSink) dump(report *protocol.StatusReport) error {
	name := report.Filename
	if name == "" {
		name = report.Info.UID()
	}
	path := filepath.Join(s.dumpDir, strings.ReplaceAll(name, "/", "_")+".json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status dump: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Worker returns a copy of one worker's state.
func (s *ProgressSink) Worker(workerID int) (WorkerProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workers[workerID]
	if !ok {
		return WorkerProgress{}, false
	}
	return *w, true
}

// Snapshot returns a copy of every worker's state ordered by worker id.
func (s *ProgressSink) Snapshot() []WorkerProgress {
	s.mu.RLock()
	out := make([]WorkerProgress, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Subscribe returns a channel of progress events and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (s *ProgressSink) Subscribe(buffer int) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *ProgressSink) publish(typ EventType, w WorkerProgress) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- ProgressEvent{Type: typ, Worker: w}:
		default:
			s.logger.Debug("Progress subscriber is full, dropping event",
				slog.Int("subscriber", id),
				slog.String("type", string(typ)),
			)
		}
	}
}

func (s *ProgressSink) entryLocked(workerID int) *WorkerProgress {
	w, ok := s.workers[workerID]
	if !ok {
		w = &WorkerProgress{WorkerID: workerID, Mode: domain.ModeSpinner}
		s.workers[workerID] = w
	}
	w.UpdatedAt = s.now()
	return w
}
