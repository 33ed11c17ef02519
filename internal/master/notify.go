package master

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
)

// Publisher delivers an encoded message to a broker.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// CompletionAnnouncement is the broker payload for a newly recorded completion.
type CompletionAnnouncement struct {
	RunID      string    `json:"run_id"`
	UID        string    `json:"uid"`
	Link       string    `json:"link"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Duration   int64     `json:"duration"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CompletionAnnouncer publishes completions of one run.
type CompletionAnnouncer struct {
	publisher Publisher
	runID     string
	logger    *slog.Logger
	timeout   time.Duration
}

func NewCompletionAnnouncer(publisher Publisher, runID string, logger *slog.Logger) *CompletionAnnouncer {
	return &CompletionAnnouncer{
		publisher: publisher,
		runID:     runID,
		logger:    logger,
		timeout:   10 * time.Second,
	}
}

// NotifyCompletion publishes rec as a JSON announcement.
func (a *CompletionAnnouncer) NotifyCompletion(ctx context.Context, rec *domain.CompletionRecord) error {
	recordedAt := time.Now().UTC()
	if rec.Date > 0 {
		recordedAt = time.Unix(rec.Date, 0).UTC()
	}

	body, err := json.Marshal(CompletionAnnouncement{
		RunID:      a.runID,
		UID:        rec.UID,
		Link:       rec.Link,
		Title:      rec.Title,
		Author:     rec.Author,
		Duration:   rec.Duration,
		RecordedAt: recordedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode announcement: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish announcement: %w", err)
	}

	a.logger.Debug("Completion announced",
		slog.String("run_id", a.runID),
		slog.String("uid", rec.UID),
	)
	return nil
}
