package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/internal/worker/domain"
)

// processJob downloads a single job between DownloadStart and DownloadEnd.
// Download failures are reported to the master and do not stop the worker;
// only transport failures are returned.
func (w *Worker) processJob(ctx context.Context, id protocol.JobID) error {
	job := domain.NewJob(id)
	w.jobs++

	if err := w.conn.WriteMessage(protocol.DownloadStart()); err != nil {
		return fmt.Errorf("failed to announce download: %w", err)
	}

	var sendErr error
	report := func(r *protocol.StatusReport) {
		if sendErr != nil {
			return
		}
		r.JobID = id
		sendErr = w.conn.WriteMessage(protocol.Status(r))
	}

	err := w.downloader.Download(ctx, job, report)
	if sendErr != nil {
		return fmt.Errorf("failed to send status: %w", sendErr)
	}

	if err != nil {
		w.failed++
		report(&protocol.StatusReport{
			Status: protocol.ReportError,
			Error:  err.Error(),
			Info:   protocol.VideoInfo{ID: id, WebpageURL: job.URL},
		})
		if sendErr != nil {
			return fmt.Errorf("failed to send status: %w", sendErr)
		}
	}

	if err := w.conn.WriteMessage(protocol.DownloadEnd()); err != nil {
		return fmt.Errorf("failed to end download: %w", err)
	}

	if err != nil {
		w.remote.Error(fmt.Sprintf("failed downloading video ID %s: %v", id, err))
		w.logger.Warn("Job failed", slog.String("job_id", id), slog.Any("error", err))
	} else {
		w.remote.Info(fmt.Sprintf("finished downloading video ID %s", id))
	}
	return nil
}
