package dto

import (
	"time"

	"github.com/cuongbtq/rhythm/internal/master"
)

type WorkerDTO struct {
	WorkerID        int       `json:"worker_id"`
	Connected       bool      `json:"connected"`
	JobID           string    `json:"job_id,omitempty"`
	Label           string    `json:"label,omitempty"`
	Filename        string    `json:"filename,omitempty"`
	Mode            string    `json:"mode"`
	Status          string    `json:"status,omitempty"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	TotalBytes      int64     `json:"total_bytes"`
	TotalEstimated  bool      `json:"total_estimated"`
	Percent         *float64  `json:"percent,omitempty"`
	ETASeconds      float64   `json:"eta_seconds,omitempty"`
	Speed           float64   `json:"speed,omitempty"`
	Finished        int       `json:"finished"`
	Failed          int       `json:"failed"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ProgressResponse struct {
	RunID   string      `json:"run_id"`
	Workers []WorkerDTO `json:"workers"`
}

type QueueResponse struct {
	RunID string            `json:"run_id"`
	Queue master.QueueStats `json:"queue"`
}

type EventDTO struct {
	Type   string    `json:"type"`
	Worker WorkerDTO `json:"worker"`
}

// NewWorkerDTO converts a sink entry; percent is omitted when the size is unknown.
func NewWorkerDTO(w master.WorkerProgress) WorkerDTO {
	out := WorkerDTO{
		WorkerID:        w.WorkerID,
		Connected:       w.Connected,
		JobID:           w.JobID,
		Label:           w.Label,
		Filename:        w.Filename,
		Mode:            w.Mode,
		Status:          string(w.Status),
		DownloadedBytes: w.Downloaded,
		TotalBytes:      w.Total,
		TotalEstimated:  w.Estimated,
		ETASeconds:      w.ETA,
		Speed:           w.Speed,
		Finished:        w.Finished,
		Failed:          w.Failed,
		UpdatedAt:       w.UpdatedAt,
	}
	if p := w.Percent(); p >= 0 {
		out.Percent = &p
	}
	return out
}

func NewEventDTO(e master.ProgressEvent) EventDTO {
	return EventDTO{Type: string(e.Type), Worker: NewWorkerDTO(e.Worker)}
}
