package protocol

import (
	"fmt"
	"strings"
)

// ReportStatus is the state of a download as reported by the media tool.
type ReportStatus string

const (
	ReportDownloading ReportStatus = "downloading"
	ReportFinished    ReportStatus = "finished"
	ReportError       ReportStatus = "error"
)

// StatusReport is a progress snapshot for the job a worker is currently processing.
type StatusReport struct {
	Status             ReportStatus `json:"status" cbor:"status"`
	JobID              JobID        `json:"job_id,omitempty" cbor:"job_id,omitempty"`
	Filename           string       `json:"filename,omitempty" cbor:"filename,omitempty"`
	DownloadedBytes    int64        `json:"downloaded_bytes" cbor:"downloaded_bytes"`
	TotalBytes         *int64       `json:"total_bytes,omitempty" cbor:"total_bytes,omitempty"`
	TotalBytesEstimate *float64     `json:"total_bytes_estimate,omitempty" cbor:"total_bytes_estimate,omitempty"`
	ETA                *float64     `json:"eta,omitempty" cbor:"eta,omitempty"`
	Speed              *float64     `json:"speed,omitempty" cbor:"speed,omitempty"`
	Elapsed            *float64     `json:"elapsed,omitempty" cbor:"elapsed,omitempty"`
	FragmentIndex      int          `json:"fragment_index,omitempty" cbor:"fragment_index,omitempty"`
	FragmentCount      int          `json:"fragment_count,omitempty" cbor:"fragment_count,omitempty"`
	Error              string       `json:"error,omitempty" cbor:"error,omitempty"`
	Info               VideoInfo    `json:"info" cbor:"info"`
}

// VideoInfo is the subset of the extracted metadata the master cares about.
// JSON keys follow the media tool's info dictionary.
type VideoInfo struct {
	ID           string  `json:"id,omitempty" cbor:"id,omitempty"`
	DisplayID    string  `json:"display_id,omitempty" cbor:"display_id,omitempty"`
	Title        string  `json:"title,omitempty" cbor:"title,omitempty"`
	Uploader     string  `json:"uploader,omitempty" cbor:"uploader,omitempty"`
	Artist       string  `json:"artist,omitempty" cbor:"artist,omitempty"`
	Creator      string  `json:"creator,omitempty" cbor:"creator,omitempty"`
	Duration     float64 `json:"duration,omitempty" cbor:"duration,omitempty"`
	Description  string  `json:"description,omitempty" cbor:"description,omitempty"`
	WebpageURL   string  `json:"webpage_url,omitempty" cbor:"webpage_url,omitempty"`
	ACodec       string  `json:"acodec,omitempty" cbor:"acodec,omitempty"`
	VCodec       string  `json:"vcodec,omitempty" cbor:"vcodec,omitempty"`
	RealDownload bool    `json:"real_download,omitempty" cbor:"real_download,omitempty"`
}

func (r *StatusReport) IsFinished() bool { return r.Status == ReportFinished }

func (r *StatusReport) IsError() bool { return r.Status == ReportError }

// IsRealCompletion reports whether the report marks a finished, non-simulated download.
func (r *StatusReport) IsRealCompletion() bool {
	return r.IsFinished() && r.Info.RealDownload
}

// Total returns the exact size when known, else the estimate, else 0.
func (r *StatusReport) Total() (total int64, estimated bool) {
	if r.TotalBytes != nil {
		return *r.TotalBytes, false
	}
	if r.TotalBytesEstimate != nil {
		return int64(*r.TotalBytesEstimate), true
	}
	return 0, false
}

// Label renders "<creator|uploader> - <title> [<display_id>]".
func (r *StatusReport) Label() string {
	author := r.Info.Creator
	if author == "" {
		author = r.Info.Uploader
	}
	return fmt.Sprintf("%s - %s [%s]", author, r.Info.Title, r.Info.UID())
}

// Part reports which stream a finished part holds: "video", "audio" or "" when muxed.
func (i *VideoInfo) Part() string {
	switch {
	case strings.EqualFold(i.ACodec, "none"):
		return "video"
	case strings.EqualFold(i.VCodec, "none"):
		return "audio"
	}
	return ""
}

// UID is the stable identifier stored for a completed job.
func (i *VideoInfo) UID() string {
	if i.DisplayID != "" {
		return i.DisplayID
	}
	return i.ID
}

// Author prefers the artist credit over the uploader.
func (i *VideoInfo) Author() string {
	if i.Artist != "" {
		return i.Artist
	}
	return i.Uploader
}
