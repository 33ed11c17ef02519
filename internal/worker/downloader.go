package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/internal/worker/domain"
)

// YTDLPConfig configures the yt-dlp backed downloader. TempDir receives
// intermediate fragments and part files.
type YTDLPConfig struct {
	Logger           *slog.Logger
	OutputDir        string
	OutputTemplate   string
	TempDir          string
	Simulate         bool
	ProgressInterval time.Duration
}

// YTDLPDownloader retrieves jobs with yt-dlp
type YTDLPDownloader struct {
	cfg YTDLPConfig
}

func NewYTDLPDownloader(cfg *YTDLPConfig) *YTDLPDownloader {
	c := *cfg
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &YTDLPDownloader{cfg: c}
}

// OutputPath joins the output directory and template, adding the extension field when missing.
func (d *YTDLPDownloader) OutputPath() string {
	tmpl := d.cfg.OutputTemplate
	if !strings.Contains(tmpl, "%(ext)") {
		tmpl += ".%(ext)s"
	}
	return filepath.Join(d.cfg.OutputDir, tmpl)
}

// TempPath is the yt-dlp --paths value for intermediate files, empty when unset.
func (d *YTDLPDownloader) TempPath() string {
	if d.cfg.TempDir == "" {
		return ""
	}
	return "temp:" + d.cfg.TempDir
}

func (d *YTDLPDownloader) Download(ctx context.Context, job domain.Job, report func(*protocol.StatusReport)) error {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(d.OutputPath())
	if p := d.TempPath(); p != "" {
		dl = dl.Paths(p)
	}
	if d.cfg.Simulate {
		dl = dl.Simulate()
	}

	d.cfg.Logger.Info("Downloading",
		slog.String("job_id", job.ID),
		slog.String("url", job.URL),
		slog.Bool("simulate", d.cfg.Simulate),
	)
	start := time.Now()

	finished := false
	dl.ProgressFunc(d.cfg.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		r := d.toReport(&update)
		if r.IsFinished() {
			finished = true
		}
		report(r)
	})

	result, err := dl.Run(ctx, job.URL)
	if err != nil {
		d.cfg.Logger.Warn("Download failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return domain.NewDownloadError(job.ID, err)
	}

	// simulated runs produce no progress, so close the job with the extracted metadata
	if !finished && result != nil {
		r := &protocol.StatusReport{Status: protocol.ReportFinished}
		if infos, err := result.GetExtractedInfo(); err == nil && len(infos) > 0 {
			r.Info = videoInfo(infos[0])
		}
		r.Info.RealDownload = !d.cfg.Simulate
		report(r)
	}

	d.cfg.Logger.Info("Download completed",
		slog.String("job_id", job.ID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (d *YTDLPDownloader) toReport(update *ytdlp.ProgressUpdate) *protocol.StatusReport {
	r := &protocol.StatusReport{
		Status:          reportStatus(update.Status),
		Filename:        update.Filename,
		DownloadedBytes: int64(update.DownloadedBytes),
		FragmentIndex:   update.FragmentIndex,
		FragmentCount:   update.FragmentCount,
	}

	if update.TotalBytes > 0 {
		total := int64(update.TotalBytes)
		r.TotalBytes = &total
	}
	if eta := update.ETA(); eta > 0 {
		seconds := eta.Seconds()
		r.ETA = &seconds
	}
	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started).Seconds()
		r.Elapsed = &elapsed
		if elapsed > 0 {
			speed := float64(update.DownloadedBytes) / elapsed
			r.Speed = &speed
		}
	}

	if update.Info != nil {
		r.Info = videoInfo(update.Info)
	}
	r.Info.RealDownload = !d.cfg.Simulate
	return r
}

func reportStatus(s ytdlp.ProgressStatus) protocol.ReportStatus {
	switch s {
	case ytdlp.ProgressStatusFinished:
		return protocol.ReportFinished
	case ytdlp.ProgressStatusError:
		return protocol.ReportError
	default:
		return protocol.ReportDownloading
	}
}

// videoInfo copies the fields the master needs out of yt-dlp's info dictionary.
func videoInfo(info any) protocol.VideoInfo {
	var out protocol.VideoInfo
	data, err := json.Marshal(info)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
