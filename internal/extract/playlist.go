package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/cuongbtq/rhythm/internal/protocol"
)

// DefaultPlaylistTimeout bounds a single playlist listing
const DefaultPlaylistTimeout = 60 * time.Second

// PlaylistLister resolves a playlist id to the ids of its videos
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, playlistID string) ([]protocol.JobID, error)
}

// YTPlaylistLister lists playlists through the ytdlp library
type YTPlaylistLister struct {
	timeout time.Duration
}

func NewYTPlaylistLister(timeout time.Duration) *YTPlaylistLister {
	if timeout <= 0 {
		timeout = DefaultPlaylistTimeout
	}
	return &YTPlaylistLister{timeout: timeout}
}

func (l *YTPlaylistLister) ListPlaylist(ctx context.Context, playlistID string) ([]protocol.JobID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	ids := make([]protocol.JobID, 0, len(items))
	for _, it := range items {
		if it.VideoID != "" {
			ids = append(ids, it.VideoID)
		}
	}
	return ids, nil
}

// Expander appends the videos of referenced playlists to an extracted job list
type Expander struct {
	lister PlaylistLister
	logger *slog.Logger
}

func NewExpander(lister PlaylistLister, logger *slog.Logger) *Expander {
	return &Expander{lister: lister, logger: logger}
}

// Expand lists every playlist referenced in text and appends its videos to jobs.
// A playlist that cannot be listed is logged and skipped.
func (x *Expander) Expand(ctx context.Context, text string, jobs []protocol.JobID) []protocol.JobID {
	out := jobs
	for _, id := range PlaylistIDs(text) {
		items, err := x.lister.ListPlaylist(ctx, id)
		if err != nil {
			x.logger.Warn("Failed to expand playlist",
				slog.String("playlist_id", id),
				slog.Any("error", err),
			)
			continue
		}
		x.logger.Info("Playlist expanded",
			slog.String("playlist_id", id),
			slog.Int("videos", len(items)),
		)
		out = append(out, items...)
	}
	return out
}
