package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/rhythm/internal/config"
	"github.com/cuongbtq/rhythm/internal/protocol"
)

func TestExtractor_Extract(t *testing.T) {
	e, err := New(config.DefaultPattern, config.DefaultPatternGroup)
	require.NoError(t, err)

	tests := []struct {
		name     string
		text     string
		expected []protocol.JobID
	}{
		{
			name:     "no links",
			text:     "<html><body>nothing here</body></html>",
			expected: []protocol.JobID{},
		},
		{
			name:     "www link",
			text:     `<a href="https://www.youtube.com/watch?v=dQw4w9WgXcQ">x</a>`,
			expected: []protocol.JobID{"dQw4w9WgXcQ"},
		},
		{
			name:     "music link stops at ampersand",
			text:     `<a href="https://music.youtube.com/watch?v=abc_DEF-12&list=PL1">x</a>`,
			expected: []protocol.JobID{"abc_DEF-12"},
		},
		{
			name:     "relative links keep document order and repeats",
			text:     `<a href="watch?v=one">1</a><a href="watch?v=two">2</a><a href="watch?v=one">1</a>`,
			expected: []protocol.JobID{"one", "two", "one"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Extract(tt.text))
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		group     int
		errString string
	}{
		{name: "bad regex", pattern: "([a-z", group: 0, errString: "invalid extract pattern"},
		{name: "group too large", pattern: "(a)(b)", group: 3, errString: "extract group 3 out of range"},
		{name: "negative group", pattern: "(a)", group: -1, errString: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.pattern, tt.group)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestExtractor_ExtractFile(t *testing.T) {
	e, err := New(config.DefaultPattern, config.DefaultPatternGroup)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "likes.html")
	require.NoError(t, os.WriteFile(path, []byte(`watch?v=aaa watch?v=bbb`), 0o644))

	ids, text, err := e.ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, []protocol.JobID{"aaa", "bbb"}, ids)
	assert.Contains(t, text, "watch?v=aaa")

	_, _, err = e.ExtractFile(filepath.Join(t.TempDir(), "missing.html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input file")
}

func TestPlaylistIDs(t *testing.T) {
	text := `watch?v=a&list=PLone https://www.youtube.com/playlist?list=PLtwo watch?v=b&list=PLone`
	assert.Equal(t, []string{"PLone", "PLtwo"}, PlaylistIDs(text))
	assert.Empty(t, PlaylistIDs("watch?v=a"))
}

type fakeLister map[string][]protocol.JobID

func (f fakeLister) ListPlaylist(_ context.Context, id string) ([]protocol.JobID, error) {
	items, ok := f[id]
	if !ok {
		return nil, errors.New("playlist unavailable")
	}
	return items, nil
}

func TestExpander_Expand(t *testing.T) {
	x := NewExpander(fakeLister{
		"PLone": {"p1", "p2"},
		"PLtwo": {"p3"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	text := `list=x ?list=PLone &list=PLgone ?list=PLtwo`
	got := x.Expand(context.Background(), text, []protocol.JobID{"a"})
	assert.Equal(t, []protocol.JobID{"a", "p1", "p2", "p3"}, got)
}

func TestNewYTPlaylistLister_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultPlaylistTimeout, NewYTPlaylistLister(0).timeout)
}
