package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/rhythm/internal/protocol"
)

// TargetKey overrides the relayed target of a single record.
const TargetKey = "target"

// RelayOptions configures a RelayHandler
type RelayOptions struct {
	Level  slog.Leveler
	Target string
}

// RelayHandler is a slog.Handler that forwards records to the master as Log messages.
type RelayHandler struct {
	conn     *protocol.Conn
	workerID int
	level    slog.Leveler
	target   string
	prefix   string
	// attrs holds attributes added through WithAttrs, already rendered
	attrs string
}

func NewRelayHandler(conn *protocol.Conn, workerID int, opts *RelayOptions) *RelayHandler {
	h := &RelayHandler{conn: conn, workerID: workerID, level: slog.LevelInfo, target: "worker"}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		if opts.Target != "" {
			h.target = opts.Target
		}
	}
	return h
}

func (h *RelayHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *RelayHandler) Handle(_ context.Context, r slog.Record) error {
	target := h.target
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TargetKey && h.prefix == "" {
			target = a.Value.String()
			return true
		}
		appendAttr(&b, h.prefix, a)
		return true
	})

	return h.conn.WriteMessage(protocol.Log(h.workerID, LevelName(r.Level), target, b.String()))
}

func (h *RelayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == TargetKey && h.prefix == "" {
			c.target = a.Value.String()
			continue
		}
		appendAttr(&b, h.prefix, a)
	}
	c.attrs = b.String()
	return &c
}

func (h *RelayHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%s", prefix, a.Key, a.Value.String())
}

// LevelName renders a level as the lowercase name the master parses.
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
