// Package activitylog writes the operator-facing activity log: a flat text
// file of timestamped lines with four severities (debug, success, warning,
// error), filtered by a configured minimum level.
package activitylog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Severities of the activity log, expressed as slog levels so the rest of the
// code logs through an ordinary *slog.Logger.
const (
	LevelDebug   = slog.LevelDebug
	LevelSuccess = slog.Level(2)
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
)

const timestampLayout = "2006-01-02 15:04:05"

// ParseLevel maps a configured level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "success":
		return LevelSuccess, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error", "":
		return LevelError, nil
	default:
		return LevelError, fmt.Errorf("unknown log level %q", name)
	}
}

// LevelName returns the upper-case label written in front of each line.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelError:
		return "ERROR"
	case level >= LevelWarning:
		return "WARNING"
	case level >= LevelSuccess:
		return "SUCCESS"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ReplaceLevel is a slog.HandlerOptions.ReplaceAttr that renders the success
// level by name instead of "INFO+2".
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(level))
	}
	return a
}

// Handler is a slog.Handler producing lines of the form
//
//	[2006-01-02 15:04:05] [SUCCESS] message key=value
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string
	attrs  string
	now    func() time.Time
}

// NewHandler returns a handler writing to w everything at or above level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		now:   time.Now,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ts.Format(timestampLayout))
	b.WriteString("] [")
	b.WriteString(LevelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	clone := *h
	clone.attrs = h.attrs + b.String()
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, group, ga)
		}
		return
	}

	b.WriteString(" ")
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
