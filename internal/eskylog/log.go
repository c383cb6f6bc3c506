// Package eskylog provides the structured logging used throughout eskygo.
// It wraps log/slog with a component-tagging handler and a per-component
// debug level, the same shape syncthing's internal/slogutil gives its own
// packages, so that ESKY_TRACE=applock:debug,cleanup can turn on noisy
// tracing for a single subsystem without recompiling.
package eskylog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	defaultOut io.Writer = os.Stderr
	base       *slog.Logger
	levels     = newLevelTracker()
)

func init() {
	base = slog.New(&componentHandler{out: defaultOut})
	SetTraceEnv(os.Getenv("ESKY_TRACE"))
}

// componentHandler renders "time level [component] msg key=val ..." lines,
// gating each record through the per-component level tracker alone.
type componentHandler struct {
	out       io.Writer
	component string
	attrs     []slog.Attr
}

func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= levels.Get(h.component)
}

func (h *componentHandler) Handle(_ context.Context, r slog.Record) error {
	line := fmt.Sprintf("%s %s", r.Time.Format("15:04:05.000"), r.Level)
	if h.component != "" {
		line += " [" + h.component + "]"
	}
	line += " " + r.Message
	for _, a := range h.attrs {
		line += " " + a.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		line += " " + a.String()
		return true
	})
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *componentHandler) WithGroup(_ string) slog.Handler { return h }

// Logger is a component-scoped logger, analogous to a syncthing
// logger.Facility.
type Logger struct {
	component string
	l         *slog.Logger
}

// For returns the Logger for a named component (e.g. "applock", "swapper").
// The component also doubles as the ESKY_TRACE key for this logger's level.
func For(component string) Logger {
	h := &componentHandler{out: defaultOut, component: component}
	return Logger{component: component, l: slog.New(h)}
}

func (l Logger) Debugf(format string, args ...any) { l.l.Debug(fmt.Sprintf(format, args...)) }
func (l Logger) Infof(format string, args ...any)  { l.l.Info(fmt.Sprintf(format, args...)) }
func (l Logger) Warnf(format string, args ...any)  { l.l.Warn(fmt.Sprintf(format, args...)) }
func (l Logger) Errorf(format string, args ...any) { l.l.Error(fmt.Sprintf(format, args...)) }

// SetTraceEnv parses an ESKY_TRACE-style string ("component[:LEVEL],...")
// and applies the requested levels, defaulting to Debug when no level is
// given for a named component.
func SetTraceEnv(s string) {
	levels.ApplyEnv(s)
}

// SetLevel pins a single component's minimum level.
func SetLevel(component string, level slog.Level) {
	levels.Set(component, level)
}
