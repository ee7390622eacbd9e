// Package trace provides the per-stage debug log and periodic performance
// snapshot of spec.md §6, grounded on rcornwell-S370's util/logger package:
// a small custom slog.Handler wrapping a writer.
package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sarchlab/oosim/config"
)

// Handler formats records as "LEVEL: message key=value..." (no timestamp)
// and writes them to out, after the shape of rcornwell-S370's LogHandler.
type Handler struct {
	out io.Writer
	mu  *sync.Mutex
}

// NewHandler wraps out in a slog.Handler with this package's formatting.
func NewHandler(out io.Writer) *Handler {
	return &Handler{out: out, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	parts := []string{r.Level.String() + ":", r.Message}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})
	line := strings.Join(parts, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

func (h *Handler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *Handler) WithGroup(string) slog.Handler      { return h }

// Stage names the seven gated trace points of spec.md §6.
type Stage uint8

const (
	StageDecode Stage = iota
	StageIssue
	StageAllocateRS
	StageDispatch
	StageExecute
	StageRetire
	StagePipelineFlush
)

// Logger gates per-stage trace lines against a config.TraceFlags.
type Logger struct {
	log   *slog.Logger
	flags config.TraceFlags
}

// New builds a Logger writing through a slog.Logger backed by Handler.
func New(out io.Writer, flags config.TraceFlags) *Logger {
	return &Logger{log: slog.New(NewHandler(out)), flags: flags}
}

func (l *Logger) enabled(s Stage) bool {
	switch s {
	case StageDecode:
		return l.flags.Decode
	case StageIssue:
		return l.flags.Issue
	case StageAllocateRS:
		return l.flags.AllocateRS
	case StageDispatch:
		return l.flags.Dispatch
	case StageExecute:
		return l.flags.Execute
	case StageRetire:
		return l.flags.Retire
	case StagePipelineFlush:
		return l.flags.PipelineFlush
	default:
		return false
	}
}

// Emit logs msg with attrs if Stage s is gated on in the configured
// TraceFlags; otherwise it is a no-op.
func (l *Logger) Emit(s Stage, cycle uint64, msg string, attrs ...any) {
	if !l.enabled(s) {
		return
	}
	args := append([]any{"cycle", cycle}, attrs...)
	l.log.Info(msg, args...)
}
