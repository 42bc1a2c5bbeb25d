// Package logsink fans structured log records out to the terminal, an
// append-only log file and, once paired, the Control Host.
package logsink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
)

// HostSender delivers a message to the Control Host. Send must not block.
type HostSender interface {
	Send(msg any) bool
}

// Options configures a Sink.
type Options struct {
	// Stderr receives terminal output. Defaults to os.Stderr.
	Stderr io.Writer
	// FilePath is the append-only log file. Empty disables file output.
	FilePath string
	// Debug enables debug records at startup.
	Debug bool
}

// Sink owns the process log handlers. Debug verbosity can be flipped at
// runtime and applies to every destination at once.
type Sink struct {
	level *slog.LevelVar
	file  *os.File
	host  *hostState

	logger *slog.Logger
	local  *slog.Logger
}

// New builds a Sink. A log file that cannot be opened is reported on the
// terminal and otherwise ignored.
func New(opts Options) *Sink {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := new(slog.LevelVar)
	if opts.Debug {
		level.Set(slog.LevelDebug)
	}
	hopts := &slog.HandlerOptions{Level: level}

	var local []slog.Handler
	if isTerminal(stderr) {
		local = append(local, slog.NewTextHandler(stderr, hopts))
	} else {
		local = append(local, slog.NewJSONHandler(stderr, hopts))
	}

	s := &Sink{level: level, host: &hostState{}}
	if opts.FilePath != "" {
		f, err := openLogFile(opts.FilePath)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: log file disabled: %v\n", err)
		} else {
			s.file = f
			local = append(local, slog.NewTextHandler(f, hopts))
		}
	}

	s.local = slog.New(newFanout(local...))
	s.logger = slog.New(newFanout(append(local, &hostHandler{state: s.host, level: level})...))
	return s
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Logger returns the logger that also forwards records to the Control Host.
func (s *Sink) Logger() *slog.Logger { return s.logger }

// LocalLogger returns a logger that never forwards to the Control Host.
// The Control Host connection itself must log through it.
func (s *Sink) LocalLogger() *slog.Logger { return s.local }

// SetDebug toggles debug records on every destination.
func (s *Sink) SetDebug(on bool) {
	if on {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelInfo)
	}
}

// Debug reports whether debug records are enabled.
func (s *Sink) Debug() bool { return s.level.Level() <= slog.LevelDebug }

// AttachHost starts forwarding records to sender. nil detaches.
func (s *Sink) AttachHost(sender HostSender) {
	s.host.mu.Lock()
	s.host.sender = sender
	s.host.mu.Unlock()
}

// Close detaches the host and closes the log file.
func (s *Sink) Close() error {
	s.AttachHost(nil)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// fanout dispatches each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

func newFanout(handlers ...slog.Handler) *fanout {
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return newFanout(hs...)
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return newFanout(hs...)
}
