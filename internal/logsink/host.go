package logsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/throwbridge/throwbridge/internal/schema"
)

type hostState struct {
	mu     sync.RWMutex
	sender HostSender
}

func (s *hostState) get() HostSender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender
}

// hostHandler renders a record as a Control Host log message:
// the message text followed by its attributes as one JSON object.
type hostHandler struct {
	state *hostState
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func (h *hostHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *hostHandler) Handle(_ context.Context, r slog.Record) error {
	sender := h.state.get()
	if sender == nil {
		return nil
	}

	data := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(data, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, h.group, a)
		return true
	})

	msg := r.Message
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			msg += " " + string(b)
		}
	}
	sender.Send(schema.NewLog(levelName(r.Level), msg))
	return nil
}

func (h *hostHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *hostHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func addAttr(data map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(data, key, ga)
		}
		return
	}
	switch v := a.Value.Any().(type) {
	case error:
		data[key] = v.Error()
	default:
		data[key] = v
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
