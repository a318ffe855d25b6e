package log

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler dispatches each record to every handler that accepts its
// level. Each handler keeps its own threshold.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a handler writing to all non-nil handlers.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	h := &FanoutHandler{}
	for _, handler := range handlers {
		if handler != nil {
			h.handlers = append(h.handlers, handler)
		}
	}

	return h
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &FanoutHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithAttrs(attrs)
	}

	return out
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	out := &FanoutHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithGroup(name)
	}

	return out
}
