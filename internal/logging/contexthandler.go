package logging

import (
	"context"
	"log/slog"

	"github.com/beamsim/beamsim/internal/session"
)

// ContextProvider returns attributes evaluated for every record.
type ContextProvider func() []slog.Attr

// SessionAttrs tags records with the active session id and tick rate.
func SessionAttrs(s *session.Context) ContextProvider {
	return func() []slog.Attr {
		cur, ok := s.Get()
		if !ok {
			return nil
		}
		return []slog.Attr{
			slog.String("session", cur.ID),
			slog.Float64("tickRate", float64(cur.TickRate)),
		}
	}
}

// ContextHandler adds provider attributes to each record.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
