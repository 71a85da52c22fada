package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ForJob scopes a logger to the requester and index a job belongs to.
func ForJob(l *slog.Logger, requester, indexID string) *slog.Logger {
	return OrDiscard(l).With(
		slog.String("requester", requester),
		slog.String("index", indexID),
	)
}

// ForIndex scopes a logger to a single index.
func ForIndex(l *slog.Logger, indexID string) *slog.Logger {
	return OrDiscard(l).With(slog.String("index", indexID))
}

// fanoutHandler sends every record to all of its handlers.
type fanoutHandler []slog.Handler

func fanout(hs []slog.Handler) slog.Handler {
	return fanoutHandler(hs)
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
