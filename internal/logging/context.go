// Package logging provides utilities for working with [zerolog] and
// [context.Context], mirroring the shape of tzrikka-timpani's
// internal/logger package but standardized on zerolog (see DESIGN.md for
// why), matching the construction already used by that package's own
// tests and by its pkg/temporal/logger.go adapter.
package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// InContext returns a copy of ctx carrying l, retrievable with
// [FromContext].
func InContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger attached to ctx by InContext. If none
// was attached, it returns zerolog.DefaultContextLogger when that is set,
// and otherwise a disabled logger that discards every event.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// New builds the default logger: JSON to stderr at the given level,
// with a timestamp field, the way tzrikka-timpani/pkg/temporal/logger.go
// configures the zerolog.Logger it bridges into Temporal's Logger
// interface.
func New(level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
