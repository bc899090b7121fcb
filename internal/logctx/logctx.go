package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	cartKey   contextKey = "cart"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithCart returns a new context tagged with the name of the cart being worked on.
func WithCart(ctx context.Context, cart string) context.Context {
	return context.WithValue(ctx, cartKey, cart)
}

// CartFromContext returns the cart name stored by WithCart, or "".
func CartFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(cartKey).(string); ok {
		return c
	}

	return ""
}
