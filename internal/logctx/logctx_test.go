package logctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))
	assert.Equal(t, slog.Default(), LoggerFromContext(WithLogger(context.Background(), nil)))

	logger, _ := newTestLogger(slog.LevelDebug)
	assert.Same(t, logger, LoggerFromContext(WithLogger(context.Background(), logger)))
}

func TestCartFromContext(t *testing.T) {
	assert.Empty(t, CartFromContext(context.Background()))
	assert.Equal(t, "cartStatus", CartFromContext(WithCart(context.Background(), "cartStatus")))
}
