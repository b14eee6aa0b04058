package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_Prefix(t *testing.T) {
	buf := bytes.Buffer{}
	log := NewWriterLogger(&buf, slog.LevelInfo)
	log.Debug("hidden")
	log.Warn("asset conflicts", "path", "/Game/Rock")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[scenesync] asset conflicts")
	assert.Contains(t, buf.String(), "path=/Game/Rock")
}

func TestLogger_DefaultArgs(t *testing.T) {
	buf := bytes.Buffer{}
	log := NewWriterLogger(&buf, slog.LevelDebug)
	ctx := WithDefaultArgs(context.Background(), "user", 7)
	ctx2 := WithDefaultArgs(ctx, "object", 12)
	log.InfoCtx(ctx, "first")
	assert.Contains(t, buf.String(), "user=7")
	assert.NotContains(t, buf.String(), "object=12")
	buf.Reset()
	log.InfoCtx(ctx2, "second")
	assert.Contains(t, buf.String(), "user=7")
	assert.Contains(t, buf.String(), "object=12")
}

func TestLogger_ParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
