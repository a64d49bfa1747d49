package liblog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))

	buf := new(bytes.Buffer)
	SetLogger(slog.New(slog.NewTextHandler(buf, nil)))
	Logger().Info("baked", "faces", 6)
	assert.Contains(t, buf.String(), "faces=6")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}
