package util

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zap.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zap.InfoLevel, ParseLevel(""))
}

func TestNewLoggerWithFile_ExtraSink(t *testing.T) {
	var sink syncBuffer
	logger, err := NewLoggerWithFile(filepath.Join(t.TempDir(), "logs", "node.log"), "info", &sink)
	require.NoError(t, err)

	logger.Sugar().Infow("order_published", "asset", "BITCOIN")
	logger.Sugar().Debugw("hidden")
	_ = logger.Sync()

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(sink.buf.Bytes()), &line))
	assert.Equal(t, "order_published", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "BITCOIN", line["asset"])
	assert.Contains(t, line, "ts")
}
