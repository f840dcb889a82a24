package observability

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/gandalf-cli/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "test"}, out)

	GetLogger().Info("hello", zap.String("key", "value"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "test", entry["logger"])
}

func TestInitializeHonorsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "test"}, out)

	GetLogger().Info("ignored")
	GetLogger().Warn("kept")

	assert.NotContains(t, out.String(), "ignored")
	assert.Contains(t, out.String(), "kept")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, second)

	GetLogger().Info("routed")

	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String())
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Debug("fallback works") })
}

func TestColorizedLevelEncoder(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	arr := &stringArrayEncoder{}
	colorizedLevelEncoder(zapcore.WarnLevel, arr)
	_ = enc

	require.Len(t, arr.values, 1)
	assert.Contains(t, arr.values[0], "WARN")
	assert.Contains(t, arr.values[0], colorYellow)
}

// stringArrayEncoder captures appended strings for assertions.
type stringArrayEncoder struct {
	zapcore.PrimitiveArrayEncoder
	values []string
}

func (s *stringArrayEncoder) AppendString(v string) { s.values = append(s.values, v) }
