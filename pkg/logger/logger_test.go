package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug")

	l.Info("fit done",
		String("category", "rent"),
		Int("lags", 5),
		Float64("aic", 12.5),
		Bool("seasonal", true),
		Duration("took", 1500*time.Millisecond),
		Strings("models", []string{"sarima", "gb"}),
	)

	m := decodeLine(t, &buf)
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "fit done", m["message"])
	assert.Equal(t, "rent", m["category"])
	assert.Equal(t, float64(5), m["lags"])
	assert.Equal(t, 12.5, m["aic"])
	assert.Equal(t, true, m["seasonal"])
	assert.Equal(t, float64(1500), m["took"])
	assert.Equal(t, "sarima, gb", m["models"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept", Error(errors.New("boom")))
	assert.Equal(t, "boom", decodeLine(t, &buf)["error"])
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info").With(String("engine", "prophet"))

	l.Info("trained")
	assert.Equal(t, "prophet", decodeLine(t, &buf)["engine"])
}

type capturePublisher struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestErrorDigestFoldsRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWithWriter(&bytes.Buffer{}, "info")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "fincast.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("archive failed", String("batch_id", "b-1"))
	}
	l.Error("archive failed", String("batch_id", "b-2"))
	l.Warn("not collected")
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	require.Len(t, pub.payloads, 1)
	entries := pub.payloads[0].([]AggregatedLogEntry)
	require.Len(t, entries, 2)
	counts := map[interface{}]int{}
	for _, e := range entries {
		counts[e.Fields["batch_id"]] = e.Count
	}
	assert.Equal(t, 3, counts["b-1"])
	assert.Equal(t, 1, counts["b-2"])
}

func TestEngineLogsLifecycle(t *testing.T) {
	dir := t.TempDir()
	el, err := OpenEngineLogs(EngineLogsConfig{
		Level:  "info",
		Format: "json",
		Files: map[string]string{
			"sarima": filepath.Join(dir, "sarima.log"),
			"gb":     filepath.Join(dir, "gb.log"),
		},
	})
	require.NoError(t, err)

	el.For("sarima").Info("order selected")
	el.For("unknown").Info("discarded")
	require.NoError(t, el.Close())
	require.NoError(t, el.Close())

	data, err := os.ReadFile(filepath.Join(dir, "sarima.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"engine":"sarima"`)
	assert.Contains(t, string(data), "order selected")

	// closed logs fall back to discarding
	assert.NotPanics(t, func() { el.For("sarima").Info("late line") })
}

func TestEngineLoggerHeldAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prophet.log")
	el, err := OpenEngineLogs(EngineLogsConfig{Level: "info", Files: map[string]string{"prophet": path}})
	require.NoError(t, err)

	held := el.For("prophet")
	held.Info("before close")
	require.NoError(t, el.Close())
	assert.NotPanics(t, func() { held.Info("after close") })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before close")
	assert.NotContains(t, string(data), "after close")
}

func TestOpenEngineLogsFailsOnBadPath(t *testing.T) {
	_, err := OpenEngineLogs(EngineLogsConfig{
		Level: "info",
		Files: map[string]string{"gb": filepath.Join(t.TempDir(), "missing", "gb.log")},
	})
	assert.Error(t, err)
}
