// File: internal/agent/transcript.go
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// Transcript records one run's events as JSONL, a fresh file per run so
// runs never interleave. Like the interaction log, writes are best effort.
type Transcript struct {
	mu     sync.Mutex
	runID  string
	path   string
	logger *zap.Logger
}

// NewTranscript allocates a run ID and its transcript file under dir.
func NewTranscript(dir string, logger *zap.Logger) (*Transcript, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	runID := uuid.NewString()
	return &Transcript{
		runID:  runID,
		path:   filepath.Join(dir, "run-"+runID+".jsonl"),
		logger: logger,
	}, nil
}

// RunID returns the identifier stamped on every event.
func (t *Transcript) RunID() string { return t.runID }

// Path returns the transcript file location.
func (t *Transcript) Path() string { return t.path }

// Record appends one event. Fields merge into the top-level object beside
// the fixed keys.
func (t *Transcript) Record(event string, fields map[string]any) {
	record := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"run_id":    t.runID,
		"event":     event,
	}
	for k, v := range fields {
		record[k] = v
	}
	line, err := json.Marshal(record)
	if err != nil {
		t.logger.Warn("Failed to encode transcript event.", zap.Error(err), zap.String("event", event))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.logger.Warn("Failed to open transcript.", zap.Error(err), zap.String("path", t.path))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		t.logger.Warn("Failed to append transcript event.", zap.Error(err), zap.String("path", t.path))
	}
}
