// File: internal/gandalf/log.go
package gandalf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// Event is one page interaction worth recording. Response and Err are
// mutually exclusive in practice but the log tolerates both.
type Event struct {
	Action   string
	Purpose  string
	Request  map[string]any
	Response string
	Err      error
	Extra    map[string]any
}

// InteractionLog appends one JSON object per interaction to a shared file.
// Writes are best effort. A failure to record never fails the interaction
// itself; it is logged and dropped.
type InteractionLog struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewInteractionLog creates the log's parent directory eagerly so the first
// append cannot fail on a missing path.
func NewInteractionLog(path string, logger *zap.Logger) (*InteractionLog, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &InteractionLog{path: path, logger: logger}, nil
}

// Append records one event. Timestamps are UTC at call time.
func (l *InteractionLog) Append(ev Event) {
	line, err := marshalEvent(ev, time.Now().UTC())
	if err != nil {
		l.logger.Warn("Failed to encode interaction record.", zap.Error(err), zap.String("action", ev.Action))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.logger.Warn("Failed to open interaction log.", zap.Error(err), zap.String("path", l.path))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("Failed to append interaction record.", zap.Error(err), zap.String("path", l.path))
	}
}

// marshalEvent flattens an event into a single JSON object. Extra keys merge
// into the top level so ad hoc fields like next_level_url sit beside the
// fixed ones. Status derives from Err.
func marshalEvent(ev Event, now time.Time) ([]byte, error) {
	record := map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
		"action":    ev.Action,
		"purpose":   ev.Purpose,
		"request":   ev.Request,
		"response":  ev.Response,
		"status":    "success",
	}
	if ev.Err != nil {
		record["status"] = "error"
		record["error"] = ev.Err.Error()
	}
	for k, v := range ev.Extra {
		record[k] = v
	}
	return json.Marshal(record)
}
