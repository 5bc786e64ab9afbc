package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names recorded by the rate pipeline.
const (
	EventRateUpdate       = "rate_update"
	EventModuleRateUpdate = "module_rate_update"
	EventManualRefresh    = "manual_refresh"
	EventLedgerImport     = "ledger_import"
)

// Event is one immutable ledger entry.
type Event struct {
	Name       string
	Parameters map[string]string
	Timestamp  time.Time
}

// Param returns the named parameter, or "" when absent.
func (e Event) Param(key string) string {
	return e.Parameters[key]
}

func (e Event) clone() Event {
	e.Parameters = copyParams(e.Parameters)
	return e
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// wireEvent is the archive encoding. Timestamps are written in UTC with
// nanosecond precision so that decode(encode(x)) == x.
type wireEvent struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters"`
	Timestamp  string            `json:"timestamp"`
}

// MarshalJSON encodes the event in archive form.
func (e Event) MarshalJSON() ([]byte, error) {
	params := e.Parameters
	if params == nil {
		params = map[string]string{}
	}
	return json.Marshal(wireEvent{
		Name:       e.Name,
		Parameters: params,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON decodes the archive form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("event name is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("event %q timestamp: %w", w.Name, err)
	}
	e.Name = w.Name
	e.Parameters = copyParams(w.Parameters)
	e.Timestamp = ts.UTC()
	return nil
}
