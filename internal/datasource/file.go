package datasource

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	store "github.com/hanpama/livegraph/internal/store"
)

// EventLog is the YAML document a file data source replays.
//
//	events:
//	  - kind: created
//	    type: Account
//	    id: a1
//	    entity: {owner: ada, balance: 10}
//	  - kind: removed
//	    type: Account
//	    id: a1
type EventLog struct {
	Events []LogEntry `yaml:"events"`
}

type LogEntry struct {
	Kind   string         `yaml:"kind"`
	Type   string         `yaml:"type"`
	ID     string         `yaml:"id"`
	Entity map[string]any `yaml:"entity,omitempty"`
}

// ParseEventLog decodes an event log and stamps its events with source.
func ParseEventLog(source string, data []byte) ([]store.Event, error) {
	var log EventLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parse event log: %w", err)
	}
	out := make([]store.Event, 0, len(log.Events))
	for i, entry := range log.Events {
		kind, ok := store.ParseEventKind(entry.Kind)
		if !ok {
			return nil, fmt.Errorf("event %d: unknown kind %q", i, entry.Kind)
		}
		ev := store.Event{
			Kind:   kind,
			Source: source,
			Key:    store.Key{Type: entry.Type, ID: entry.ID},
		}
		if kind != store.EntityRemoved {
			ev.Entity = store.Entity(entry.Entity)
			if ev.Entity == nil {
				ev.Entity = store.Entity{}
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// FileHost replays a YAML event log. With the "interval" option set (a Go
// duration) it waits that long between events.
type FileHost struct {
	def      Definition
	interval time.Duration
	logger   *zap.Logger
}

// FileBuilder returns the Builder for the "file" kind.
func FileBuilder(logger *zap.Logger) Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(def Definition) (RuntimeHost, error) {
		if def.Location == "" {
			return nil, fmt.Errorf("file data source needs a location")
		}
		h := &FileHost{def: def, logger: logger}
		if v := def.Options["interval"]; v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("interval: %w", err)
			}
			h.interval = d
		}
		return h, nil
	}
}

func (h *FileHost) Definition() Definition { return h.def }

// Events reads the whole log up front, so a malformed file fails here
// rather than half way through.
func (h *FileHost) Events(ctx context.Context) (<-chan store.Event, error) {
	data, err := os.ReadFile(h.def.Location)
	if err != nil {
		return nil, err
	}
	evs, err := ParseEventLog(h.def.ID, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.def.Location, err)
	}

	ch := make(chan store.Event)
	go func() {
		defer close(ch)
		for i, ev := range evs {
			if i > 0 && h.interval > 0 {
				select {
				case <-time.After(h.interval):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (h *FileHost) Rejected(ev store.Event, err error) {
	h.logger.Warn("FileHost.Rejected",
		zap.String("source", h.def.ID),
		zap.String("file", h.def.Location),
		zap.Stringer("key", ev.Key),
		zap.Error(err))
}
