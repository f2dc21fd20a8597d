// Package datasource connects runtime hosts, which emit ordered entity
// events for one data source each, to the store.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"

	store "github.com/hanpama/livegraph/internal/store"
)

// Definition describes one data source.
type Definition struct {
	ID       string            `yaml:"id"`
	Kind     string            `yaml:"kind"`
	Location string            `yaml:"location"`
	Options  map[string]string `yaml:"options,omitempty"`
}

// RuntimeHost produces the events of one data source.
type RuntimeHost interface {
	// Definition returns the data source the host runs.
	Definition() Definition

	// Events starts the host. Events arrive in emission order; the channel is
	// closed when the host has nothing more to emit or ctx is done.
	Events(ctx context.Context) (<-chan store.Event, error)

	// Rejected reports an event the store refused.
	Rejected(ev store.Event, err error)
}

// StreamErrer is implemented by hosts whose event stream can break, such as
// hosts in another process. Err is consulted once the event channel is
// closed; nil means the source finished.
type StreamErrer interface {
	Err() error
}

// Builder creates the runtime host for a definition.
type Builder func(def Definition) (RuntimeHost, error)

// ErrUnknownKind is returned for definitions no builder is registered for.
var ErrUnknownKind = errors.New("datasource: unknown kind")

// Builders maps definition kinds to builders.
type Builders map[string]Builder

// Build creates one host per definition. Ids must be unique.
func (b Builders) Build(defs []Definition) ([]RuntimeHost, error) {
	seen := make(map[string]bool, len(defs))
	hosts := make([]RuntimeHost, 0, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("data source of kind %q has no id", def.Kind)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate data source id %q", def.ID)
		}
		seen[def.ID] = true

		build, ok := b[def.Kind]
		if !ok {
			return nil, fmt.Errorf("data source %q: %w %q (known: %v)", def.ID, ErrUnknownKind, def.Kind, b.kinds())
		}
		h, err := build(def)
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", def.ID, err)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func (b Builders) kinds() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
