package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// Options configures a Store.
//
// Defaults:
// - Logger: no-op
type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// Store validates and applies data-source events over a Backend, serves
// entity reads, and notifies listeners of applied changes.
type Store struct {
	schema  *schema.Schema
	backend Backend
	logger  *zap.Logger

	applyMu sync.Mutex // serializes applies and change publication

	listenersMu sync.Mutex
	listeners   map[*Listener]struct{}
}

func New(sch *schema.Schema, backend Backend, opts ...Option) *Store {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Store{
		schema:    sch,
		backend:   backend,
		logger:    o.Logger,
		listeners: make(map[*Listener]struct{}),
	}
}

// Schema returns the schema events are validated against.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Get returns the entity at key, or nil when there is none.
func (s *Store) Get(ctx context.Context, key Key) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return normalizeEntity(s.schema.Types[key.Type], s.schema, e), nil
}

// Find returns the entities of q.Type matching every filter, ordered and
// paginated. Without an explicit First at most DefaultFirst entities are
// returned.
func (s *Store) Find(ctx context.Context, q Query) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.schema.IsEntity(q.Type) {
		return nil, fmt.Errorf("%s is not an entity type", q.Type)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	all, err := s.backend.Scan(ctx, q.Type)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Type, err)
	}
	typ := s.schema.Types[q.Type]
	for _, e := range all {
		normalizeEntity(typ, s.schema, e)
	}
	return q.Select(all), nil
}

// Apply validates ev and writes it. Created replaces the entity, Changed
// merges into it (creating it when absent) and Removed deletes it; removing
// an absent entity succeeds. An invalid event returns an error matching
// ErrInvalidEvent and leaves the store untouched.
//
// Applies are serialized, so changes reach listeners in apply order.
func (s *Store) Apply(ctx context.Context, ev Event) error {
	attrs, err := validateEvent(s.schema, ev)
	if err != nil {
		return err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	start := time.Now()
	change, err := s.write(ctx, ev, attrs)
	eventbus.Publish(ctx, events.EntityApplied{
		Source:   ev.Source,
		Kind:     ev.Kind.String(),
		Type:     ev.Key.Type,
		ID:       ev.Key.ID,
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return err
	}
	s.logger.Debug("Store.Apply",
		zap.String("source", ev.Source),
		zap.Stringer("kind", ev.Kind),
		zap.Stringer("key", ev.Key))
	s.publish(change)
	return nil
}

func (s *Store) write(ctx context.Context, ev Event, attrs Entity) (Change, error) {
	change := Change{Kind: ev.Kind, Source: ev.Source, Key: ev.Key}
	switch ev.Kind {
	case EntityRemoved:
		if _, err := s.backend.Delete(ctx, ev.Key); err != nil {
			return change, fmt.Errorf("delete %s: %w", ev.Key, err)
		}
		return change, nil
	case EntityChanged:
		existing, err := s.backend.Get(ctx, ev.Key)
		if err != nil {
			return change, fmt.Errorf("get %s: %w", ev.Key, err)
		}
		if existing == nil {
			existing = Entity{}
		}
		normalizeEntity(s.schema.Types[ev.Key.Type], s.schema, existing)
		for name, v := range attrs {
			if v == nil {
				delete(existing, name)
				continue
			}
			existing[name] = v
		}
		attrs = existing
	case EntityCreated:
		for name, v := range attrs {
			if v == nil {
				delete(attrs, name)
			}
		}
	}
	if err := checkComplete(s.schema.Types[ev.Key.Type], attrs); err != nil {
		return change, invalid(ev, "%v", err)
	}
	if err := s.backend.Put(ctx, ev.Key, attrs); err != nil {
		return change, fmt.Errorf("put %s: %w", ev.Key, err)
	}
	change.Entity = attrs.Clone()
	return change, nil
}

// Subscribe returns a listener for changes to entities of the given types,
// or of every type when none is given. Close it when done.
func (s *Store) Subscribe(types ...string) *Listener {
	l := newListener(s, types)
	s.listenersMu.Lock()
	s.listeners[l] = struct{}{}
	s.listenersMu.Unlock()
	return l
}

func (s *Store) removeListener(l *Listener) {
	s.listenersMu.Lock()
	delete(s.listeners, l)
	s.listenersMu.Unlock()
}

func (s *Store) publish(c Change) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for l := range s.listeners {
		if l.Wants(c.Key.Type) {
			l.enqueue(c)
		}
	}
}

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }
