package datasource

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	store "github.com/hanpama/livegraph/internal/store"
)

// Applier applies events to the store.
type Applier interface {
	Apply(ctx context.Context, ev store.Event) error
}

type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// Pipeline runs one worker per runtime host. A worker applies its host's
// events strictly in order; workers of different hosts interleave freely.
type Pipeline struct {
	store  Applier
	hosts  []RuntimeHost
	logger *zap.Logger
}

func NewPipeline(s Applier, hosts []RuntimeHost, opts ...Option) *Pipeline {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Pipeline{store: s, hosts: hosts, logger: o.Logger}
}

// Run blocks until every host's stream has ended or ctx is done. Rejected
// events are reported to their host and skipped. A worker whose apply fails
// for another reason, or whose stream breaks (see StreamErrer), stops; the
// others keep running and Run returns the first such failure once all have
// finished.
func (p *Pipeline) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, h := range p.hosts {
		g.Go(func() error { return p.work(ctx, h) })
	}
	return g.Wait()
}

func (p *Pipeline) work(ctx context.Context, h RuntimeHost) error {
	def := h.Definition()
	logger := p.logger.With(zap.String("source", def.ID), zap.String("kind", def.Kind))

	evs, err := h.Events(ctx)
	if err != nil {
		logger.Error("Pipeline.work start", zap.Error(err))
		return fmt.Errorf("data source %q: %w", def.ID, err)
	}
	logger.Info("Pipeline.work started")

	applied := 0
	for {
		var ev store.Event
		var ok bool
		select {
		case <-ctx.Done():
			logger.Info("Pipeline.work stopped", zap.Int("applied", applied))
			return nil
		case ev, ok = <-evs:
		}
		if !ok {
			if se, isErrer := h.(StreamErrer); isErrer && ctx.Err() == nil {
				if err := se.Err(); err != nil {
					logger.Error("Pipeline.work stream", zap.Int("applied", applied), zap.Error(err))
					return fmt.Errorf("data source %q: %w", def.ID, err)
				}
			}
			logger.Info("Pipeline.work finished", zap.Int("applied", applied))
			return nil
		}

		if ev.Source != def.ID {
			err = &store.InvalidEventError{
				Source: ev.Source,
				Key:    ev.Key,
				Reason: fmt.Sprintf("emitted by data source %q", def.ID),
			}
		} else {
			err = p.store.Apply(ctx, ev)
		}
		switch {
		case err == nil:
			applied++
		case errors.Is(err, store.ErrInvalidEvent):
			p.reject(ctx, logger, h, ev, err)
		case ctx.Err() != nil:
			return nil
		default:
			logger.Error("Pipeline.work apply", zap.Stringer("key", ev.Key), zap.Error(err))
			return fmt.Errorf("data source %q: %w", def.ID, err)
		}
	}
}

func (p *Pipeline) reject(ctx context.Context, logger *zap.Logger, h RuntimeHost, ev store.Event, err error) {
	logger.Warn("Pipeline.work rejected",
		zap.Stringer("kind", ev.Kind),
		zap.Stringer("key", ev.Key),
		zap.Error(err))
	eventbus.Publish(ctx, events.EventRejected{
		Source: ev.Source,
		Kind:   ev.Kind.String(),
		Type:   ev.Key.Type,
		ID:     ev.Key.ID,
		Err:    err,
	})
	h.Rejected(ev, err)
}
