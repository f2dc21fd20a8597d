// Package subscription keeps operations live: a subscribed operation is
// executed once and then again after every store change to the entity types
// its selections reference. A result is emitted only when it differs from
// the previous emission.
package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	executor "github.com/hanpama/livegraph/internal/executor"
	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
)

// Notifier hands out change listeners filtered by entity type.
type Notifier interface {
	Subscribe(types ...string) *store.Listener
}

// Options configures an Engine.
//
// Defaults:
// - Logger: no-op
// - Buffer: 1
type Options struct {
	Logger *zap.Logger
	Buffer int
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithBuffer sets how many results may wait for the consumer before the
// subscription stops re-executing.
func WithBuffer(n int) Option { return func(o *Options) { o.Buffer = n } }

// Engine runs live subscriptions over an executor and a change notifier.
type Engine struct {
	exec     *executor.Executor
	notifier Notifier
	logger   *zap.Logger
	buffer   int
}

func NewEngine(exec *executor.Executor, notifier Notifier, opts ...Option) *Engine {
	o := &Options{Buffer: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Buffer < 0 {
		o.Buffer = 0
	}
	return &Engine{exec: exec, notifier: notifier, logger: o.Logger, buffer: o.Buffer}
}

// Subscription is one live operation. Results are delivered on Results in
// notification order; the channel is closed when the subscription ends.
type Subscription struct {
	id      string
	results chan *executor.ExecutionResult
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Results() <-chan *executor.ExecutionResult { return s.results }

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe stops the subscription and waits for it to wind down. A
// re-execution in flight may finish but its result is discarded. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// Subscribe starts a live subscription for ec. The change listener is
// registered before the initial execution, so no change applied after
// Subscribe returns is missed. The initial result is always emitted.
//
// The subscription ends when ec's context is done, on Unsubscribe, or after
// emitting a fatal result.
func (e *Engine) Subscribe(ec *executor.ExecutionContext) (*Subscription, error) {
	types := entityTypes(ec.Schema(), executor.ReferencedTypes(ec))

	var listener *store.Listener
	if len(types) > 0 {
		listener = e.notifier.Subscribe(types...)
	}

	ctx, cancel := context.WithCancel(ec.Context())
	sub := &Subscription{
		id:      uuid.NewString(),
		results: make(chan *executor.ExecutionResult, e.buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	name, _ := language.OperationName(ec.Operation())
	e.logger.Debug("Engine.Subscribe",
		zap.String("id", sub.id),
		zap.String("operation", name),
		zap.Strings("types", types))
	eventbus.Publish(ctx, events.SubscriptionStart{ID: sub.id, OperationName: name})

	r := &runner{
		engine:   e,
		sub:      sub,
		ec:       ec.WithContext(ctx),
		listener: listener,
		name:     name,
	}
	go r.loop(ctx)
	return sub, nil
}

type runner struct {
	engine   *Engine
	sub      *Subscription
	ec       *executor.ExecutionContext
	listener *store.Listener
	name     string

	emitted   bool
	last      uint64
	emissions int
	err       error
}

func (r *runner) loop(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r.listener != nil {
			r.listener.Close()
		}
		close(r.sub.results)
		r.sub.cancel()
		r.engine.logger.Debug("Engine.Subscribe finished",
			zap.String("id", r.sub.id),
			zap.Int("emissions", r.emissions),
			zap.Error(r.err))
		eventbus.Publish(context.WithoutCancel(ctx), events.SubscriptionFinish{
			ID:            r.sub.id,
			OperationName: r.name,
			Emissions:     r.emissions,
			Err:           r.err,
			Duration:      time.Since(start),
		})
		close(r.sub.done)
	}()

	if !r.run(ctx) {
		return
	}
	if r.listener == nil {
		<-ctx.Done()
		return
	}
	for {
		if _, err := r.listener.Next(ctx); err != nil {
			return
		}
		if !r.run(ctx) {
			return
		}
	}
}

// run executes once and emits the result unless it matches the previous
// emission. It reports whether the subscription continues.
func (r *runner) run(ctx context.Context) bool {
	res := r.engine.exec.Execute(r.ec)
	if ctx.Err() != nil {
		return false
	}

	fp, err := fingerprint(res)
	if err != nil {
		r.engine.logger.Warn("Engine.Subscribe fingerprint", zap.String("id", r.sub.id), zap.Error(err))
	}
	if err == nil && r.emitted && fp == r.last {
		return true
	}

	if !r.emit(ctx, res) {
		return false
	}
	r.emitted = true
	r.last = fp
	r.emissions++
	if res.Err != nil {
		r.err = res.Err
		return false
	}
	return true
}

// emit hands res to the consumer. Once ctx is done nothing more is queued,
// even while the buffer has room.
func (r *runner) emit(ctx context.Context, res *executor.ExecutionResult) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case r.sub.results <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

func fingerprint(res *executor.ExecutionResult) (uint64, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}

// entityTypes narrows referenced type names to the entity types whose
// changes can alter the result; abstract types contribute their entity
// implementations.
func entityTypes(sch *schema.Schema, referenced []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if sch.IsEntity(name) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range referenced {
		t := sch.Types[name]
		if t == nil {
			continue
		}
		if t.IsAbstract() {
			for _, p := range t.PossibleTypes {
				add(p)
			}
			continue
		}
		add(name)
	}
	return out
}
