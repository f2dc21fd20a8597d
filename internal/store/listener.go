package store

import (
	"context"
	"sync"
)

// Listener receives the changes of the entity types it was created for, in
// apply order.
//
// The queue is unbounded so that a slow subscriber never blocks applies;
// subscribers coalesce on their side.
type Listener struct {
	store  *Store
	types  map[string]bool // nil means every type
	mu     sync.Mutex
	queue  []Change
	closed bool
	signal chan struct{} // buffered, size 1
}

func newListener(s *Store, types []string) *Listener {
	l := &Listener{
		store:  s,
		queue:  make([]Change, 0, 16),
		signal: make(chan struct{}, 1),
	}
	if len(types) > 0 {
		l.types = make(map[string]bool, len(types))
		for _, t := range types {
			l.types[t] = true
		}
	}
	return l
}

// Wants reports whether changes to entities of the type are delivered.
func (l *Listener) Wants(entityType string) bool {
	return l.types == nil || l.types[entityType]
}

func (l *Listener) enqueue(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, c)
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Listener) tryDequeue() (Change, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Change{}, false, l.closed
	}
	c := l.queue[0]
	l.queue[0] = Change{}
	if len(l.queue) == 1 {
		l.queue = l.queue[:0]
	} else {
		l.queue = l.queue[1:]
	}
	return c, true, l.closed
}

// Next blocks until a change is available. It returns ErrClosed once the
// listener is closed, and the context error when ctx is done first.
func (l *Listener) Next(ctx context.Context) (Change, error) {
	for {
		c, ok, closed := l.tryDequeue()
		if closed {
			return Change{}, ErrClosed
		}
		if ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return Change{}, ctx.Err()
		case <-l.signal:
		}
	}
}

// Drain removes and returns every queued change without blocking.
func (l *Listener) Drain() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.queue
	l.queue = make([]Change, 0, 16)
	return out
}

// Len returns the number of queued changes.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close detaches the listener from the store and wakes blocked callers of
// Next. Queued changes are dropped.
func (l *Listener) Close() {
	l.store.removeListener(l)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.signal)
}
