package datasource

import (
	"context"
	"sync"

	store "github.com/hanpama/livegraph/internal/store"
)

// Rejection is an event a ChannelHost was told the store refused.
type Rejection struct {
	Event store.Event
	Err   error
}

// ChannelHost is a RuntimeHost fed by Go code. Emit stamps events with the
// host's id.
type ChannelHost struct {
	def    Definition
	events chan store.Event

	mu        sync.Mutex
	rejected  []Rejection
	err       error
	closeOnce sync.Once
}

// NewChannelHost returns a host for the data source id with room for
// buffer pending events.
func NewChannelHost(id string, buffer int) *ChannelHost {
	return &ChannelHost{
		def:    Definition{ID: id, Kind: "channel"},
		events: make(chan store.Event, buffer),
	}
}

func (h *ChannelHost) Definition() Definition { return h.def }

func (h *ChannelHost) Events(context.Context) (<-chan store.Event, error) {
	return h.events, nil
}

// Emit queues ev, blocking while the buffer is full.
func (h *ChannelHost) Emit(ctx context.Context, ev store.Event) error {
	if ev.Source == "" {
		ev.Source = h.def.ID
	}
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the event stream.
func (h *ChannelHost) Close() {
	h.CloseWithError(nil)
}

// CloseWithError ends the event stream as broken; Err reports err.
func (h *ChannelHost) CloseWithError(err error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.events)
	})
}

func (h *ChannelHost) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *ChannelHost) Rejected(ev store.Event, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, Rejection{Event: ev, Err: err})
}

// Rejections returns the rejections reported so far.
func (h *ChannelHost) Rejections() []Rejection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Rejection(nil), h.rejected...)
}
