package hostrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	datasource "github.com/hanpama/livegraph/internal/datasource"
	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	store "github.com/hanpama/livegraph/internal/store"
)

// Host is a runtime host served by a remote Server. The definition's
// Location is the gRPC target; its ID names the source on the server.
type Host struct {
	def    datasource.Definition
	opts   *Options
	conn   *grpc.ClientConn
	closed atomic.Bool
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error // why the last event stream broke
}

var (
	_ datasource.RuntimeHost = (*Host)(nil)
	_ datasource.StreamErrer = (*Host)(nil)
)

// Builder returns the datasource.Builder for the "grpc" kind.
func Builder(opts ...Option) datasource.Builder {
	return func(def datasource.Definition) (datasource.RuntimeHost, error) {
		return NewHost(def, opts...)
	}
}

func NewHost(def datasource.Definition, opts ...Option) (*Host, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	if def.Location == "" {
		return nil, fmt.Errorf("grpc data source needs a location")
	}
	conn, err := grpc.NewClient(def.Location, o.DialOptions...)
	if err != nil {
		return nil, err
	}
	return &Host{def: def, opts: o, conn: conn}, nil
}

func (h *Host) Definition() datasource.Definition { return h.def }

// Events opens the event stream. The channel closes when the server ends the
// stream, the stream fails, or ctx is done; Err tells a failure apart.
func (h *Host) Events(ctx context.Context) (<-chan store.Event, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	h.setErr(nil)
	ctx = metadata.AppendToOutgoingContext(ctx, "x-livegraph-source", h.def.ID)

	start := time.Now()
	eventbus.Publish(ctx, events.HostCallStart{Source: h.def.ID, Method: "Events", Target: h.def.Location})

	stream, err := h.conn.NewStream(ctx, &serviceDesc.Streams[0], eventsMethod)
	if err == nil {
		err = h.sendRequest(stream)
	}
	if err != nil {
		h.finish(ctx, "Events", start, err)
		return nil, err
	}

	ch := make(chan store.Event)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(ch)
		err := h.receive(ctx, stream, ch)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if err != nil && ctx.Err() == nil && !h.closed.Load() {
			h.opts.Logger.Warn("Host.Events", zap.String("source", h.def.ID), zap.Error(err))
			h.setErr(err)
		}
		h.finish(ctx, "Events", start, err)
	}()
	return ch, nil
}

// Err reports why the last event stream broke, or nil if it ended normally
// or was canceled.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Host) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *Host) sendRequest(stream grpc.ClientStream) error {
	req, err := structpb.NewStruct(map[string]any{"source": h.def.ID})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	return stream.CloseSend()
}

func (h *Host) receive(ctx context.Context, stream grpc.ClientStream, ch chan<- store.Event) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		ev, err := decodeEvent(msg)
		if err != nil {
			if ev.Source == "" {
				ev.Source = h.def.ID
			}
			h.opts.Logger.Warn("Host.Events decode", zap.String("source", h.def.ID), zap.Stringer("key", ev.Key), zap.Error(err))
			h.Rejected(ev, &store.InvalidEventError{Source: ev.Source, Key: ev.Key, Reason: err.Error()})
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Rejected reports the rejection to the server. Failures are logged.
func (h *Host) Rejected(ev store.Event, reason error) {
	if h.closed.Load() {
		return
	}
	ctx := context.Background()
	if h.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RPCTimeout)
		defer cancel()
	}

	start := time.Now()
	eventbus.Publish(ctx, events.HostCallStart{Source: h.def.ID, Method: "Reject", Target: h.def.Location})
	req, err := encodeRejection(ev, reason)
	if err == nil {
		err = h.conn.Invoke(ctx, rejectMethod, req, &emptypb.Empty{})
	}
	h.finish(ctx, "Reject", start, err)
	if err != nil {
		h.opts.Logger.Warn("Host.Rejected", zap.String("source", h.def.ID), zap.Stringer("key", ev.Key), zap.Error(err))
	}
}

func (h *Host) finish(ctx context.Context, method string, start time.Time, err error) {
	eventbus.Publish(ctx, events.HostCallFinish{
		Source:   h.def.ID,
		Method:   method,
		Target:   h.def.Location,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
}

// Close closes the connection and waits for open streams to wind down.
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	err := h.conn.Close()
	h.wg.Wait()
	return err
}
