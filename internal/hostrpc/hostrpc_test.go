package hostrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	datasource "github.com/hanpama/livegraph/internal/datasource"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
)

func serve(t *testing.T, hosts ...datasource.RuntimeHost) []grpc.DialOption {
	t.Helper()
	_, dialOpts := startServer(t, hosts...)
	return dialOpts
}

func startServer(t *testing.T, hosts ...datasource.RuntimeHost) (*grpc.Server, []grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(nil, hosts...).Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	return gs, []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	sch, err := schema.BuildFromSDL(`
		type Account @entity { id: ID!, owner: String!, balance: Int }
		type Query { accounts: [Account!]! }
	`)
	require.NoError(t, err)
	s := store.New(sch, store.NewMemoryBackend())
	t.Cleanup(func() { s.Close() })
	return s
}

func dial(t *testing.T, id string, dialOpts []grpc.DialOption) *Host {
	t.Helper()
	h, err := NewHost(datasource.Definition{ID: id, Kind: "grpc", Location: "passthrough:///bufnet"}, WithDialOptions(dialOpts...))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func account(id string) store.Key { return store.Key{Type: "Account", ID: id} }

func TestEventsRoundTrip(t *testing.T) {
	remote := datasource.NewChannelHost("ledger", 8)
	ctx := context.Background()
	require.NoError(t, remote.Emit(ctx, store.Created("", account("a1"), store.Entity{"owner": "ada", "balance": 3, "tags": []string{"x"}})))
	require.NoError(t, remote.Emit(ctx, store.Changed("", account("a1"), store.Entity{"balance": nil})))
	require.NoError(t, remote.Emit(ctx, store.Removed("", account("a1"))))
	remote.Close()

	h := dial(t, "ledger", serve(t, remote))
	evs, err := h.Events(ctx)
	require.NoError(t, err)

	var got []store.Event
	for ev := range evs {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	require.Equal(t, store.Created("ledger", account("a1"), store.Entity{"owner": "ada", "balance": float64(3), "tags": []any{"x"}}), got[0])
	require.Equal(t, store.Changed("ledger", account("a1"), store.Entity{"balance": nil}), got[1])
	require.Equal(t, store.Removed("ledger", account("a1")), got[2])
}

func TestPipelineOverGRPC(t *testing.T) {
	s := newStore(t)

	remote := datasource.NewChannelHost("ledger", 8)
	ctx := context.Background()
	require.NoError(t, remote.Emit(ctx, store.Created("", account("a1"), store.Entity{"owner": "ada", "balance": 3})))
	require.NoError(t, remote.Emit(ctx, store.Created("", account("a2"), store.Entity{"balance": 1.5})))
	remote.Close()

	h := dial(t, "ledger", serve(t, remote))
	require.NoError(t, datasource.NewPipeline(s, []datasource.RuntimeHost{h}).Run(ctx))

	e, err := s.Get(ctx, account("a1"))
	require.NoError(t, err)
	require.Equal(t, store.Entity{"id": "a1", "owner": "ada", "balance": int64(3)}, e)

	rejected := remote.Rejections()
	require.Len(t, rejected, 1)
	require.Equal(t, account("a2"), rejected[0].Event.Key)
	require.Equal(t, store.EntityCreated, rejected[0].Event.Kind)
	require.Contains(t, rejected[0].Err.Error(), "a2")
}

func TestUndecodableEventIsRejected(t *testing.T) {
	remote := datasource.NewChannelHost("ledger", 8)
	ctx := context.Background()
	require.NoError(t, remote.Emit(ctx, store.Event{Key: account("a9")}))
	require.NoError(t, remote.Emit(ctx, store.Removed("", account("a1"))))
	remote.Close()

	h := dial(t, "ledger", serve(t, remote))
	evs, err := h.Events(ctx)
	require.NoError(t, err)
	var got []store.Event
	for ev := range evs {
		got = append(got, ev)
	}
	require.Equal(t, []store.Event{store.Removed("ledger", account("a1"))}, got)
	require.NoError(t, h.Err())

	rejected := remote.Rejections()
	require.Len(t, rejected, 1)
	require.Equal(t, account("a9"), rejected[0].Event.Key)
	require.Equal(t, "ledger", rejected[0].Event.Source)
	require.Contains(t, rejected[0].Err.Error(), `unknown event kind "Unknown"`)
}

func TestBrokenStreamFailsPipeline(t *testing.T) {
	s := newStore(t)
	remote := datasource.NewChannelHost("ledger", 0)
	defer remote.Close()
	gs, dialOpts := startServer(t, remote)
	h := dial(t, "ledger", dialOpts)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- datasource.NewPipeline(s, []datasource.RuntimeHost{h}).Run(ctx) }()

	// the unbuffered emit returns once the server is streaming
	require.NoError(t, remote.Emit(ctx, store.Created("", account("a1"), store.Entity{"owner": "ada"})))
	gs.Stop()

	select {
	case err := <-done:
		require.ErrorContains(t, err, `data source "ledger"`)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline kept running after the stream broke")
	}
	require.Error(t, h.Err())
}

func TestUnknownSource(t *testing.T) {
	h := dial(t, "nobody", serve(t, datasource.NewChannelHost("ledger", 0)))
	evs, err := h.Events(context.Background())
	if err != nil {
		return
	}
	// the server's refusal may surface as an immediately closed stream
	select {
	case _, ok := <-evs:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open")
	}
}

func TestCancelClosesStream(t *testing.T) {
	remote := datasource.NewChannelHost("ledger", 0)
	defer remote.Close()
	h := dial(t, "ledger", serve(t, remote))

	ctx, cancel := context.WithCancel(context.Background())
	evs, err := h.Events(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-evs:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open")
	}
}

func TestClosedHost(t *testing.T) {
	h := dial(t, "ledger", serve(t))
	require.NoError(t, h.Close())
	_, err := h.Events(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
