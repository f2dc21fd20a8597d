package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/livegraph/internal/executor"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
	storeresolver "github.com/hanpama/livegraph/internal/storeresolver"
	subscription "github.com/hanpama/livegraph/internal/subscription"
)

const liveSDL = `
	type Account @entity { id: ID!, owner: String!, balance: Int }
	type Query { accounts: [Account!]! }
	type Subscription { accounts: [Account!]! }
`

type wsHarness struct {
	store  *store.Store
	server *httptest.Server
}

func newWSHarness(t *testing.T, opts ...Option) *wsHarness {
	t.Helper()
	sch, err := schema.BuildFromSDL(liveSDL)
	require.NoError(t, err)
	s := store.New(sch, store.NewMemoryBackend())
	t.Cleanup(func() { s.Close() })

	exec := executor.NewExecutor(storeresolver.New(s), sch)
	opts = append([]Option{WithSubscriptions(subscription.NewEngine(exec, s))}, opts...)
	h, err := New(exec, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &wsHarness{store: s, server: srv}
}

func (h *wsHarness) dial(t *testing.T) net.Conn {
	t.Helper()
	dialer := ws.Dialer{
		Timeout:   time.Second,
		Protocols: []string{wsProtocol},
	}
	url := strings.Replace(h.server.URL, "http", "ws", 1)
	conn, _, _, err := dialer.Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	send(t, conn, wsMessage{Type: msgConnectionInit})
	require.Equal(t, msgConnectionAck, receive(t, conn).Type)
	return conn
}

func (h *wsHarness) apply(t *testing.T, ev store.Event) {
	t.Helper()
	require.NoError(t, h.store.Apply(context.Background(), ev))
}

func send(t *testing.T, conn net.Conn, msg wsMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientText(conn, b))
}

// receive returns the next message that is not a keep-alive.
func receive(t *testing.T, conn net.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		b, err := wsutil.ReadServerText(conn)
		require.NoError(t, err)
		var msg wsMessage
		require.NoError(t, json.Unmarshal(b, &msg))
		if msg.Type != msgConnectionKeepAlive {
			return msg
		}
	}
}

func start(t *testing.T, conn net.Conn, id, query string) {
	t.Helper()
	payload, err := json.Marshal(GraphQLRequest{Query: query})
	require.NoError(t, err)
	send(t, conn, wsMessage{ID: id, Type: msgStart, Payload: payload})
}

func account(id string) store.Key { return store.Key{Type: "Account", ID: id} }

func TestWebSocketSubscription(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t)

	start(t, conn, "1", `subscription { accounts { id balance } }`)
	msg := receive(t, conn)
	require.Equal(t, msgData, msg.Type)
	require.Equal(t, "1", msg.ID)
	require.JSONEq(t, `{"data":{"accounts":[]}}`, string(msg.Payload))

	h.apply(t, store.Created("test", account("a1"), store.Entity{"owner": "ada", "balance": 3}))
	msg = receive(t, conn)
	require.Equal(t, msgData, msg.Type)
	require.JSONEq(t, `{"data":{"accounts":[{"id":"a1","balance":3}]}}`, string(msg.Payload))

	h.apply(t, store.Changed("test", account("a1"), store.Entity{"balance": 4}))
	msg = receive(t, conn)
	require.JSONEq(t, `{"data":{"accounts":[{"id":"a1","balance":4}]}}`, string(msg.Payload))

	send(t, conn, wsMessage{ID: "1", Type: msgStop})
	msg = receive(t, conn)
	require.Equal(t, msgComplete, msg.Type)
	require.Equal(t, "1", msg.ID)
}

func TestWebSocketQuery(t *testing.T) {
	h := newWSHarness(t)
	h.apply(t, store.Created("test", account("a1"), store.Entity{"owner": "ada"}))
	conn := h.dial(t)

	start(t, conn, "q", `{ accounts { owner } }`)
	msg := receive(t, conn)
	require.Equal(t, msgData, msg.Type)
	require.JSONEq(t, `{"data":{"accounts":[{"owner":"ada"}]}}`, string(msg.Payload))
	require.Equal(t, msgComplete, receive(t, conn).Type)
}

func TestWebSocketErrors(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t)

	start(t, conn, "1", `subscription { accounts { id }`)
	msg := receive(t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Equal(t, "1", msg.ID)

	start(t, conn, "2", `subscription A { accounts { id } } subscription B { accounts { id } }`)
	msg = receive(t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Contains(t, string(msg.Payload), "OPERATION_NAME_REQUIRED")

	send(t, conn, wsMessage{ID: "3", Type: "bogus"})
	require.Equal(t, msgError, receive(t, conn).Type)
}

func TestWebSocketDuplicateID(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t)

	start(t, conn, "1", `subscription { accounts { id } }`)
	require.Equal(t, msgData, receive(t, conn).Type)
	start(t, conn, "1", `subscription { accounts { id } }`)
	msg := receive(t, conn)
	require.Equal(t, msgError, msg.Type)
	require.Contains(t, string(msg.Payload), "already running")
}

func TestWebSocketKeepAlive(t *testing.T) {
	h := newWSHarness(t, WithKeepAlive(20*time.Millisecond))
	dialer := ws.Dialer{Timeout: time.Second, Protocols: []string{wsProtocol}}
	conn, _, _, err := dialer.Dial(context.Background(), strings.Replace(h.server.URL, "http", "ws", 1))
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, wsMessage{Type: msgConnectionInit})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var types []string
	for len(types) < 3 {
		b, err := wsutil.ReadServerText(conn)
		require.NoError(t, err)
		var msg wsMessage
		require.NoError(t, json.Unmarshal(b, &msg))
		types = append(types, msg.Type)
	}
	require.Equal(t, []string{msgConnectionAck, msgConnectionKeepAlive, msgConnectionKeepAlive}, types)
}

func TestWebSocketDisabled(t *testing.T) {
	sch, err := schema.BuildFromSDL(liveSDL)
	require.NoError(t, err)
	s := store.New(sch, store.NewMemoryBackend())
	defer s.Close()
	h, err := New(executor.NewExecutor(storeresolver.New(s), sch))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	dialer := ws.Dialer{Timeout: time.Second, Protocols: []string{wsProtocol}}
	_, _, _, err = dialer.Dial(context.Background(), strings.Replace(srv.URL, "http", "ws", 1))
	require.Error(t, err)
}
