package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	executor "github.com/hanpama/livegraph/internal/executor"
	language "github.com/hanpama/livegraph/internal/language"
	reqid "github.com/hanpama/livegraph/internal/reqid"
	subscription "github.com/hanpama/livegraph/internal/subscription"
)

const wsProtocol = "graphql-ws"

// graphql-ws message types.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionKeepAlive = "ka"
	msgConnectionTerminate = "connection_terminate"
	msgStart               = "start"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.subs == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, &language.Error{Message: "subscriptions are not enabled"}), h.opt.Pretty)
		return
	}
	upgrader := ws.HTTPUpgrader{
		Timeout:  10 * time.Second,
		Protocol: func(p string) bool { return p == wsProtocol },
	}
	conn, _, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		h.opt.Logger.Debug("Handler.serveWebSocket upgrade", zap.Error(err))
		return
	}

	// Upgraded connections outlive the request; only the request's values
	// are kept.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &wsConn{
		handler: h,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		ops:     map[string]context.CancelFunc{},
	}
	c.serve()
}

// wsConn is one graphql-ws connection. Writes come from the read loop, the
// keep-alive ticker and one goroutine per running operation, so they are
// serialized by wmu. mu guards the operation table.
type wsConn struct {
	handler *Handler
	conn    net.Conn
	ctx     context.Context
	cancel  context.CancelFunc

	wmu sync.Mutex
	mu  sync.Mutex
	ops map[string]context.CancelFunc
	wg  sync.WaitGroup
}

func (c *wsConn) serve() {
	logger := c.handler.opt.Logger
	defer func() {
		c.cancel()
		c.wg.Wait()
		_ = c.conn.Close()
	}()

	for {
		data, err := wsutil.ReadClientText(c.conn)
		if err != nil {
			var closed wsutil.ClosedError
			if !errors.As(err, &closed) && c.ctx.Err() == nil {
				logger.Debug("Handler.serveWebSocket read", zap.Error(err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.write(wsMessage{Type: msgConnectionError, Payload: errorPayload("invalid message")})
			continue
		}

		switch msg.Type {
		case msgConnectionInit:
			c.write(wsMessage{Type: msgConnectionAck})
			if ka := c.handler.opt.KeepAlive; ka > 0 {
				c.write(wsMessage{Type: msgConnectionKeepAlive})
				c.wg.Add(1)
				go c.keepAlive(ka)
			}
		case msgStart:
			c.start(msg)
		case msgStop:
			c.stop(msg.ID)
		case msgConnectionTerminate:
			return
		default:
			logger.Debug("Handler.serveWebSocket unknown message", zap.String("type", msg.Type))
			c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("unknown message type " + msg.Type)})
		}
	}
}

func (c *wsConn) keepAlive(interval time.Duration) {
	defer c.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if err := c.write(wsMessage{Type: msgConnectionKeepAlive}); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) start(msg wsMessage) {
	if msg.ID == "" {
		c.write(wsMessage{Type: msgError, Payload: errorPayload("missing operation id")})
		return
	}
	var req GraphQLRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("invalid start payload")})
		return
	}

	c.mu.Lock()
	_, running := c.ops[msg.ID]
	c.mu.Unlock()
	if running {
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("operation id " + msg.ID + " is already running")})
		return
	}

	doc, err := c.handler.docs.parse(req.Query)
	if err != nil {
		var ge *language.Error
		if !errors.As(err, &ge) {
			ge = &language.Error{Message: err.Error()}
		}
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: mustJSON(errorResponse(nil, ge).Errors)})
		return
	}

	ctx, _ := reqid.NewContext(c.ctx)
	ctx, cancel := context.WithCancel(ctx)
	ec, err := executor.NewExecutionContext(ctx, c.handler.exec.Schema(), doc, req.OperationName, req.Variables)
	if err != nil {
		cancel()
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: mustJSON(toSpecResult(executor.FatalResult(err)).Errors)})
		return
	}

	c.mu.Lock()
	c.ops[msg.ID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	if ec.Operation().Operation != language.Subscription {
		go c.runOnce(msg.ID, req, ec)
		return
	}
	sub, err := c.handler.subs.Subscribe(ec)
	if err != nil {
		c.wg.Done()
		c.finish(msg.ID)
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(err.Error())})
		return
	}
	go c.forward(msg.ID, sub)
}

// runOnce serves queries and mutations sent over the socket: one data
// message followed by complete.
func (c *wsConn) runOnce(id string, req GraphQLRequest, ec *executor.ExecutionContext) {
	defer c.wg.Done()
	defer c.finish(id)

	opType := string(ec.Operation().Operation)
	start := time.Now()
	eventbus.Publish(ec.Context(), events.OperationStart{Transport: events.TransportWebSocket, Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	res := c.handler.exec.Execute(ec)
	errs := make([]error, len(res.Errors))
	for i := range res.Errors {
		errs[i] = res.Errors[i]
	}
	eventbus.Publish(ec.Context(), events.OperationFinish{
		Transport:     events.TransportWebSocket,
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	if ec.Context().Err() != nil {
		return
	}
	c.write(wsMessage{ID: id, Type: msgData, Payload: mustJSON(toSpecResult(res))})
	c.write(wsMessage{ID: id, Type: msgComplete})
}

func (c *wsConn) forward(id string, sub *subscription.Subscription) {
	defer c.wg.Done()
	defer c.finish(id)
	defer sub.Unsubscribe()

	for res := range sub.Results() {
		if err := c.write(wsMessage{ID: id, Type: msgData, Payload: mustJSON(toSpecResult(res))}); err != nil {
			return
		}
	}
	if c.ctx.Err() == nil {
		c.write(wsMessage{ID: id, Type: msgComplete})
	}
}

func (c *wsConn) stop(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsConn) finish(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

var errConnClosed = errors.New("connection closed")

func (c *wsConn) write(msg wsMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.ctx.Err() != nil {
		return errConnClosed
	}
	return wsutil.WriteServerText(c.conn, b)
}

func errorPayload(message string) json.RawMessage {
	return mustJSON(map[string]any{"message": message})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"message":"` + strings.ReplaceAll(err.Error(), `"`, `'`) + `"}`)
	}
	return b
}
