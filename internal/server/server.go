package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	executor "github.com/hanpama/livegraph/internal/executor"
	language "github.com/hanpama/livegraph/internal/language"
	reqid "github.com/hanpama/livegraph/internal/reqid"
	subscription "github.com/hanpama/livegraph/internal/subscription"
)

//go:embed graphiql.html
var graphiqlPage []byte

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and writes GraphQL-over-HTTP responses.
// WebSocket upgrades speaking graphql-ws are served when a subscription
// engine is configured.
type Handler struct {
	exec *executor.Executor
	subs *subscription.Engine
	docs *documentCache
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout. It does not apply to WebSocket subscriptions.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// DocumentCacheSize bounds the number of parsed documents kept. 0 disables
	// the cache.
	DocumentCacheSize int

	// KeepAlive is the interval of graphql-ws keep-alive messages.
	KeepAlive time.Duration

	// Subscriptions serves graphql-ws connections. Nil rejects upgrades.
	Subscriptions *subscription.Engine

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithDocumentCacheSize(n int) Option         { return func(o *Options) { o.DocumentCacheSize = n } }
func WithKeepAlive(d time.Duration) Option       { return func(o *Options) { o.KeepAlive = d } }
func WithSubscriptions(e *subscription.Engine) Option { return func(o *Options) { o.Subscriptions = e } }
func WithLogger(l *zap.Logger) Option            { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

// New creates a GraphQL HTTP handler around exec.
func New(exec *executor.Executor, opts ...Option) (*Handler, error) {
	op := Options{
		Timeout:           10 * time.Second,
		GraphiQL:          true,
		DocumentCacheSize: 256,
		KeepAlive:         10 * time.Second,
	}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	docs, err := newDocumentCache(op.DocumentCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{exec: exec, subs: op.Subscriptions, docs: docs, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		h.serveWebSocket(w, r)
		return
	}

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status, operations := http.StatusOK, 0
	start := time.Now()
	eventbus.Publish(ctx, events.RequestStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.RequestFinish{Request: r, Status: status, Operations: operations, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(nil, berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// Batched requests; the response carries the worst status
		operations = len(batch)
		op := make([]any, len(batch))
		for i := range batch {
			res, st := h.executeOne(ctx, batch[i])
			op[i] = res
			status = max(status, st)
		}
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	operations = 1
	res, st := h.executeOne(ctx, req)
	status = st
	writeJSON(w, status, res, h.opt.Pretty)
}

// executeOne runs one request and picks its HTTP status: 400 when the
// request itself is at fault, 500 when execution was canceled or failed
// inside the server, 200 otherwise, field errors included.
func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) (any, int) {
	doc, err := h.docs.parse(req.Query)
	if err != nil {
		var ge *language.Error
		if errors.As(err, &ge) {
			return errorResponse(nil, ge), http.StatusBadRequest
		}
		return errorResponse(nil, &language.Error{Message: err.Error()}), http.StatusBadRequest
	}

	ec, err := executor.NewExecutionContext(ctx, h.exec.Schema(), doc, req.OperationName, req.Variables)
	if err != nil {
		return toSpecResult(executor.FatalResult(err)), http.StatusBadRequest
	}
	opType := string(ec.Operation().Operation)
	if ec.Operation().Operation == language.Subscription {
		return errorResponse(nil, &language.Error{Message: "subscriptions require a graphql-ws WebSocket connection"}), http.StatusBadRequest
	}

	start := time.Now()
	eventbus.Publish(ctx, events.OperationStart{Transport: events.TransportHTTP, Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := h.exec.Execute(ec)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.OperationFinish{
		Transport:     events.TransportHTTP,
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})

	status := http.StatusOK
	if result.Err != nil {
		status = http.StatusInternalServerError
		if executor.IsClientError(result.Err) {
			status = http.StatusBadRequest
		}
		h.opt.Logger.Warn("Handler.execute", zap.String("operation", req.OperationName), zap.Error(result.Err))
	}
	return toSpecResult(result), status
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}

		// Try array (batch)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

func errorResponse(data any, err *language.Error) specResult {
	se := specError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
	}
	return specResult{Data: data, Errors: []specError{se}}
}

func toSpecResult(res *executor.ExecutionResult) specResult {
	out := specResult{Data: res.Data}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]specError, len(res.Errors))
	for i, e := range res.Errors {
		se := specError{Message: e.Message, Extensions: e.Extensions}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				switch v := pe.(type) {
				case string:
					se.Path[j] = v
				case int:
					se.Path[j] = v
				default:
					se.Path[j] = toString(v)
				}
			}
		}
		out.Errors[i] = se
	}
	// data may still be partially present next to errors; it is preserved
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func toString(v any) string { b, _ := json.Marshal(v); return string(b) }

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	parts := strings.Split(accept, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
