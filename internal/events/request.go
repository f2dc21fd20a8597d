package events

import (
	"net/http"
	"time"
)

// Transports a GraphQL operation can arrive over.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "graphql-ws"
)

// RequestStart is emitted when the handler accepts an HTTP request. The
// context carries the request id; WebSocket upgrades are not reported.
type RequestStart struct {
	Request *http.Request
}

// RequestFinish is emitted once the response has been written.
// Operations counts the operations of a batch, or 1.
type RequestFinish struct {
	Request    *http.Request
	Status     int
	Operations int
	Duration   time.Duration
}

// OperationStart is emitted before a query or mutation executes.
// Subscriptions are reported with SubscriptionStart instead.
type OperationStart struct {
	Transport     string
	Query         string
	OperationName string
	OperationType string
}

type OperationFinish struct {
	Transport     string
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}
