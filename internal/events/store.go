package events

import "time"

// EntityApplied is emitted after the store applied, or failed to write, a
// data-source event.
type EntityApplied struct {
	Source   string
	Kind     string
	Type     string
	ID       string
	Err      error
	Duration time.Duration
}

// EventRejected is emitted when a data-source event fails validation.
type EventRejected struct {
	Source string
	Kind   string
	Type   string
	ID     string
	Err    error
}

// SubscriptionStart is emitted when a live subscription is registered.
type SubscriptionStart struct {
	ID            string
	OperationName string
}

// SubscriptionFinish is emitted when a live subscription ends.
type SubscriptionFinish struct {
	ID            string
	OperationName string
	Emissions     int
	Err           error
	Duration      time.Duration
}
