package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// HostCallStart is emitted before a call to a remote runtime host: the
// long-lived event stream or a rejection report.
type HostCallStart struct {
	Source string // data source id
	Method string
	Target string
}

// HostCallFinish is emitted when the call returns or, for the event stream,
// when the stream ends.
type HostCallFinish struct {
	Source   string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
