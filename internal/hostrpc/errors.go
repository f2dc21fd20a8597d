package hostrpc

import "errors"

var (
	// ErrUnknownSource is returned by the server for a source it does not host.
	ErrUnknownSource = errors.New("hostrpc: unknown data source")
	// ErrClosed is returned by a Host after Close.
	ErrClosed = errors.New("hostrpc: closed")
)
