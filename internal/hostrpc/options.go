package hostrpc

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Options configures a remote Host.
//
// Defaults:
// - RPCTimeout:  3s (rejection reports only; event streams run until closed)
// - DialOptions: insecure credentials
// - Logger:      no-op
//
// All options are safe to leave zero-valued to use defaults.
type Options struct {
	RPCTimeout  time.Duration
	DialOptions []grpc.DialOption
	Logger      *zap.Logger
}

// Option mutates Options
//
// Use WithX helpers below.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		RPCTimeout: 3 * time.Second,
	}
}

func WithRPCTimeout(d time.Duration) Option { return func(o *Options) { o.RPCTimeout = d } }
func WithLogger(l *zap.Logger) Option       { return func(o *Options) { o.Logger = l } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
