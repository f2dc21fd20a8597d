package main

import (
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	datasource "github.com/hanpama/livegraph/internal/datasource"
	hostrpc "github.com/hanpama/livegraph/internal/hostrpc"
	logging "github.com/hanpama/livegraph/internal/logging"
)

type serveHostOptions struct {
	Listen   string
	ID       string
	Interval string
	LogLevel string

	listening func(addr net.Addr)
}

func newServeHostCommand() *cobra.Command {
	opts := &serveHostOptions{}
	cmd := &cobra.Command{
		Use:   "serve-host <events.yaml>",
		Short: "Serve an event log as a remote runtime host over gRPC",
		Long: `Serve an event log as a remote runtime host. A livegraph server consumes it
through a data source of kind "grpc" whose location is this address.

Example:
  livegraph serve-host --listen :9090 --id ledger --interval 1s ledger.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeHost(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", ":9090", "gRPC listen address")
	cmd.Flags().StringVar(&opts.ID, "id", "", "data source id (required)")
	cmd.Flags().StringVar(&opts.Interval, "interval", "", "delay between events, e.g. 500ms")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runServeHost(cmd *cobra.Command, opts *serveHostOptions, file string) error {
	logger, err := logging.New(logging.Config{Level: opts.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	def := datasource.Definition{ID: opts.ID, Kind: "file", Location: file}
	if opts.Interval != "" {
		def.Options = map[string]string{"interval": opts.Interval}
	}
	h, err := datasource.FileBuilder(logger)(def)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	hostrpc.NewServer(logger, h).Register(gs)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("runtime host listening", zap.Stringer("addr", lis.Addr()), zap.String("source", opts.ID))
		if opts.listening != nil {
			opts.listening(lis.Addr())
		}
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		gs.Stop()
		return nil
	})
	return g.Wait()
}
