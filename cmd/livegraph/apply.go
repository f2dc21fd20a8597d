package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	config "github.com/hanpama/livegraph/internal/config"
	datasource "github.com/hanpama/livegraph/internal/datasource"
	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	logging "github.com/hanpama/livegraph/internal/logging"
)

type applyOptions struct {
	Schema   string
	DB       string
	LogLevel string
}

func newApplyCommand() *cobra.Command {
	opts := &applyOptions{}
	cmd := &cobra.Command{
		Use:   "apply <events.yaml>...",
		Short: "Apply event log files to a SQLite store",
		Long: `Apply event log files to a SQLite store. Each file is a data source named
after the file; its events are applied in order and rejected events are
reported without stopping the run.

Example:
  livegraph apply --schema schema.graphql --db ./livegraph.db ledger.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema SDL (required)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "path to the SQLite database (required)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runApply(cmd *cobra.Command, opts *applyOptions, files []string) error {
	logger, err := logging.New(logging.Config{Level: opts.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sch, err := loadSchema(opts.Schema)
	if err != nil {
		return err
	}
	st, err := openStore(sch, config.Store{Backend: config.BackendSQLite, Path: opts.DB}, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	defs := make([]datasource.Definition, len(files))
	for i, f := range files {
		defs[i] = datasource.Definition{
			ID:       strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)),
			Kind:     "file",
			Location: f,
		}
	}
	hosts, err := datasource.Builders{"file": datasource.FileBuilder(logger)}.Build(defs)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	var applied, rejected atomic.Int64
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.EntityApplied) {
		if e.Err == nil {
			applied.Add(1)
		}
	})
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.EventRejected) {
		rejected.Add(1)
		fmt.Fprintf(cmd.ErrOrStderr(), "rejected %s %s:%s from %s: %v\n", e.Kind, e.Type, e.ID, e.Source, e.Err)
	})

	if err := datasource.NewPipeline(st, hosts, datasource.WithLogger(logger)).Run(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d events, rejected %d\n", applied.Load(), rejected.Load())
	return nil
}
