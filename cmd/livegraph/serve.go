package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/hanpama/livegraph/internal/config"
	datasource "github.com/hanpama/livegraph/internal/datasource"
	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	executor "github.com/hanpama/livegraph/internal/executor"
	introspection "github.com/hanpama/livegraph/internal/introspection"
	logging "github.com/hanpama/livegraph/internal/logging"
	otel "github.com/hanpama/livegraph/internal/otel"
	server "github.com/hanpama/livegraph/internal/server"
	storeresolver "github.com/hanpama/livegraph/internal/storeresolver"
	subscription "github.com/hanpama/livegraph/internal/subscription"
)

// serveOptions are the serve flags. Set flags override the config file.
type serveOptions struct {
	ConfigPath string
	Schema     string
	Addr       string
	DB         string
	LogLevel   string
	Pretty     bool

	// listening is called with the bound address once the server accepts
	// connections.
	listening func(addr net.Addr)
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL endpoint and the data-source pipeline",
		Long: `Run the GraphQL HTTP endpoint, with graphql-ws subscriptions on the same
path, while the configured data sources feed the entity store.

Example:
  livegraph serve --config livegraph.yaml
  livegraph serve --schema schema.graphql --db ./livegraph.db --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema SDL")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path; selects the sqlite store")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "pretty-print JSON responses")
	return cmd
}

func serveConfig(cmd *cobra.Command, opts *serveOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return config.Config{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.Schema = opts.Schema
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.Addr
	}
	if flags.Changed("db") {
		cfg.Store = config.Store{Backend: config.BackendSQLite, Path: opts.DB}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.LogLevel
	}
	if flags.Changed("pretty") {
		cfg.Server.Pretty = opts.Pretty
	}
	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cfg config.Config, opts *serveOptions) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	sch, err := loadSchema(cfg.Schema)
	if err != nil {
		return err
	}
	st, err := openStore(sch, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var resolver executor.Resolver = storeresolver.New(st, storeresolver.WithLogger(logger))
	execSchema := sch
	// Only wrap with introspection if enabled
	if cfg.Server.Introspection {
		w := introspection.Wrap(resolver, sch)
		resolver, execSchema = w.Resolver, w.Schema
	}
	exec := executor.NewExecutor(resolver, execSchema)
	engine := subscription.NewEngine(exec, st, subscription.WithLogger(logger))

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithDocumentCacheSize(cfg.Server.DocumentCacheSize),
		server.WithKeepAlive(cfg.Server.KeepAlive),
		server.WithSubscriptions(engine),
		server.WithLogger(logger),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORS...))
	}
	h, err := server.New(exec, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	hosts, err := builders(logger).Build(cfg.DataSources)
	if err != nil {
		return err
	}
	defer closeHosts(hosts, logger)
	pipeline := datasource.NewPipeline(st, hosts, datasource.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := pipeline.Run(ctx); err != nil {
			return fmt.Errorf("data sources: %w", err)
		}
		logger.Info("data sources finished")
		return nil
	})
	g.Go(func() error {
		logger.Info("GraphQL server listening", zap.Stringer("addr", lis.Addr()), zap.Int("dataSources", len(hosts)))
		if opts != nil && opts.listening != nil {
			opts.listening(lis.Addr())
		}
		if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
