package main

import (
	"fmt"
	"io"
	"os"

	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	config "github.com/hanpama/livegraph/internal/config"
	datasource "github.com/hanpama/livegraph/internal/datasource"
	hostrpc "github.com/hanpama/livegraph/internal/hostrpc"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
	sqlite "github.com/hanpama/livegraph/internal/store/sqlite"
)

func loadSchema(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	sch, err := schema.BuildFromSources(&ast.Source{Name: path, Input: string(data)})
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

func openStore(sch *schema.Schema, cfg config.Store, logger *zap.Logger) (*store.Store, error) {
	var backend store.Backend
	switch cfg.Backend {
	case config.BackendSQLite:
		b, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		backend = b
	default:
		backend = store.NewMemoryBackend()
	}
	return store.New(sch, backend, store.WithLogger(logger)), nil
}

func builders(logger *zap.Logger) datasource.Builders {
	return datasource.Builders{
		"file": datasource.FileBuilder(logger),
		"grpc": hostrpc.Builder(hostrpc.WithLogger(logger)),
	}
}

func closeHosts(hosts []datasource.RuntimeHost, logger *zap.Logger) {
	for _, h := range hosts {
		c, ok := h.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Warn("close data source", zap.String("source", h.Definition().ID), zap.Error(err))
		}
	}
}
