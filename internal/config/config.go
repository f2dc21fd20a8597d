// Package config loads the livegraph configuration file.
//
//	schema: ./schema.graphql
//	server:
//	  addr: :8080
//	  timeout: 10s
//	  cors: ["*"]
//	store:
//	  backend: sqlite
//	  path: ./livegraph.db
//	log:
//	  level: info
//	dataSources:
//	  - id: ledger
//	    kind: grpc
//	    location: localhost:9090
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	datasource "github.com/hanpama/livegraph/internal/datasource"
	logging "github.com/hanpama/livegraph/internal/logging"
)

type Config struct {
	// Schema is the path of the SDL file.
	Schema      string                  `yaml:"schema"`
	Server      Server                  `yaml:"server"`
	Store       Store                   `yaml:"store"`
	Log         logging.Config          `yaml:"log"`
	Otel        Otel                    `yaml:"otel"`
	DataSources []datasource.Definition `yaml:"dataSources"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	Timeout           time.Duration `yaml:"timeout"`
	Pretty            bool          `yaml:"pretty"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	Introspection     bool          `yaml:"introspection"`
	GraphiQL          bool          `yaml:"graphiql"`
	CORS              []string      `yaml:"cors"`
	KeepAlive         time.Duration `yaml:"keepAlive"`
	DocumentCacheSize int           `yaml:"documentCacheSize"`
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Store struct {
	Backend string `yaml:"backend"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			Timeout:           10 * time.Second,
			Introspection:     true,
			GraphiQL:          true,
			KeepAlive:         10 * time.Second,
			DocumentCacheSize: 256,
		},
		Store: Store{Backend: BackendMemory},
		Log:   logging.Config{Level: "info"},
		Otel:  Otel{Service: "livegraph"},
	}
}

// Load reads the file at path over Default and validates the result. Unknown
// keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem of c at once.
func (c Config) Validate() error {
	var errs []error
	if c.Schema == "" {
		errs = append(errs, errors.New("schema is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Timeout < 0 || c.Server.KeepAlive < 0 {
		errs = append(errs, errors.New("server durations must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 || c.Server.DocumentCacheSize < 0 {
		errs = append(errs, errors.New("server sizes must not be negative"))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	seen := map[string]bool{}
	for i, ds := range c.DataSources {
		switch {
		case ds.ID == "":
			errs = append(errs, fmt.Errorf("dataSources[%d].id is required", i))
		case seen[ds.ID]:
			errs = append(errs, fmt.Errorf("duplicate data source %q", ds.ID))
		}
		seen[ds.ID] = true
		if ds.Kind == "" {
			errs = append(errs, fmt.Errorf("dataSources[%d].kind is required", i))
		}
	}
	return errors.Join(errs...)
}
