package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	config "github.com/hanpama/livegraph/internal/config"
	datasource "github.com/hanpama/livegraph/internal/datasource"
	store "github.com/hanpama/livegraph/internal/store"
	sqlite "github.com/hanpama/livegraph/internal/store/sqlite"
)

const testSchema = `
type Account @entity {
  id: ID!
  owner: String!
  balance: Int
}

type Query {
  account(id: ID!): Account
  accounts(first: Int): [Account!]!
}
`

const testEvents = `
events:
  - kind: created
    type: Account
    id: a1
    entity: {owner: ada, balance: 10}
  - kind: created
    type: Account
    id: a2
    entity: {balance: 1}
  - kind: changed
    type: Account
    id: a1
    entity: {balance: 12}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestPrintSchema(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schema.graphql", testSchema)

	out, _, err := execute(t, "print-schema", path)
	require.NoError(t, err)
	require.Contains(t, out, "type Account")
	require.NotContains(t, out, "__schema")

	out, _, err = execute(t, "print-schema", "--introspection", path)
	require.NoError(t, err)
	require.Contains(t, out, "__schema: __Schema!")

	outFile := filepath.Join(dir, "out.graphql")
	_, _, err = execute(t, "print-schema", "-o", outFile, path)
	require.NoError(t, err)
	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(b), "type Query")

	bad := writeFile(t, dir, "bad.graphql", `type Account @entity { owner: String }`)
	_, _, err = execute(t, "print-schema", bad)
	require.ErrorContains(t, err, "build schema")
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.graphql", testSchema)
	eventsPath := writeFile(t, dir, "ledger.yaml", testEvents)
	db := filepath.Join(dir, "livegraph.db")

	out, errOut, err := execute(t, "apply", "--schema", schemaPath, "--db", db, eventsPath)
	require.NoError(t, err)
	require.Equal(t, "applied 2 events, rejected 1\n", out)
	require.Contains(t, errOut, "rejected EntityCreated Account:a2 from ledger")

	b, err := sqlite.Open(db)
	require.NoError(t, err)
	defer b.Close()
	e, err := b.Get(context.Background(), store.Key{Type: "Account", ID: "a1"})
	require.NoError(t, err)
	require.Equal(t, "ada", e["owner"])
}

func TestApplyRequiresFlags(t *testing.T) {
	_, _, err := execute(t, "apply", "events.yaml")
	require.ErrorContains(t, err, "required flag")
}

func TestServeConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "livegraph.yaml", `
schema: from-file.graphql
server:
  addr: :7000
  pretty: true
log:
  level: warn
`)

	cmd := newServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--addr", ":7001", "--db", "x.db"}))
	opts := &serveOptions{
		ConfigPath: cfgPath,
		Addr:       ":7001",
		DB:         "x.db",
	}
	cfg, err := serveConfig(cmd, opts)
	require.NoError(t, err)
	require.Equal(t, "from-file.graphql", cfg.Schema)
	require.Equal(t, ":7001", cfg.Server.Addr)
	require.True(t, cfg.Server.Pretty)
	require.Equal(t, config.Store{Backend: config.BackendSQLite, Path: "x.db"}, cfg.Store)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestServeConfigRequiresSchema(t *testing.T) {
	cmd := newServeCommand()
	_, err := serveConfig(cmd, &serveOptions{})
	require.ErrorContains(t, err, "schema is required")
}

// startServe runs the server in the background and returns its base URL.
func startServe(t *testing.T, cfg config.Config) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, &serveOptions{listening: func(a net.Addr) { addrs <- a }})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop")
		}
	})
	select {
	case a := <-addrs:
		return "http://" + a.String() + "/graphql"
	case err := <-done:
		t.Fatalf("serve exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}
	return ""
}

func query(t *testing.T, url, q string) string {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(fmt.Sprintf(`{"query":%q}`, q)))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestServeWithFileDataSource(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Schema = writeFile(t, dir, "schema.graphql", testSchema)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.DataSources = []datasource.Definition{
		{ID: "ledger", Kind: "file", Location: writeFile(t, dir, "ledger.yaml", testEvents)},
	}
	url := startServe(t, cfg)

	require.Eventually(t, func() bool {
		return strings.Contains(query(t, url, `{ account(id: "a1") { balance } }`), `"balance":12`)
	}, 5*time.Second, 20*time.Millisecond)

	require.JSONEq(t,
		`{"data":{"accounts":[{"id":"a1","owner":"ada"}]}}`,
		query(t, url, `{ accounts { id owner } }`))
	require.Contains(t, query(t, url, `{ __schema { queryType { name } } }`), `"Query"`)
}

func TestServeHostFeedsServer(t *testing.T) {
	dir := t.TempDir()
	eventsPath := writeFile(t, dir, "ledger.yaml", testEvents)

	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	cmd := newServeHostCommand()
	cmd.SetContext(ctx)
	go func() {
		done <- runServeHost(cmd, &serveHostOptions{
			Listen:    "127.0.0.1:0",
			ID:        "ledger",
			LogLevel:  "error",
			listening: func(a net.Addr) { addrs <- a },
		}, eventsPath)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	var hostAddr net.Addr
	select {
	case hostAddr = <-addrs:
	case err := <-done:
		t.Fatalf("serve-host exited: %v", err)
	}

	cfg := config.Default()
	cfg.Schema = writeFile(t, dir, "schema.graphql", testSchema)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.DataSources = []datasource.Definition{
		{ID: "ledger", Kind: "grpc", Location: hostAddr.String()},
	}
	url := startServe(t, cfg)

	require.Eventually(t, func() bool {
		return strings.Contains(query(t, url, `{ account(id: "a1") { balance } }`), `"balance":12`)
	}, 5*time.Second, 20*time.Millisecond)
}
