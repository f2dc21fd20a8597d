// Package sqlite is a store.Backend persisting entities in a SQLite
// database. Attributes are encoded as protobuf Struct messages, so numbers
// read back as float64; the store normalizes them against the schema.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	store "github.com/hanpama/livegraph/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Backend stores entities in one SQLite table keyed by (type, id).
type Backend struct {
	db *sql.DB
}

var _ store.Backend = (*Backend)(nil)

// Open creates or opens the database at path and applies the schema.
//
// The database runs in WAL mode with a single connection, since SQLite
// allows one writer at a time.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, key store.Key) (store.Entity, error) {
	var blob []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT attributes FROM entities WHERE type = ? AND id = ?`,
		key.Type, key.ID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(blob)
}

func (b *Backend) Put(ctx context.Context, key store.Key, entity store.Entity) error {
	blob, err := encode(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO entities (type, id, attributes, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (type, id) DO UPDATE SET attributes = excluded.attributes, updated_at = excluded.updated_at`,
		key.Type, key.ID, blob, time.Now().UnixNano(),
	)
	return err
}

func (b *Backend) Delete(ctx context.Context, key store.Key) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM entities WHERE type = ? AND id = ?`, key.Type, key.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Scan(ctx context.Context, entityType string) ([]store.Entity, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT attributes FROM entities WHERE type = ? ORDER BY id`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []store.Entity{}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		e, err := decode(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func encode(e store.Entity) ([]byte, error) {
	fields := make(map[string]any, len(e))
	for k, v := range e {
		fields[k] = store.PlainValue(v)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func decode(blob []byte) (store.Entity, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return store.Entity(s.AsMap()), nil
}
