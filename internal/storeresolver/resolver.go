// Package storeresolver resolves GraphQL fields from the entity store.
//
// Root fields returning an entity type read the store: list fields query it
// with the where, orderBy, orderDirection, first and skip arguments, other
// fields load one entity by the id argument. Fields of an entity read its
// attributes. Attributes referencing other entities hold their ids and are
// followed with point reads; @derivedFrom fields query the entities pointing
// back at the parent.
package storeresolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	executor "github.com/hanpama/livegraph/internal/executor"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
)

// ErrMutationUnsupported is returned for mutation root fields. Entities are
// written by data sources only.
var ErrMutationUnsupported = errors.New("mutations are not supported: entities are written by data sources")

const typenameAttr = "__typename"

// Record is an entity read from the store together with its type.
type Record struct {
	Type   string
	Entity store.Entity
}

func (r *Record) TypeName() string { return r.Type }

// Key returns the store key of the record.
func (r *Record) Key() store.Key { return store.Key{Type: r.Type, ID: r.Entity.ID()} }

// Reader is the part of the store the resolver reads from.
type Reader interface {
	Schema() *schema.Schema
	Get(ctx context.Context, key store.Key) (store.Entity, error)
	Find(ctx context.Context, q store.Query) ([]store.Entity, error)
}

type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// Resolver implements executor.Resolver over a store.
type Resolver struct {
	store  Reader
	schema *schema.Schema
	logger *zap.Logger
}

var _ executor.Resolver = (*Resolver)(nil)

func New(s Reader, opts ...Option) *Resolver {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Resolver{store: s, schema: s.Schema(), logger: o.Logger}
}

func (r *Resolver) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	typ := r.schema.Types[objectType]
	if typ == nil {
		return nil, fmt.Errorf("unknown type %s", objectType)
	}
	f := typ.Field(field)
	if f == nil {
		return nil, fmt.Errorf("no field %s.%s", objectType, field)
	}

	switch objectType {
	case r.schema.MutationType:
		return nil, ErrMutationUnsupported
	case r.schema.QueryType, r.schema.SubscriptionType:
		if r.isEntityTyped(f.Type) {
			return r.resolveRoot(ctx, f, args)
		}
	}

	switch src := source.(type) {
	case *Record:
		return r.resolveAttribute(ctx, src, f, args)
	case map[string]any:
		return src[field], nil
	case nil:
		return nil, fmt.Errorf("no resolver for field %s.%s", objectType, field)
	}
	return nil, fmt.Errorf("cannot resolve %s.%s on %T", objectType, field, source)
}

func (r *Resolver) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	switch v := value.(type) {
	case *Record:
		return v.Type, nil
	case map[string]any:
		if name, ok := v[typenameAttr].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot determine the %s type of %T", abstractType, value)
}

func (r *Resolver) resolveRoot(ctx context.Context, f *schema.Field, args map[string]any) (any, error) {
	named := f.Type.GetNamedType()
	if !schema.IsList(unwrapNonNull(f.Type)) {
		id, ok := args["id"]
		if !ok || id == nil {
			return nil, fmt.Errorf("%s needs an id argument", f.Name)
		}
		return orNull(r.load(ctx, named, fmt.Sprint(id)))
	}
	q, err := r.queryFromArgs(named, args)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Resolver.find",
		zap.String("field", f.Name),
		zap.String("type", named),
		zap.Int("filters", len(q.Where)))
	return r.find(ctx, named, q)
}

func (r *Resolver) resolveAttribute(ctx context.Context, parent *Record, f *schema.Field, args map[string]any) (any, error) {
	if f.DerivedFrom != "" {
		return r.resolveDerived(ctx, parent, f, args)
	}
	value := parent.Entity[f.Name]
	if value == nil || !r.isEntityTyped(f.Type) {
		return value, nil
	}

	named := f.Type.GetNamedType()
	if !schema.IsList(unwrapNonNull(f.Type)) {
		return orNull(r.load(ctx, named, fmt.Sprint(value)))
	}
	ids, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s holds %T, not a list of ids", parent.Type, f.Name, value)
	}
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		rec, err := r.load(ctx, named, fmt.Sprint(id))
		if err != nil {
			return nil, err
		}
		// dangling references are dropped
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// resolveDerived finds the entities whose f.DerivedFrom attribute points at
// parent, narrowed by the field's own filter and pagination arguments.
func (r *Resolver) resolveDerived(ctx context.Context, parent *Record, f *schema.Field, args map[string]any) (any, error) {
	named := f.Type.GetNamedType()
	q, err := r.queryFromArgs(named, args)
	if err != nil {
		return nil, err
	}

	op := store.OpEq
	if back := r.schema.Types[named].Field(f.DerivedFrom); back != nil && schema.IsList(unwrapNonNull(back.Type)) {
		op = store.OpContains
	}
	q.Where = append(q.Where, store.Filter{Attribute: f.DerivedFrom, Op: op, Value: parent.Entity.ID()})

	found, err := r.find(ctx, named, q)
	if err != nil {
		return nil, err
	}
	if !schema.IsList(unwrapNonNull(f.Type)) {
		if len(found) == 0 {
			return nil, nil
		}
		return found[0], nil
	}
	return found, nil
}

// load reads one entity of typeName, which may be an abstract type
// implemented by entity types. Missing entities resolve to nil.
func (r *Resolver) load(ctx context.Context, typeName, id string) (*Record, error) {
	for _, t := range r.entityTypes(typeName) {
		e, err := r.store.Get(ctx, store.Key{Type: t, ID: id})
		if err != nil {
			return nil, err
		}
		if e != nil {
			return &Record{Type: t, Entity: e}, nil
		}
	}
	return nil, nil
}

// find runs q over typeName. Abstract types are queried per implementing
// entity type and the merged result is ordered and paginated once more.
func (r *Resolver) find(ctx context.Context, typeName string, q store.Query) ([]any, error) {
	types := r.entityTypes(typeName)
	if len(types) == 1 && types[0] == typeName {
		q.Type = typeName
		entities, err := r.store.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		return lo.Map(entities, func(e store.Entity, _ int) any { return &Record{Type: typeName, Entity: e} }), nil
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	var merged []store.Entity
	for _, t := range types {
		perType := q
		perType.Type = t
		perType.Skip = 0
		perType.First = store.MaxFirst
		entities, err := r.store.Find(ctx, perType)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			e[typenameAttr] = t
		}
		merged = append(merged, entities...)
	}
	return lo.Map(q.Select(merged), func(e store.Entity, _ int) any {
		t := e[typenameAttr].(string)
		delete(e, typenameAttr)
		return &Record{Type: t, Entity: e}
	}), nil
}

func (r *Resolver) queryFromArgs(typeName string, args map[string]any) (store.Query, error) {
	q := store.Query{Type: typeName}
	if where, ok := args["where"].(map[string]any); ok {
		filters, err := store.ParseWhere(r.schema.Types[typeName], where)
		if err != nil {
			return q, err
		}
		q.Where = filters
	}
	if orderBy, ok := args["orderBy"].(string); ok {
		q.OrderBy = orderBy
	}
	if dir, ok := args["orderDirection"].(string); ok {
		q.Descending = strings.EqualFold(dir, "desc")
	}
	if first, ok := toInt(args["first"]); ok {
		q.First = first
	}
	if skip, ok := toInt(args["skip"]); ok {
		q.Skip = skip
	}
	return q, nil
}

// entityTypes returns the entity types values of typeName can have.
func (r *Resolver) entityTypes(typeName string) []string {
	t := r.schema.Types[typeName]
	if t == nil {
		return nil
	}
	if t.Entity {
		return []string{typeName}
	}
	if !t.IsAbstract() {
		return nil
	}
	return lo.Filter(t.PossibleTypes, func(name string, _ int) bool { return r.schema.IsEntity(name) })
}

func (r *Resolver) isEntityTyped(t *schema.TypeRef) bool {
	return len(r.entityTypes(t.GetNamedType())) > 0
}

// orNull keeps a missing record from becoming a non-nil interface.
func orNull(rec *Record, err error) (any, error) {
	if rec == nil || err != nil {
		return nil, err
	}
	return rec, nil
}

func unwrapNonNull(t *schema.TypeRef) *schema.TypeRef {
	if schema.IsNonNull(t) {
		return schema.Unwrap(t)
	}
	return t
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
