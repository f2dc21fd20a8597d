package executor

import (
	"context"
	"testing"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustBuildSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return s
}

func mustExecutionContext(t *testing.T, sch *schema.Schema, q string, vars map[string]any) *ExecutionContext {
	t.Helper()
	ec, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, q), "", vars)
	if err != nil {
		t.Fatalf("execution context: %v", err)
	}
	return ec
}

// obj builds an Object from alternating keys and values.
func obj(kv ...any) Object {
	o := Object{}
	for i := 0; i < len(kv); i += 2 {
		o = append(o, Entry{Key: kv[i].(string), Value: kv[i+1]})
	}
	return o
}

func newSchemaWithQueryType(query *schema.Type, additional ...*schema.Type) *schema.Schema {
	sch := schema.NewSchema("")
	if query != nil {
		sch.SetQueryType(query.Name)
		sch.AddType(query)
	}
	for _, t := range additional {
		sch.AddType(t)
	}
	return sch
}

func newObjectType(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	for _, field := range fields {
		t.AddField(field)
	}
	return t
}

func newScalarType(name string) *schema.Type {
	return schema.NewType(name, schema.TypeKindScalar, "")
}
