package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// Pattern: Result comparison
func TestErrors_LocatedPaths_Result(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		sch := &schema.Schema{
			QueryType: "Query",
			Types: map[string]*schema.Type{
				"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}}},
				"String": {Name: "String", Kind: schema.TypeKindScalar},
			},
		}
		rt := NewMockResolver(map[string]MockFunc{
			"Query.a": NewMockErrorResolver(fmt.Errorf("boom")),
		})
		exec := NewExecutor(rt, sch)
		doc := mustParseQuery(t, "{ a }")

		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   obj("a", nil),
			Errors: []GraphQLError{{Message: "boom", Path: Path{"a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		sch := &schema.Schema{
			QueryType: "Query",
			Types: map[string]*schema.Type{
				"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "obj", Type: schema.NamedType("Obj")}}},
				"Obj":    {Name: "Obj", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}}},
				"String": {Name: "String", Kind: schema.TypeKindScalar},
			},
		}
		rt := NewMockResolver(map[string]MockFunc{
			"Query.obj": NewMockValueResolver(map[string]any{}),
			"Obj.a":     NewMockErrorResolver(fmt.Errorf("boom")),
		})
		exec := NewExecutor(rt, sch)
		doc := mustParseQuery(t, "{ obj { a } }")

		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   obj("obj", obj("a", nil)),
			Errors: []GraphQLError{{Message: "boom", Path: Path{"obj", "a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List index in path", func(t *testing.T) {
		sch := &schema.Schema{
			QueryType: "Query",
			Types: map[string]*schema.Type{
				"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "objs", Type: schema.ListType(schema.NamedType("Obj"))}}},
				"Obj":    {Name: "Obj", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}}},
				"String": {Name: "String", Kind: schema.TypeKindScalar},
			},
		}
		rt := NewMockResolver(map[string]MockFunc{
			"Query.objs": NewMockValueResolver([]any{map[string]any{"idx": 0}, map[string]any{"idx": 1}}),
			"Obj.a": func(ctx context.Context, src any, args map[string]any) (any, error) {
				if src.(map[string]any)["idx"].(int) == 1 {
					return nil, fmt.Errorf("boom")
				}
				return "A", nil
			},
		})
		exec := NewExecutor(rt, sch)
		doc := mustParseQuery(t, "{ objs { a } }")

		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   obj("objs", []any{obj("a", "A"), obj("a", nil)}),
			Errors: []GraphQLError{{Message: "boom", Path: Path{"objs", 1, "a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}

// Pattern: Result comparison
func TestErrors_NonNullPropagation_Result(t *testing.T) {
	sch := mustBuildSchema(t, `
		type Query { a: A  req: String!  opt: String  xs: [String!]  ys: [String]! }
		type A { b: String!  c: String  d: D }
		type D { e: E! }
		type E { f: String! }
	`)

	cases := []struct {
		name      string
		query     string
		resolvers map[string]MockFunc
		want      *ExecutionResult
	}{
		{
			name:  "failing non-null child nulls the parent",
			query: "{ a { b c } }",
			resolvers: map[string]MockFunc{
				"Query.a": NewMockValueResolver(map[string]any{}),
				"A.b":     NewMockErrorResolver(fmt.Errorf("boom")),
			},
			want: &ExecutionResult{
				Data:   obj("a", nil),
				Errors: []GraphQLError{{Message: "boom", Path: Path{"a", "b"}}},
			},
		},
		{
			name:  "null non-null child",
			query: "{ a { c b } }",
			resolvers: map[string]MockFunc{
				"Query.a": NewMockValueResolver(map[string]any{"c": "C"}),
			},
			want: &ExecutionResult{
				Data:   obj("a", nil),
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field a.b", Path: Path{"a", "b"}}},
			},
		},
		{
			name:  "bubbles through non-null chain to nearest nullable",
			query: "{ a { c d { e { f } } } }",
			resolvers: map[string]MockFunc{
				"Query.a": NewMockValueResolver(map[string]any{"c": "C", "d": map[string]any{"e": map[string]any{}}}),
			},
			want: &ExecutionResult{
				Data:   obj("a", obj("c", "C", "d", nil)),
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field a.d.e.f", Path: Path{"a", "d", "e", "f"}}},
			},
		},
		{
			name:  "non-null root field nulls data",
			query: "{ opt req }",
			resolvers: map[string]MockFunc{
				"Query.opt": NewMockValueResolver("O"),
				"Query.req": NewMockErrorResolver(fmt.Errorf("boom")),
			},
			want: &ExecutionResult{
				Errors: []GraphQLError{{Message: "boom", Path: Path{"req"}}},
			},
		},
		{
			name:  "null element in non-null item list",
			query: "{ xs opt }",
			resolvers: map[string]MockFunc{
				"Query.xs":  NewMockValueResolver([]any{"a", nil}),
				"Query.opt": NewMockValueResolver("O"),
			},
			want: &ExecutionResult{
				Data:   obj("xs", nil, "opt", "O"),
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field xs[1]", Path: Path{"xs", 1}}},
			},
		},
		{
			name:  "null list in non-null position",
			query: "{ ys }",
			resolvers: map[string]MockFunc{
				"Query.ys": NewMockValueResolver(nil),
			},
			want: &ExecutionResult{
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field ys", Path: Path{"ys"}}},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			exec := NewExecutor(NewMockResolver(c.resolvers), sch)
			gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, c.query), "", nil, nil)
			if diff := cmp.Diff(c.want, gotRes); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrors_SiblingsContinue(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { a: String b: String c: String }`)
	rt := NewMockResolver(map[string]MockFunc{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockErrorResolver(fmt.Errorf("boom")),
		"Query.c": NewMockValueResolver("C"),
	})
	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a b c }"), "", nil, nil)

	wantRes := &ExecutionResult{
		Data:   obj("a", "A", "b", nil, "c", "C"),
		Errors: []GraphQLError{{Message: "boom", Path: Path{"b"}}},
	}
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	if got := len(rt.GetCalls()); got != 3 {
		t.Fatalf("expected 3 resolver calls, got %d", got)
	}
}
