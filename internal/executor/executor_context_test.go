package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

func twoFieldSchema() *schema.Schema {
	return &schema.Schema{
		QueryType: "Query",
		Types: map[string]*schema.Type{
			"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}, {Name: "b", Type: schema.NamedType("String")}}},
			"String": {Name: "String", Kind: schema.TypeKindScalar},
		},
	}
}

// Pattern: Result comparison
func TestContext_OperationSelection_Result(t *testing.T) {
	resolvers := map[string]MockFunc{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
	}

	t.Run("Inline operation", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, "{ a }"), "", nil, nil)
		wantRes := &ExecutionResult{Data: obj("a", "A")}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Single named operation without name", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, "query Foo { a }"), "", nil, nil)
		wantRes := &ExecutionResult{Data: obj("a", "A")}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Named operation provided", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		doc := mustParseQuery(t, "query A { a } query B { b }")
		gotRes := exec.ExecuteRequest(context.Background(), doc, "B", nil, nil)
		wantRes := &ExecutionResult{Data: obj("b", "B")}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Multiple operations without name", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		doc := mustParseQuery(t, "query A { a } query B { b }")
		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
		wantRes := &ExecutionResult{
			Errors: []GraphQLError{{
				Message:    language.ErrOperationNameRequired.Error(),
				Extensions: map[string]any{"code": CodeOperationNameRequired},
			}},
		}
		require.ErrorIs(t, gotRes.Err, language.ErrOperationNameRequired)
		if diff := cmp.Diff(wantRes, gotRes, cmpopts.IgnoreFields(ExecutionResult{}, "Err")); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Unknown operation name", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		doc := mustParseQuery(t, "query A { a } query B { b }")
		gotRes := exec.ExecuteRequest(context.Background(), doc, "missing", nil, nil)
		var notFound *language.OperationNotFoundError
		require.ErrorAs(t, gotRes.Err, &notFound)
		require.Equal(t, "missing", notFound.Name)
		require.Nil(t, gotRes.Data)
		require.Len(t, gotRes.Errors, 1)
		require.Equal(t, CodeOperationNotFound, gotRes.Errors[0].Extensions["code"])
	})

	t.Run("Missing root type", func(t *testing.T) {
		exec := NewExecutor(NewMockResolver(resolvers), twoFieldSchema())
		gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, "mutation { a }"), "", nil, nil)
		var rootErr *RootTypeError
		require.ErrorAs(t, gotRes.Err, &rootErr)
		require.Equal(t, language.Mutation, rootErr.Operation)
		require.True(t, IsClientError(gotRes.Err))
	})
}

func TestContext_FragmentCycles(t *testing.T) {
	sch := twoFieldSchema()
	cases := []struct {
		name  string
		query string
		path  []string
	}{
		{"direct", `{ ...A } fragment A on Query { a ...A }`, []string{"A", "A"}},
		{"transitive", `{ ...A } fragment A on Query { ...B } fragment B on Query { b ...A }`, []string{"A", "B", "A"}},
		{"inline", `{ ... on Query { ...A } } fragment A on Query { ... { ...A } }`, []string{"A", "A"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rt := NewMockResolver(nil)
			_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, c.query), "", nil)
			var cycle *CycleDetectedError
			require.ErrorAs(t, err, &cycle)
			require.Equal(t, c.path, cycle.Path)
			require.Equal(t, CodeCycleDetected, ErrorCode(err))

			res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, c.query), "", nil, nil)
			require.Nil(t, res.Data)
			require.Empty(t, rt.GetCalls())
		})
	}

	t.Run("unknown fragment", func(t *testing.T) {
		_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, `{ a ...Nope }`), "", nil)
		var unknown *language.UnknownFragmentError
		require.ErrorAs(t, err, &unknown)
		require.Equal(t, CodeUnknownFragment, ErrorCode(err))
	})

	t.Run("repeated spread is not a cycle", func(t *testing.T) {
		_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, `{ ...A ...A } fragment A on Query { a }`), "", nil)
		require.NoError(t, err)
	})
}

func TestContext_Variables(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { count(n: Int): Int }`)

	t.Run("required variable missing", func(t *testing.T) {
		_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, `query ($n: Int!) { count(n: $n) }`), "", nil)
		var varErr *VariableError
		require.ErrorAs(t, err, &varErr)
		require.Equal(t, "n", varErr.Name)
		require.Equal(t, CodeBadVariables, ErrorCode(err))
	})

	t.Run("null for non-null", func(t *testing.T) {
		_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, `query ($n: Int!) { count(n: $n) }`), "", map[string]any{"n": nil})
		require.Error(t, err)
	})

	t.Run("json number coerced", func(t *testing.T) {
		ec := mustExecutionContext(t, sch, `query ($n: Int!) { count(n: $n) }`, map[string]any{"n": float64(3)})
		require.Equal(t, map[string]any{"n": 3}, ec.Variables())
	})

	t.Run("default applied", func(t *testing.T) {
		ec := mustExecutionContext(t, sch, `query ($n: Int = 7) { count(n: $n) }`, nil)
		require.Equal(t, map[string]any{"n": 7}, ec.Variables())
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := NewExecutionContext(context.Background(), sch, mustParseQuery(t, `query ($n: Int) { count(n: $n) }`), "", map[string]any{"n": "42"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "cannot coerce")
	})
}

func TestContext_WithContext(t *testing.T) {
	sch := twoFieldSchema()
	ec := mustExecutionContext(t, sch, `{ a } fragment F on Query { b }`, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bound := ec.WithContext(ctx)

	require.NotSame(t, ec, bound)
	require.Equal(t, ctx, bound.Context())
	require.Equal(t, context.Background(), ec.Context())
	require.Same(t, ec.Document(), bound.Document())
	require.Same(t, ec.Operation(), bound.Operation())
	require.Equal(t, "Query", bound.RootType().Name)
	require.NotNil(t, bound.Fragment("F"))
	require.Nil(t, bound.Fragment("G"))
}

func TestIsClientError(t *testing.T) {
	require.True(t, IsClientError(language.ErrOperationNameRequired))
	require.True(t, IsClientError(&CycleDetectedError{Path: []string{"A", "A"}}))
	require.True(t, IsClientError(&VariableError{Name: "n", Err: errors.New("bad")}))
	require.False(t, IsClientError(canceled(context.Background())))
	require.False(t, IsClientError(errors.New("boom")))
}
