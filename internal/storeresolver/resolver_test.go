package storeresolver_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/livegraph/internal/executor"
	introspection "github.com/hanpama/livegraph/internal/introspection"
	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
	store "github.com/hanpama/livegraph/internal/store"
	storeresolver "github.com/hanpama/livegraph/internal/storeresolver"
)

const ledgerSDL = `
	enum OrderDirection { asc desc }

	interface Node { id: ID! }

	type Account implements Node @entity {
		id: ID!
		owner: String!
		balance: Int
		best: Account
		friends: [Account!]
		transfers(where: TransferFilter, orderBy: String, orderDirection: OrderDirection, first: Int, skip: Int): [Transfer!]! @derivedFrom(field: "from")
		latest: Transfer @derivedFrom(field: "from")
	}

	type Transfer implements Node @entity {
		id: ID!
		from: Account!
		amount: Float!
	}

	input AccountFilter { owner: String, owner_in: [String!], balance_gt: Int }
	input TransferFilter { amount_gt: Float }

	type Query {
		account(id: ID!): Account
		accounts(where: AccountFilter, orderBy: String, orderDirection: OrderDirection, first: Int, skip: Int): [Account!]!
		node(id: ID!): Node
		nodes(first: Int, skip: Int): [Node!]!
		version: String
	}

	type Mutation { noop: Boolean }
`

type fixture struct {
	store *store.Store
	exec  *executor.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sch, err := schema.BuildFromSDL(ledgerSDL)
	require.NoError(t, err)
	s := store.New(sch, store.NewMemoryBackend())
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, ev := range []store.Event{
		store.Created("bank", store.Key{Type: "Account", ID: "a1"}, store.Entity{"owner": "ada", "balance": 30, "best": "a2", "friends": []any{"a2", "gone", "a3"}}),
		store.Created("bank", store.Key{Type: "Account", ID: "a2"}, store.Entity{"owner": "bob", "balance": 10}),
		store.Created("bank", store.Key{Type: "Account", ID: "a3"}, store.Entity{"owner": "cyd", "balance": 20, "best": "gone"}),
		store.Created("bank", store.Key{Type: "Transfer", ID: "t1"}, store.Entity{"from": "a1", "amount": 5}),
		store.Created("bank", store.Key{Type: "Transfer", ID: "t2"}, store.Entity{"from": "a1", "amount": 1.5}),
		store.Created("bank", store.Key{Type: "Transfer", ID: "t3"}, store.Entity{"from": "a2", "amount": 7}),
	} {
		require.NoError(t, s.Apply(ctx, ev))
	}
	return &fixture{store: s, exec: executor.NewExecutor(storeresolver.New(s), sch)}
}

func (f *fixture) run(t *testing.T, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return f.exec.ExecuteRequest(context.Background(), doc, "", vars, nil)
}

func requireJSON(t *testing.T, want string, got any) {
	t.Helper()
	b, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, want, string(b))
}

func TestRootListField(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name  string
		query string
		vars  map[string]any
		want  string
	}{
		{
			name:  "default order by id",
			query: `{ accounts { id owner } }`,
			want:  `{"accounts":[{"id":"a1","owner":"ada"},{"id":"a2","owner":"bob"},{"id":"a3","owner":"cyd"}]}`,
		},
		{
			name:  "where and order",
			query: `{ accounts(where: {balance_gt: 15}, orderBy: "balance", orderDirection: asc) { id balance } }`,
			want:  `{"accounts":[{"id":"a3","balance":20},{"id":"a1","balance":30}]}`,
		},
		{
			name:  "pagination",
			query: `{ accounts(orderBy: "balance", orderDirection: desc, first: 1, skip: 1) { id } }`,
			want:  `{"accounts":[{"id":"a3"}]}`,
		},
		{
			name:  "variables",
			query: `query ($owners: [String!]) { accounts(where: {owner_in: $owners}) { id } }`,
			vars:  map[string]any{"owners": []any{"bob", "cyd"}},
			want:  `{"accounts":[{"id":"a2"},{"id":"a3"}]}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := f.run(t, c.query, c.vars)
			require.Empty(t, res.Errors)
			requireJSON(t, c.want, res.Data)
		})
	}
}

func TestRootSingleField(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{ a: account(id: "a1") { owner } missing: account(id: "zz") { owner } }`, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{"a":{"owner":"ada"},"missing":null}`, res.Data)
}

func TestReferences(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{
		a1: account(id: "a1") { best { owner } friends { id } }
		a3: account(id: "a3") { best { owner } friends { id } }
	}`, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{
		"a1": {"best": {"owner": "bob"}, "friends": [{"id": "a2"}, {"id": "a3"}]},
		"a3": {"best": null, "friends": null}
	}`, res.Data)
}

func TestDerivedFrom(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{
		account(id: "a1") {
			all: transfers(orderBy: "amount") { id amount from { id } }
			big: transfers(where: {amount_gt: 2}) { id }
			latest { id }
		}
		b: account(id: "a3") { transfers { id } latest { id } }
	}`, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{
		"account": {
			"all": [{"id": "t2", "amount": 1.5, "from": {"id": "a1"}}, {"id": "t1", "amount": 5, "from": {"id": "a1"}}],
			"big": [{"id": "t1"}],
			"latest": {"id": "t1"}
		},
		"b": {"transfers": [], "latest": null}
	}`, res.Data)
}

func TestDerivedFromSeesChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Apply(ctx, store.Changed("bank", store.Key{Type: "Transfer", ID: "t3"}, store.Entity{"from": "a1"})))
	require.NoError(t, f.store.Apply(ctx, store.Removed("bank", store.Key{Type: "Transfer", ID: "t1"})))

	res := f.run(t, `{ account(id: "a1") { transfers { id } } }`, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{"account":{"transfers":[{"id":"t2"},{"id":"t3"}]}}`, res.Data)
}

func TestAbstractRootFields(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{
		nodes(first: 3, skip: 1) { __typename id }
		node(id: "t3") { __typename ... on Transfer { amount } }
		none: node(id: "zz") { id }
	}`, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{
		"nodes": [
			{"__typename": "Account", "id": "a2"},
			{"__typename": "Account", "id": "a3"},
			{"__typename": "Transfer", "id": "t1"}
		],
		"node": {"__typename": "Transfer", "amount": 7},
		"none": null
	}`, res.Data)
}

func TestMutationUnsupported(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `mutation { noop }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, storeresolver.ErrMutationUnsupported.Error(), res.Errors[0].Message)
	requireJSON(t, `{"noop":null}`, res.Data)
}

func TestNonEntityRootField(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{ version }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, executor.Path{"version"}, res.Errors[0].Path)
}

func TestPaginationBounds(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{ accounts(first: 5000) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Nil(t, res.Data)

	res = f.run(t, `{ nodes(skip: -1) { id } }`, nil)
	require.Len(t, res.Errors, 1)
}

func TestWithIntrospection(t *testing.T) {
	f := newFixture(t)
	wrapped := introspection.Wrap(storeresolver.New(f.store), f.store.Schema())
	exec := executor.NewExecutor(wrapped.Resolver, wrapped.Schema)

	doc, err := language.ParseQuery(`{ __type(name: "Transfer") { name } accounts(first: 1) { id } }`)
	require.NoError(t, err)
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	requireJSON(t, `{"__type":{"name":"Transfer"},"accounts":[{"id":"a1"}]}`, res.Data)
}
