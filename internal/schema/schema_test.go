package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
"""
A token balance holder.
"""
type Account @entity {
  id: ID!
  owner: String!
  balance: Int
  transfers(first: Int = 10): [Transfer!]! @derivedFrom(field: "from")
  legacy: String @deprecated(reason: "use owner")
}

type Transfer @entity {
  id: ID!
  from: Account!
  amount: Int!
  kind: Kind
}

enum Kind {
  MINT
  BURN @deprecated
}

interface Node {
  id: ID!
}

type Token implements Node @entity {
  id: ID!
}

union Item = Account | Transfer

input Range {
  min: Int = 0
  max: Int
}

type Query {
  account(id: ID!): Account
  accounts(where: Range): [Account!]!
  node(id: ID!): Node
  items: [Item!]!
}

type Subscription {
  accounts: [Account!]!
}
`

func mustBuild(t *testing.T, sdl string) *Schema {
	t.Helper()
	s, err := BuildFromSDL(sdl)
	require.NoError(t, err)
	return s
}

func TestBuildFromSDL(t *testing.T) {
	s := mustBuild(t, testSDL)

	require.Equal(t, "Query", s.QueryType)
	require.Equal(t, "", s.MutationType)
	require.Equal(t, "Subscription", s.SubscriptionType)
	require.Nil(t, s.GetMutationType())

	account := s.Types["Account"]
	require.NotNil(t, account)
	require.Equal(t, TypeKindObject, account.Kind)
	require.True(t, account.Entity)
	require.Equal(t, "A token balance holder.", account.Description)

	var names []string
	for _, f := range account.Fields {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"id", "owner", "balance", "transfers", "legacy"}, names); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}

	transfers := account.Field("transfers")
	require.Equal(t, "from", transfers.DerivedFrom)
	require.Equal(t, "[Transfer!]!", transfers.Type.String())
	require.Equal(t, int64(10), transfers.Argument("first").DefaultValue)

	legacy := account.Field("legacy")
	require.True(t, legacy.IsDeprecated)
	require.Equal(t, "use owner", legacy.DeprecationReason)

	kind := s.Types["Kind"]
	require.Equal(t, TypeKindEnum, kind.Kind)
	require.True(t, kind.EnumValue("BURN").IsDeprecated)
	require.False(t, kind.EnumValue("MINT").IsDeprecated)

	require.Equal(t, []string{"Token"}, s.Types["Node"].PossibleTypes)
	require.Equal(t, []string{"Account", "Transfer"}, s.Types["Item"].PossibleTypes)
	require.Equal(t, TypeKindInputObject, s.Types["Range"].Kind)

	require.Same(t, stringType, s.Types["String"])
	require.Same(t, entityDirective, s.Directives["entity"])
	_, hasMeta := s.Types["__Schema"]
	require.False(t, hasMeta)
}

func TestIsEntity(t *testing.T) {
	s := mustBuild(t, testSDL)
	require.True(t, s.IsEntity("Account"))
	require.True(t, s.IsEntity("Token"))
	require.False(t, s.IsEntity("Query"))
	require.False(t, s.IsEntity("Kind"))
	require.False(t, s.IsEntity("Missing"))
	require.ElementsMatch(t, []string{"Account", "Transfer", "Token"}, s.EntityTypes())
}

func TestDoesTypeApply(t *testing.T) {
	s := mustBuild(t, testSDL)
	cases := []struct {
		object, condition string
		want              bool
	}{
		{"Account", "", true},
		{"Account", "Account", true},
		{"Account", "Transfer", false},
		{"Token", "Node", true},
		{"Account", "Node", false},
		{"Account", "Item", true},
		{"Token", "Item", false},
		{"Account", "Missing", false},
	}
	for _, c := range cases {
		t.Run(c.object+" on "+c.condition, func(t *testing.T) {
			require.Equal(t, c.want, s.DoesTypeApply(c.object, c.condition))
		})
	}
}

func TestBuildFromSDLErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":              `type Query {`,
		"unknown type":        `type Query { a: Missing }`,
		"entity without id":   `type A @entity { name: String } type Query { a: A }`,
		"nullable entity id":  `type A @entity { id: ID } type Query { a: A }`,
		"derived from scalar": `type A @entity { id: ID! b: [String!]! @derivedFrom(field: "a") } type Query { a: A }`,
		"derived missing field": `
			type A @entity { id: ID! bs: [B!]! @derivedFrom(field: "owner") }
			type B @entity { id: ID! }
			type Query { a: A }`,
	}
	for name, sdl := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildFromSDL(sdl)
			require.Error(t, err)
		})
	}
}

func TestRender(t *testing.T) {
	s := mustBuild(t, `
type Account @entity {
  id: ID!
  transfers: [Transfer!]! @derivedFrom(field: "from")
}

type Transfer @entity {
  id: ID!
  from: Account!
}

type Query {
  account(id: ID!): Account
}
`)
	want := `type Account @entity {
  id: ID!
  transfers: [Transfer!]! @derivedFrom(field: "from")
}

type Query {
  account(id: ID!): Account
}

type Transfer @entity {
  id: ID!
  from: Account!
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("Rendered schema mismatch (-want +got):\n%s", diff)
	}

	again := mustBuild(t, Render(s))
	if diff := cmp.Diff(Render(s), Render(again)); diff != "" {
		t.Errorf("Render is not stable across a rebuild (-want +got):\n%s", diff)
	}
}

func TestConstructors(t *testing.T) {
	s := NewSchema("").SetQueryType("Query").
		AddType(NewType("Query", TypeKindObject, "").
			AddField(NewField("hello", "", NamedType("String")).
				AddArgument(NewInputValue("name", "", NonNullType(NamedType("String")))))).
		AddType(stringType)

	q := s.GetQueryType()
	require.NotNil(t, q)
	require.Equal(t, "String!", q.Field("hello").Argument("name").Type.String())
	require.Nil(t, q.Field("missing"))
	require.Equal(t, "type Query {\n  hello(name: String!): String\n}\n", Render(s))
}
