package executor

import "context"

// Resolver supplies field values and runtime types to the Executor.
//
//   - objectType is the GraphQL type name of the parent object; for root
//     fields it is the root type name and source is the root value (nil unless
//     the caller supplied one).
//   - args holds the coerced argument values, defaults applied.
//   - Returning (nil, nil) produces null. A returned error becomes a field error
//     located at the field's response path.
//
// The Executor calls a Resolver from one goroutine per request but several
// requests may run at once, so implementations must be safe for concurrent use.
type Resolver interface {
	ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error)

	// ResolveType returns the concrete object type of a value whose field is
	// declared with an interface or union type. It is not called for values
	// implementing Typed.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)
}

// Typed is implemented by resolved values that know their object type.
type Typed interface {
	TypeName() string
}
