// Package executor implements a depth-first GraphQL executor that resolves
// fields through a pluggable Resolver.
//
// # Preparation
//
// NewExecutionContext does all the work that can fail before any field is
// resolved:
//  1. Selects the operation: by name when one is supplied, otherwise the only
//     operation of the document.
//  2. Walks every fragment spread reachable from the operation and rejects
//     fragments that spread themselves, directly or transitively, as well as
//     spreads of undefined fragments.
//  3. Coerces variables against the operation's variable definitions.
//
// Failures here are fatal: the result carries no data and a single error with
// an extensions.code (see ErrorCode).
//
// # Execution
//
// Fields are executed depth-first in selection order, on the caller's
// goroutine. For every object:
//
//   - The selection set is flattened. A field is dropped when @skip applies or
//     @include does not; skip wins. Fragment spreads and inline fragments are
//     inlined when their type condition applies to the object's runtime type,
//     interfaces and unions included. Fields sharing a response key are merged.
//   - Arguments are coerced, with variables substituted. A coercion failure is
//     a field error and the resolver is not called.
//   - Resolver.ResolveField produces the raw value, which is then completed:
//     leaves are serialized according to the built-in scalar and enum rules,
//     lists element by element, objects by recursing with the same resolver,
//     and interface or union values after their runtime type is determined
//     (Typed, else Resolver.ResolveType).
//
// # Errors and null propagation
//
// A field error is recorded with its response path and does not stop sibling
// fields. When a non-null position produces null, the parent becomes null,
// repeating up to the nearest nullable ancestor; a non-null root field makes
// data itself null.
//
// The request context is checked before every field resolution. Once it is
// canceled or past its deadline execution stops and the result is fatal with
// ErrCanceled, without partial data.
//
// Response objects are Object values whose JSON encoding keeps selection
// order.
package executor
