package executor

import (
	"context"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// ExecutionContext holds everything one request, or one subscription for its
// lifetime, needs to execute: the document, the selected operation, coerced
// variables and the cancellation signal. It is not mutated after
// construction, so the document may be shared between requests.
type ExecutionContext struct {
	ctx       context.Context
	schema    *schema.Schema
	document  *language.QueryDocument
	operation *language.OperationDefinition
	rootType  *schema.Type
	variables map[string]any
}

// NewExecutionContext selects the operation, rejects fragment cycles and
// spreads of undefined fragments, and coerces variables. Every returned error
// is fatal for the request.
func NewExecutionContext(
	ctx context.Context,
	sch *schema.Schema,
	document *language.QueryDocument,
	operationName string,
	variables map[string]any,
) (*ExecutionContext, error) {
	operation, err := language.SelectOperation(document, operationName)
	if err != nil {
		return nil, err
	}

	cycle, err := language.FragmentCycle(document, operation)
	if err != nil {
		return nil, err
	}
	if cycle != nil {
		return nil, &CycleDetectedError{Path: cycle}
	}

	rootType := rootTypeFor(sch, operation.Operation)
	if rootType == nil {
		return nil, &RootTypeError{Operation: operation.Operation}
	}

	coerced, err := coerceVariableValues(sch, operation, variables)
	if err != nil {
		return nil, err
	}

	return &ExecutionContext{
		ctx:       ctx,
		schema:    sch,
		document:  document,
		operation: operation,
		rootType:  rootType,
		variables: coerced,
	}, nil
}

func rootTypeFor(sch *schema.Schema, op language.Operation) *schema.Type {
	switch op {
	case language.Query:
		return sch.GetQueryType()
	case language.Mutation:
		return sch.GetMutationType()
	case language.Subscription:
		return sch.GetSubscriptionType()
	}
	return nil
}

func (ec *ExecutionContext) Context() context.Context                 { return ec.ctx }
func (ec *ExecutionContext) Schema() *schema.Schema                   { return ec.schema }
func (ec *ExecutionContext) Document() *language.QueryDocument        { return ec.document }
func (ec *ExecutionContext) Operation() *language.OperationDefinition { return ec.operation }
func (ec *ExecutionContext) RootType() *schema.Type                   { return ec.rootType }
func (ec *ExecutionContext) Variables() map[string]any                { return ec.variables }

// WithContext returns a copy of ec bound to another cancellation signal.
func (ec *ExecutionContext) WithContext(ctx context.Context) *ExecutionContext {
	cp := *ec
	cp.ctx = ctx
	return &cp
}

// Fragment looks up a fragment definition of the document by name.
func (ec *ExecutionContext) Fragment(name string) *language.FragmentDefinition {
	return language.FindFragment(ec.document, name)
}
