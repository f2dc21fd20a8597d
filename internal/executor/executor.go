package executor

import (
	"context"
	"fmt"
	"reflect"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// executionState holds the state during query execution
type executionState struct {
	ec       *ExecutionContext
	ctx      context.Context
	resolver Resolver
	schema   *schema.Schema
	errors   []GraphQLError
	// fatal aborts the request; no data is returned.
	fatal error
}

type Executor struct {
	resolver Resolver
	schema   *schema.Schema
}

func NewExecutor(resolver Resolver, schema *schema.Schema) *Executor {
	return &Executor{resolver: resolver, schema: schema}
}

// Schema returns the schema the executor completes values against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// ExecuteRequest prepares an execution context and executes it with the
// given root value.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	rootValue any,
) *ExecutionResult {
	ec, err := NewExecutionContext(ctx, e.schema, document, operationName, variableValues)
	if err != nil {
		return FatalResult(err)
	}
	return e.execute(ec, rootValue)
}

// Execute runs the selected operation of ec with a nil root value.
func (e *Executor) Execute(ec *ExecutionContext) *ExecutionResult {
	return e.execute(ec, nil)
}

func (e *Executor) execute(ec *ExecutionContext, rootValue any) *ExecutionResult {
	state := &executionState{
		ec:       ec,
		ctx:      ec.ctx,
		resolver: e.resolver,
		schema:   e.schema,
	}

	data, ok := executeSelectionSet(state, ec.rootType, ec.operation.SelectionSet, rootValue, Path{})
	if state.fatal != nil {
		return FatalResult(state.fatal)
	}
	result := &ExecutionResult{Errors: state.errors}
	if ok {
		result.Data = data
	}
	return result
}

// executeSelectionSet executes the fields of one object depth-first in
// selection order. ok is false when a non-null field produced null, which
// nulls the whole object.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) (Object, bool) {
	groupedFields := collectFields(state.ec, objectType, selectionSet).orderedFields()
	result := make(Object, 0, len(groupedFields))

	for _, collected := range groupedFields {
		fieldPath := appendPath(path, collected.ResponseName)
		value, ok := executeField(state, objectType, objectValue, collected.Fields, fieldPath)
		if state.fatal != nil {
			return nil, false
		}
		if !ok {
			return nil, false
		}
		result = append(result, Entry{Key: collected.ResponseName, Value: value})
	}
	return result, true
}

// executeField resolves and completes one response key. ok is false when the
// value is null in a non-null position.
func executeField(state *executionState, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) (any, bool) {
	field := fields[0]
	if field.Name == "__typename" {
		return objectType.Name, true
	}

	fieldDef := objectType.Field(field.Name)
	if fieldDef == nil {
		state.addError(fmt.Sprintf("Cannot query field %q on type %q", field.Name, objectType.Name), path)
		return nil, true
	}

	if state.ctx.Err() != nil {
		state.fatal = canceled(state.ctx)
		return nil, false
	}

	args, err := coerceArgumentValues(state.schema, fieldDef, field.Arguments, state.ec.variables)
	if err != nil {
		state.addError(err.Error(), path)
		return nil, !schema.IsNonNull(fieldDef.Type)
	}

	resolved, err := state.resolver.ResolveField(state.ctx, objectType.Name, field.Name, objectValue, args)
	if err != nil {
		if state.ctx.Err() != nil {
			state.fatal = canceled(state.ctx)
			return nil, false
		}
		state.addError(err.Error(), path)
		return nil, !schema.IsNonNull(fieldDef.Type)
	}

	return completeValue(state, fieldDef.Type, fields, resolved, path)
}

// completeValue completes a resolved value against its declared type. ok is
// false when null must propagate to the parent; the error explaining it has
// already been recorded.
func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) (any, bool) {
	if schema.IsNonNull(fieldType) {
		completed, ok := completeValue(state, schema.Unwrap(fieldType), fields, result, path)
		if !ok {
			return nil, false
		}
		if completed == nil {
			if !state.hasErrorUnder(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), path)
			}
			return nil, false
		}
		return completed, true
	}

	if isNullish(result) {
		return nil, true
	}

	if fieldType.Kind == schema.TypeRefKindList {
		return completeListValue(state, fieldType, fields, result, path), true
	}

	namedType := fieldType.Named
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", namedType), path)
		return nil, true
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := serializeLeafValue(typeObj, result)
		if err != nil {
			state.addError(err.Error(), path)
			return nil, true
		}
		return serialized, true
	case schema.TypeKindObject:
		return completeObjectValue(state, typeObj, fields, result, path), true
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, typeObj, fields, result, path), true
	default:
		state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), path)
		return nil, true
	}
}

// completeListValue completes every element. A null in a non-null element
// position nulls the list.
func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		v, ok := completeValue(state, inner, fields, item, appendPath(path, i))
		if state.fatal != nil {
			return nil
		}
		if !ok {
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	sub := mergeSelectionSets(fields)
	obj, ok := executeSelectionSet(state, objectType, sub, result, path)
	if !ok {
		return nil
	}
	return obj
}

func completeAbstractValue(state *executionState, abstractType *schema.Type, fields []*language.Field, result any, path Path) any {
	var typeName string
	if typed, ok := result.(Typed); ok {
		typeName = typed.TypeName()
	} else {
		name, err := state.resolver.ResolveType(state.ctx, abstractType.Name, result)
		if err != nil {
			state.addError(err.Error(), path)
			return nil
		}
		typeName = name
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName), path)
		return nil
	}
	if !state.schema.DoesTypeApply(typeName, abstractType.Name) {
		state.addError(fmt.Sprintf("Runtime Object type %s is not a possible type for %s", typeName, abstractType.Name), path)
		return nil
	}
	return completeObjectValue(state, objectType, fields, result, path)
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				result += "."
			}
			result += v
		case int:
			result += fmt.Sprintf("[%d]", v)
		}
	}
	return result
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

func (state *executionState) addError(message string, path Path) {
	state.errors = append(state.errors, GraphQLError{Message: message, Path: path})
}

// hasErrorUnder reports whether an error was recorded at path or below it.
func (state *executionState) hasErrorUnder(path Path) bool {
	for _, err := range state.errors {
		if len(err.Path) < len(path) {
			continue
		}
		if reflect.DeepEqual(err.Path[:len(path)], path) {
			return true
		}
	}
	return false
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
