package executor

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// coerceVariableValues coerces variable values according to their types
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	if variableValues == nil {
		variableValues = make(map[string]any)
	}
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			if v2, ok2 := variableValues[strings.TrimPrefix(name, "$")]; ok2 {
				val = v2
				ok = true
			}
		}
		if !ok {
			if varDef.DefaultValue != nil {
				val = astValueToGo(varDef.DefaultValue)
			} else if t.NonNull {
				return nil, &VariableError{Name: name, Err: fmt.Errorf("required type %s was not provided", t.String())}
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, &VariableError{Name: name, Err: fmt.Errorf("type %s cannot be null", t.String())}
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(t))
		if err != nil {
			return nil, &VariableError{Name: name, Err: fmt.Errorf("cannot coerce to %s: %w", t.String(), err)}
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces argument values for a field. Any failure is a
// field error; the resolver is not called.
func coerceArgumentValues(
	sch *schema.Schema,
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		var (
			val     any
			present bool
		)
		if v := language.LookupArgument(arguments, name); v != nil {
			val, present = valueFromAST(v, variableValues)
		}
		if !present {
			if argDef.DefaultValue != nil {
				coerced[name] = coerceDefault(sch, argDef)
			} else if schema.IsNonNull(argDef.Type) {
				return nil, fmt.Errorf("argument %q of required type %s was not provided", name, argDef.Type)
			}
			continue
		}
		cv, err := coerceValue(sch, val, argDef.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %q cannot be coerced: %w", name, err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceDefault coerces a schema default value. Defaults were validated when
// the schema was loaded; one that still fails is used unchanged.
func coerceDefault(sch *schema.Schema, def *schema.InputValue) any {
	v, err := coerceValue(sch, def.DefaultValue, def.Type)
	if err != nil {
		return def.DefaultValue
	}
	return v
}

// valueFromAST converts an AST value to a runtime value, substituting
// variables at any depth. present is false for a top-level reference to a
// variable that was not supplied.
func valueFromAST(value *language.Value, variableValues map[string]any) (v any, present bool) {
	if value == nil {
		return nil, false
	}
	switch value.Kind {
	case language.Variable:
		name := strings.TrimPrefix(value.Raw, "$")
		v, ok := variableValues[name]
		return v, ok
	case language.ListValue:
		out := make([]any, 0, len(value.Children))
		for _, c := range value.Children {
			item, _ := valueFromAST(c.Value, variableValues)
			out = append(out, item)
		}
		return out, true
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			if item, ok := valueFromAST(f.Value, variableValues); ok {
				m[f.Name] = item
			}
		}
		return m, true
	default:
		return astValueToGo(value), true
	}
}

// astValueToGo converts an AST value to a Go value
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.NullValue:
		return nil
	case language.EnumValue:
		return value.Raw
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

// coerceValue coerces a value to the specified GraphQL input type
func coerceValue(sch *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	// Handle Non-Null wrapper
	if schema.IsNonNull(targetType) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, schema.Unwrap(targetType))
	}

	// Handle null for nullable types
	if value == nil {
		return nil, nil
	}

	// Handle List wrapper
	if targetType.Kind == schema.TypeRefKindList {
		return coerceListValue(sch, value, targetType)
	}

	namedType := targetType.Named
	switch namedType {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	typ := sch.Types[namedType]
	if typ == nil {
		return nil, fmt.Errorf("unknown type %s", namedType)
	}
	switch typ.Kind {
	case schema.TypeKindEnum:
		name, ok := value.(string)
		if !ok || typ.EnumValue(name) == nil {
			return nil, fmt.Errorf("%v is not a value of enum %s", value, namedType)
		}
		return name, nil
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, typ, value)
	case schema.TypeKindScalar:
		// Custom scalars are passed through as-is
		return value, nil
	}
	return nil, fmt.Errorf("%s is not an input type", namedType)
}

func coerceInputObject(sch *schema.Schema, typ *schema.Type, value any) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for %s, got %T", typ.Name, value)
	}
	for key := range in {
		if typ.InputField(key) == nil {
			return nil, fmt.Errorf("field %q is not defined by %s", key, typ.Name)
		}
	}
	out := make(map[string]any, len(typ.InputFields))
	for _, f := range typ.InputFields {
		v, ok := in[f.Name]
		if !ok {
			if f.DefaultValue != nil {
				out[f.Name] = coerceDefault(sch, f)
			} else if schema.IsNonNull(f.Type) {
				return nil, fmt.Errorf("field %s.%s of required type %s was not provided", typ.Name, f.Name, f.Type)
			}
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", typ.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	if typ.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field of %s must be provided", typ.Name)
	}
	return out, nil
}

// coerceListValue coerces a value to a list
func coerceListValue(sch *schema.Schema, value any, listType *schema.TypeRef) (any, error) {
	innerType := schema.Unwrap(listType)
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		coercedSlice := make([]any, rv.Len())
		for i := range coercedSlice {
			coercedItem, err := coerceValue(sch, rv.Index(i).Interface(), innerType)
			if err != nil {
				return nil, err
			}
			coercedSlice[i] = coercedItem
		}
		return coercedSlice, nil
	}

	// Single value becomes a list of one
	coercedItem, err := coerceValue(sch, value, innerType)
	if err != nil {
		return nil, err
	}
	return []any{coercedItem}, nil
}

// Basic scalar coercion functions
func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			break
		}
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			break
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			break
		}
		return int(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Int", value, value)
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to String", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', 0, 64), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}
