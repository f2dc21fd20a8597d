package executor

import (
	"fmt"
	"math"
	"strconv"

	schema "github.com/hanpama/livegraph/internal/schema"
)

// serializeLeafValue turns a resolved scalar or enum value into a JSON-safe
// value. Numbers decoded from JSON or protobuf arrive as float64, so Int and
// ID accept whole floats.
func serializeLeafValue(typ *schema.Type, value any) (any, error) {
	if typ.Kind == schema.TypeKindEnum {
		name, ok := stringish(value)
		if !ok || typ.EnumValue(name) == nil {
			return nil, fmt.Errorf("Enum %q cannot represent value: %v", typ.Name, value)
		}
		return name, nil
	}

	switch typ.Name {
	case "Int":
		if n, ok := wholeNumber(value); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), nil
		}
		return nil, fmt.Errorf("Int cannot represent value: %v", value)
	case "Float":
		if f, ok := floatNumber(value); ok && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f, nil
		}
		return nil, fmt.Errorf("Float cannot represent value: %v", value)
	case "String":
		if s, ok := stringish(value); ok {
			return s, nil
		}
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case int, int32, int64, float64:
			return fmt.Sprint(v), nil
		}
		return nil, fmt.Errorf("String cannot represent value: %v", value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent value: %v", value)
	case "ID":
		if s, ok := stringish(value); ok {
			return s, nil
		}
		if n, ok := wholeNumber(value); ok {
			return strconv.FormatInt(n, 10), nil
		}
		return nil, fmt.Errorf("ID cannot represent value: %v", value)
	}
	// Custom scalars are passed through as-is
	return value, nil
}

func stringish(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}

func wholeNumber(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return wholeNumber(float64(v))
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func floatNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := wholeNumber(value); ok {
		return float64(n), true
	}
	return 0, false
}
