package store

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	schema "github.com/hanpama/livegraph/internal/schema"
)

// validateEvent checks the parts of an event that do not depend on stored
// state and returns the event's attributes in canonical form.
func validateEvent(sch *schema.Schema, ev Event) (Entity, error) {
	if ev.Key.Type == "" || ev.Key.ID == "" {
		return nil, invalid(ev, "key needs both a type and an id")
	}
	typ := sch.Types[ev.Key.Type]
	if typ == nil || !typ.Entity {
		return nil, invalid(ev, "%s is not an entity type", ev.Key.Type)
	}

	switch ev.Kind {
	case EntityRemoved:
		return nil, nil
	case EntityCreated, EntityChanged:
	default:
		return nil, invalid(ev, "unknown event kind %d", int(ev.Kind))
	}
	if ev.Kind == EntityCreated && ev.Entity == nil {
		return nil, invalid(ev, "%s carries no entity", ev.Kind)
	}

	out := make(Entity, len(ev.Entity)+1)
	for name, value := range ev.Entity {
		field := typ.Field(name)
		if field == nil {
			return nil, invalid(ev, "%s has no field %q", typ.Name, name)
		}
		if field.DerivedFrom != "" {
			return nil, invalid(ev, "%s.%s is derived and cannot be written", typ.Name, name)
		}
		if name == "id" {
			if value == nil {
				return nil, invalid(ev, "id cannot be removed")
			}
			if id := formatID(value); id != ev.Key.ID {
				return nil, invalid(ev, "id attribute %q does not match key id %q", id, ev.Key.ID)
			}
			continue
		}
		if value == nil {
			if ev.Kind == EntityCreated && schema.IsNonNull(field.Type) {
				return nil, invalid(ev, "%s.%s cannot be null", typ.Name, name)
			}
			out[name] = nil
			continue
		}
		v, err := normalizeValue(sch, field.Type, value)
		if err != nil {
			return nil, invalid(ev, "%s.%s: %v", typ.Name, name, err)
		}
		out[name] = v
	}
	out["id"] = ev.Key.ID
	return out, nil
}

// checkComplete reports the first non-null field missing from a stored
// entity.
func checkComplete(typ *schema.Type, e Entity) error {
	for _, f := range typ.Fields {
		if f.DerivedFrom != "" || !schema.IsNonNull(f.Type) {
			continue
		}
		if v, ok := e[f.Name]; !ok || v == nil {
			return fmt.Errorf("%s.%s cannot be null", typ.Name, f.Name)
		}
	}
	return nil
}

// normalizeValue validates a non-nil attribute value against the field type
// and returns its canonical form: Int as int64, Float as float64, ID and
// entity references as strings, lists as []any.
func normalizeValue(sch *schema.Schema, t *schema.TypeRef, value any) (any, error) {
	if schema.IsNonNull(t) {
		if value == nil {
			return nil, fmt.Errorf("null for non-null type %s", t)
		}
		return normalizeValue(sch, schema.Unwrap(t), value)
	}
	if value == nil {
		return nil, nil
	}
	if t.Kind == schema.TypeRefKindList {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("expected a list for %s, got %T", t, value)
		}
		out := make([]any, rv.Len())
		for i := range out {
			item, err := normalizeValue(sch, schema.Unwrap(t), rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	}

	switch t.Named {
	case "Int":
		if n, ok := toInt64(value); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return n, nil
		}
		return nil, fmt.Errorf("%v is not an Int", value)
	case "Float":
		if f, ok := toFloat64(value); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%v is not a Float", value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%v is not a String", value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%v is not a Boolean", value)
	case "ID":
		if id := formatID(value); id != "" {
			return id, nil
		}
		return nil, fmt.Errorf("%v is not an ID", value)
	}

	named := sch.Types[t.Named]
	if named == nil {
		return nil, fmt.Errorf("unknown type %s", t.Named)
	}
	switch named.Kind {
	case schema.TypeKindEnum:
		if s, ok := value.(string); ok && named.EnumValue(s) != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%v is not a value of %s", value, named.Name)
	case schema.TypeKindObject, schema.TypeKindInterface, schema.TypeKindUnion:
		// references hold ids
		if id := formatID(value); id != "" {
			return id, nil
		}
		return nil, fmt.Errorf("%v is not a reference to %s", value, named.Name)
	}
	// custom scalars are stored as given
	return value, nil
}

// normalizeEntity brings an entity read from a backend into canonical form.
// Backends that cannot preserve Go number types (protobuf Struct) return
// every number as float64.
func normalizeEntity(typ *schema.Type, sch *schema.Schema, e Entity) Entity {
	if e == nil || typ == nil {
		return e
	}
	for name, v := range e {
		f := typ.Field(name)
		if f == nil || v == nil {
			continue
		}
		if nv, err := normalizeValue(sch, f.Type, v); err == nil {
			e[name] = nv
		}
	}
	return e
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case float32:
		return toInt64(float64(v))
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := toInt64(value); ok {
		return float64(n), true
	}
	return 0, false
}

func formatID(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int, int32, int64, float32, float64:
		if n, ok := toInt64(v); ok {
			return strconv.FormatInt(n, 10)
		}
	}
	return ""
}
