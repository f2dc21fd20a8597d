package store

import "fmt"

// Key addresses one entity.
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string { return k.Type + "[" + k.ID + "]" }

// Entity is an attribute bag. Attributes referencing other entities hold the
// referenced ids.
type Entity map[string]any

// ID returns the id attribute.
func (e Entity) ID() string {
	switch v := e["id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a deep copy of the entity. Nested lists and maps are copied
// so the clone shares no mutable state with e.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// PlainValue returns v with typed string slices turned into []any, the form
// protobuf Struct encoding accepts.
func PlainValue(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = PlainValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = PlainValue(item)
		}
		return out
	}
	return v
}
