package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/samber/lo"

	schema "github.com/hanpama/livegraph/internal/schema"
)

const (
	// DefaultFirst is the page size used when a query does not set one.
	DefaultFirst = 100
	// MaxFirst bounds the page size of a single query.
	MaxFirst = 1000
)

// Op is a filter predicate.
type Op string

const (
	OpEq       Op = "eq"
	OpNot      Op = "not"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"
	OpContains Op = "contains"
)

// whereSuffixes maps where-object key suffixes to predicates. Longer
// suffixes come first so "_not_in" wins over "_in".
var whereSuffixes = []struct {
	suffix string
	op     Op
}{
	{"_not_in", OpNotIn},
	{"_contains", OpContains},
	{"_not", OpNot},
	{"_gte", OpGte},
	{"_lte", OpLte},
	{"_gt", OpGt},
	{"_lt", OpLt},
	{"_in", OpIn},
}

// Filter is one predicate on an entity attribute.
type Filter struct {
	Attribute string
	Op        Op
	Value     any
}

// Query selects entities of one type.
type Query struct {
	Type       string
	Where      []Filter
	OrderBy    string // attribute; empty orders by id
	Descending bool
	First      int // 0 means DefaultFirst
	Skip       int
}

// ParseWhere turns a GraphQL where object ({name: "x", age_gt: 3}) into
// filters on attributes of typ. Keys are processed in sorted order.
func ParseWhere(typ *schema.Type, where map[string]any) ([]Filter, error) {
	keys := lo.Keys(where)
	sort.Strings(keys)
	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		attr, op := splitWhereKey(typ, key)
		if attr == "" {
			return nil, fmt.Errorf("unknown filter %q on %s", key, typ.Name)
		}
		value := where[key]
		if op == OpIn || op == OpNotIn {
			if value != nil && reflect.ValueOf(value).Kind() != reflect.Slice {
				return nil, fmt.Errorf("filter %q expects a list", key)
			}
		}
		filters = append(filters, Filter{Attribute: attr, Op: op, Value: value})
	}
	return filters, nil
}

func splitWhereKey(typ *schema.Type, key string) (string, Op) {
	if typ.Field(key) != nil {
		return key, OpEq
	}
	for _, s := range whereSuffixes {
		if attr, ok := strings.CutSuffix(key, s.suffix); ok && typ.Field(attr) != nil {
			return attr, s.op
		}
	}
	return "", ""
}

// Match reports whether the entity satisfies the filter.
func (f Filter) Match(e Entity) bool {
	v := e[f.Attribute]
	switch f.Op {
	case OpEq:
		return equalValues(v, f.Value)
	case OpNot:
		return !equalValues(v, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := compareValues(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		return lo.ContainsBy(toList(f.Value), func(item any) bool { return equalValues(v, item) })
	case OpNotIn:
		return !lo.ContainsBy(toList(f.Value), func(item any) bool { return equalValues(v, item) })
	case OpContains:
		if s, ok := v.(string); ok {
			sub, ok := f.Value.(string)
			return ok && strings.Contains(s, sub)
		}
		return lo.ContainsBy(toList(v), func(item any) bool { return equalValues(item, f.Value) })
	}
	return false
}

func matchAll(filters []Filter, e Entity) bool {
	for _, f := range filters {
		if !f.Match(e) {
			return false
		}
	}
	return true
}

// Select filters, orders and paginates entities. Find applies it to every
// entity of q.Type; callers merging several types apply it themselves.
func (q Query) Select(entities []Entity) []Entity {
	matched := lo.Filter(entities, func(e Entity, _ int) bool { return matchAll(q.Where, e) })

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c, ok := compareValues(matched[i][orderBy], matched[j][orderBy])
		if !ok || c == 0 {
			// nulls and incomparable values last, ties by id
			ai, bi := matched[i][orderBy] == nil, matched[j][orderBy] == nil
			if ai != bi {
				return bi
			}
			if matched[i].ID() != matched[j].ID() {
				return (matched[i].ID() < matched[j].ID()) != q.Descending
			}
			return false
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})

	if q.Skip >= len(matched) {
		return []Entity{}
	}
	matched = matched[q.Skip:]
	if first := q.first(); first < len(matched) {
		matched = matched[:first]
	}
	return matched
}

func (q Query) first() int {
	if q.First == 0 {
		return DefaultFirst
	}
	return q.First
}

// Validate checks the pagination bounds.
func (q Query) Validate() error {
	if q.First < 0 || q.First > MaxFirst {
		return fmt.Errorf("first must be between 0 and %d, got %d", MaxFirst, q.First)
	}
	if q.Skip < 0 {
		return fmt.Errorf("skip must not be negative, got %d", q.Skip)
	}
	return nil
}

func toList(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equalValues(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers numerically, strings lexically and false
// before true. ok is false for values of different kinds.
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}
