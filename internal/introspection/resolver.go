package introspection

import (
	"context"
	"fmt"
	"sort"

	executor "github.com/hanpama/livegraph/internal/executor"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// IntrospectionWrapper holds both the resolver and extended schema
type IntrospectionWrapper struct {
	Resolver executor.Resolver
	Schema   *schema.Schema
}

// Wrap returns a Resolver that answers GraphQL introspection fields and
// delegates every other field to base. It extends the schema with the
// introspection types and the __schema and __type root fields. A nil base
// serves introspection only.
func Wrap(base executor.Resolver, sch *schema.Schema) *IntrospectionWrapper {
	extendedSchema := extendSchemaWithIntrospection(sch)
	r := &resolver{
		base:       base,
		schema:     extendedSchema,
		introspect: introspectedSchema(sch, extendedSchema),
	}
	return &IntrospectionWrapper{
		Resolver: r,
		Schema:   extendedSchema,
	}
}

type resolver struct {
	base       executor.Resolver
	schema     *schema.Schema // Extended schema with introspection types
	introspect *schema.Schema // What __schema describes: meta types included, root meta fields hidden
}

func (r *resolver) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case *schema.Schema:
		if v, ok := resolveSchemaField(src, field); ok {
			return v, nil
		}
	case *schema.Type:
		if v, ok := resolveTypeField(r.introspect, src, field, args); ok {
			return v, nil
		}
	case *schema.TypeRef:
		if v, ok := resolveTypeRefField(r.introspect, src, field, args); ok {
			return v, nil
		}
	case *schema.Field:
		if v, ok := resolveFieldField(src, field, args); ok {
			return v, nil
		}
	case *schema.InputValue:
		if v, ok := resolveInputValueField(r.introspect, src, field); ok {
			return v, nil
		}
	case *schema.EnumValue:
		if v, ok := resolveEnumValueField(src, field); ok {
			return v, nil
		}
	case *schema.Directive:
		if v, ok := resolveDirectiveField(src, field, args); ok {
			return v, nil
		}
	}

	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.introspect, nil
		case "__type":
			return r.resolveTypeQuery(args), nil
		}
	}

	if r.base == nil {
		return nil, fmt.Errorf("no resolver for field %s.%s", objectType, field)
	}
	return r.base.ResolveField(ctx, objectType, field, source, args)
}

func (r *resolver) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if r.base == nil {
		return "", fmt.Errorf("cannot resolve runtime type of %s", abstractType)
	}
	return r.base.ResolveType(ctx, abstractType, value)
}

// --- helpers ---

func (r *resolver) resolveTypeQuery(args map[string]any) *schema.Type {
	name, _ := args["name"].(string)
	if name == "" {
		return nil
	}
	return r.introspect.Types[name]
}

func resolveSchemaTypes(sch *schema.Schema) []*schema.Type {
	if sch.Types == nil {
		return []*schema.Type{}
	}
	out := make([]*schema.Type, 0, len(sch.Types))
	for _, t := range sch.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveSchemaDirectives(sch *schema.Schema) []*schema.Directive {
	if sch.Directives == nil {
		return []*schema.Directive{}
	}
	dirs := make([]*schema.Directive, 0, len(sch.Directives))
	for _, d := range sch.Directives {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs
}

// Fields, arguments and input fields keep declaration order.
func resolveTypeFields(t *schema.Type, args map[string]any) []*schema.Field {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.Field{}
	for _, f := range t.Fields {
		if !includeDeprecated && f.IsDeprecated {
			continue
		}
		out = append(out, f)
	}
	return out
}

func resolveTypeInterfaces(sch *schema.Schema, t *schema.Type) []*schema.Type {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	out := make([]*schema.Type, 0, len(t.Interfaces))
	for _, name := range t.Interfaces {
		if def := sch.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypePossibleTypes(sch *schema.Schema, t *schema.Type) []*schema.Type {
	if !t.IsAbstract() {
		return nil
	}
	pts := []*schema.Type{}
	for _, name := range t.PossibleTypes {
		if def := sch.Types[name]; def != nil {
			pts = append(pts, def)
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Name < pts[j].Name })
	return pts
}

func resolveTypeEnumValues(t *schema.Type, args map[string]any) []*schema.EnumValue {
	if t.Kind != schema.TypeKindEnum {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.EnumValue{}
	for _, ev := range t.EnumValues {
		if !includeDeprecated && ev.IsDeprecated {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func resolveTypeInputFields(t *schema.Type, args map[string]any) []*schema.InputValue {
	if t.Kind != schema.TypeKindInputObject {
		return nil
	}
	return filterDeprecated(t.InputFields, boolArg(args, "includeDeprecated", false))
}

func filterDeprecated(values []*schema.InputValue, includeDeprecated bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, a := range values {
		if !includeDeprecated && a.IsDeprecated {
			continue
		}
		out = append(out, a)
	}
	return out
}

func resolveInputValueDefaultValue(sch *schema.Schema, a *schema.InputValue) any {
	if a.DefaultValue == nil {
		return nil
	}
	if s, ok := a.DefaultValue.(string); ok {
		if t := sch.Types[a.Type.GetNamedType()]; t != nil && t.Kind == schema.TypeKindEnum {
			return s
		}
	}
	return schema.RenderValue(a.DefaultValue)
}

func deprecationReason(deprecated bool, reason string) any {
	if deprecated {
		return reason
	}
	return nil
}

// optional maps an empty description to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func resolveDirectiveLocations(d *schema.Directive) []string {
	locs := make([]string, len(d.Locations))
	copy(locs, d.Locations)
	sort.Strings(locs)
	return locs
}

func resolveSchemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "types":
		return resolveSchemaTypes(sch), true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		return sch.GetMutationType(), true
	case "subscriptionType":
		return sch.GetSubscriptionType(), true
	case "directives":
		return resolveSchemaDirectives(sch), true
	case "description":
		return optional(sch.Description), true
	}
	return nil, false
}

func resolveTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "fields":
		return resolveTypeFields(t, args), true
	case "interfaces":
		return resolveTypeInterfaces(sch, t), true
	case "possibleTypes":
		return resolveTypePossibleTypes(sch, t), true
	case "enumValues":
		return resolveTypeEnumValues(t, args), true
	case "inputFields":
		return resolveTypeInputFields(t, args), true
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return t.OneOf, true
	case "ofType":
		// Wrapper types (LIST/NON_NULL) are represented as TypeRef nodes, so named types never expose ofType.
		return nil, true
	}
	return nil, false
}

func resolveTypeRefField(sch *schema.Schema, tr *schema.TypeRef, field string, args map[string]any) (any, bool) {
	wrapped := tr.Kind == schema.TypeRefKindNonNull || tr.Kind == schema.TypeRefKindList
	if wrapped {
		switch field {
		case "kind":
			return string(tr.Kind), true
		case "ofType":
			return tr.OfType, true
		default:
			return nil, true
		}
	}
	if def := sch.Types[tr.Named]; def != nil {
		return resolveTypeField(sch, def, field, args)
	}
	if field == "name" {
		return tr.Named, true
	}
	return nil, true
}

func resolveFieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		return filterDeprecated(f.Arguments, boolArg(args, "includeDeprecated", false)), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), true
	}
	return nil, false
}

func resolveInputValueField(sch *schema.Schema, a *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return a.Name, true
	case "description":
		return optional(a.Description), true
	case "type":
		return a.Type, true
	case "defaultValue":
		return resolveInputValueDefaultValue(sch, a), true
	case "isDeprecated":
		return a.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(a.IsDeprecated, a.DeprecationReason), true
	}
	return nil, false
}

func resolveEnumValueField(ev *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return optional(ev.Description), true
	case "isDeprecated":
		return ev.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(ev.IsDeprecated, ev.DeprecationReason), true
	}
	return nil, false
}

func resolveDirectiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return optional(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return resolveDirectiveLocations(d), true
	case "args":
		return filterDeprecated(d.Arguments, boolArg(args, "includeDeprecated", false)), true
	}
	return nil, false
}

func boolArg(args map[string]any, name string, def bool) bool {
	if args == nil {
		return def
	}
	if v, ok := args[name]; ok {
		if b, ok2 := v.(bool); ok2 {
			return b
		}
	}
	return def
}
