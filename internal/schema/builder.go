package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// BuildFromSDL parses SDL string and returns the corresponding Schema.
// The SDL may apply @entity to object types and @derivedFrom(field:) to fields;
// both are declared implicitly.
func BuildFromSDL(sdl string) (*Schema, error) {
	return BuildFromSources(&ast.Source{Name: "schema.graphql", Input: sdl})
}

// BuildFromSources loads and validates one or more SDL sources and converts
// the result into a Schema.
func BuildFromSources(sources ...*ast.Source) (*Schema, error) {
	prelude := &ast.Source{Name: "livegraph-prelude.graphql", Input: preludeSDL, BuiltIn: true}
	doc, err := gqlparser.LoadSchema(append([]*ast.Source{prelude}, sources...)...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return BuildFromAST(doc)
}

// BuildFromAST converts a validated gqlparser schema. Introspection types are
// left out; the introspection package adds its own.
func BuildFromAST(doc *ast.Schema) (*Schema, error) {
	s := NewSchema(doc.Description)
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}

	for name, def := range doc.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		if builtin, ok := builtinTypes[name]; ok {
			s.AddType(builtin)
			continue
		}
		t, err := buildType(doc, def)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}

	for name, def := range doc.Directives {
		if builtin, ok := builtinDirectives[name]; ok {
			s.AddDirective(builtin)
			continue
		}
		d, err := buildDirective(def)
		if err != nil {
			return nil, err
		}
		s.AddDirective(d)
	}

	if err := checkEntities(s); err != nil {
		return nil, err
	}
	return s, nil
}

func buildType(doc *ast.Schema, def *ast.Definition) (*Type, error) {
	switch def.Kind {
	case ast.Object, ast.Interface:
		kind := TypeKindObject
		if def.Kind == ast.Interface {
			kind = TypeKindInterface
		}
		t := NewType(def.Name, kind, def.Description)
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			f, err := buildField(fd)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, fd.Name, err)
			}
			t.AddField(f)
		}
		if def.Kind == ast.Interface {
			for _, name := range possibleTypeNames(doc, def.Name) {
				t.AddPossibleType(name)
			}
		}
		t.SetEntity(def.Directives.ForName("entity") != nil)
		return t, nil
	case ast.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t, nil
	case ast.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, ev := range def.EnumValues {
			v := NewEnumValue(ev.Name, ev.Description)
			if reason, ok := deprecation(ev.Directives); ok {
				v.Deprecate(reason)
			}
			t.AddEnumValue(v)
		}
		return t, nil
	case ast.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, fd := range def.Fields {
			in, err := buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, fd.Name, err)
			}
			t.AddInputField(in)
		}
		return t, nil
	case ast.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SetSpecifiedByURL(&url)
			}
		}
		return t, nil
	}
	return nil, fmt.Errorf("type %s: unsupported kind %s", def.Name, def.Kind)
}

func possibleTypeNames(doc *ast.Schema, name string) []string {
	var names []string
	for _, def := range doc.PossibleTypes[name] {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

func buildField(fd *ast.FieldDefinition) (*Field, error) {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
	if reason, ok := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	if d := fd.Directives.ForName("derivedFrom"); d != nil {
		arg := d.Arguments.ForName("field")
		if arg == nil || arg.Value == nil || arg.Value.Raw == "" {
			return nil, fmt.Errorf("@derivedFrom requires a field argument")
		}
		f.SetDerivedFrom(arg.Value.Raw)
	}
	for _, ad := range fd.Arguments {
		in, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", ad.Name, err)
		}
		f.AddArgument(in)
	}
	return f, nil
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, directives ast.DirectiveList) (*InputValue, error) {
	in := NewInputValue(name, description, buildTypeRef(typ))
	if def != nil {
		v, err := def.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("default value: %w", err)
		}
		in.SetDefault(v)
	}
	if reason, ok := deprecation(directives); ok {
		in.Deprecate(reason)
	}
	return in, nil
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

func buildDirective(def *ast.DirectiveDefinition) (*Directive, error) {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.AddLocation(string(loc))
	}
	for _, ad := range def.Arguments {
		in, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("directive @%s: %w", def.Name, err)
		}
		d.AddArgument(in)
	}
	return d, nil
}

func deprecation(directives ast.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "No longer supported", true
}

// checkEntities enforces the shape the store relies on: entity types carry a
// non-null ID field named id, and @derivedFrom points at an entity type
// declaring the named attribute.
func checkEntities(s *Schema) error {
	for _, t := range s.Types {
		if !t.Entity {
			continue
		}
		id := t.Field("id")
		if id == nil || !id.Type.IsNonNull() || id.Type.GetNamedType() != "ID" && id.Type.GetNamedType() != "String" {
			return fmt.Errorf("entity type %s must declare id: ID!", t.Name)
		}
		for _, f := range t.Fields {
			if f.DerivedFrom == "" {
				continue
			}
			target := s.Types[f.Type.GetNamedType()]
			if target == nil || !target.Entity {
				return fmt.Errorf("%s.%s: @derivedFrom requires an entity type, got %s", t.Name, f.Name, f.Type.GetNamedType())
			}
			if target.Field(f.DerivedFrom) == nil {
				return fmt.Errorf("%s.%s: %s has no field %s", t.Name, f.Name, target.Name, f.DerivedFrom)
			}
		}
	}
	return nil
}
