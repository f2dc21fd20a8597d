package executor

import (
	"sort"

	language "github.com/hanpama/livegraph/internal/language"
	schema "github.com/hanpama/livegraph/internal/schema"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields flattens a selection set for an object of the given type:
// directives are applied, fragments whose type condition applies are
// inlined, and fields sharing a response key are grouped.
func collectFields(ec *ExecutionContext, objectType *schema.Type, selectionSet language.SelectionSet) *collectedFieldMap {
	groupedFields := newCollectedFieldMap()
	visitedFragments := make(map[string]bool)
	collectFieldsImpl(ec, objectType, selectionSet, groupedFields, visitedFragments)
	return groupedFields
}

func collectFieldsImpl(ec *ExecutionContext, objectType *schema.Type, selectionSet language.SelectionSet, groupedFields *collectedFieldMap, visitedFragments map[string]bool) {
	vars := ec.variables
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			// skip wins over include
			if language.ShouldSkip(sel, vars) || !language.ShouldInclude(sel, vars) {
				continue
			}
			groupedFields.add(language.ResponseKey(sel), sel)

		case *language.InlineFragment:
			if language.SkipDirectives(sel.Directives, vars) || !language.IncludeDirectives(sel.Directives, vars) {
				continue
			}
			if !ec.schema.DoesTypeApply(objectType.Name, sel.TypeCondition) {
				continue
			}
			collectFieldsImpl(ec, objectType, sel.SelectionSet, groupedFields, visitedFragments)

		case *language.FragmentSpread:
			if language.SkipDirectives(sel.Directives, vars) || !language.IncludeDirectives(sel.Directives, vars) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragmentDef := ec.Fragment(sel.Name)
			if fragmentDef == nil {
				continue
			}
			if !ec.schema.DoesTypeApply(objectType.Name, fragmentDef.TypeCondition) {
				continue
			}
			collectFieldsImpl(ec, objectType, fragmentDef.SelectionSet, groupedFields, visitedFragments)
		}
	}
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// ReferencedTypes returns the sorted names of every named type a field of the
// operation returns, following fragments under their type conditions.
// Directives are ignored, so the result covers every variant of the
// operation.
func ReferencedTypes(ec *ExecutionContext) []string {
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	referencedTypes(ec, ec.rootType, ec.operation.SelectionSet, seen, visited)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func referencedTypes(ec *ExecutionContext, parent *schema.Type, set language.SelectionSet, seen, visited map[string]bool) {
	if parent == nil {
		return
	}
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			def := parent.Field(sel.Name)
			if def == nil {
				continue
			}
			name := def.Type.GetNamedType()
			seen[name] = true
			t := ec.schema.Types[name]
			if t != nil && t.IsAbstract() {
				for _, pt := range t.PossibleTypes {
					seen[pt] = true
				}
			}
			referencedTypes(ec, t, sel.SelectionSet, seen, visited)
		case *language.InlineFragment:
			t := parent
			if sel.TypeCondition != "" {
				t = ec.schema.Types[sel.TypeCondition]
			}
			referencedTypes(ec, t, sel.SelectionSet, seen, visited)
		case *language.FragmentSpread:
			key := parent.Name + "/" + sel.Name
			if visited[key] {
				continue
			}
			visited[key] = true
			fd := ec.Fragment(sel.Name)
			if fd == nil {
				continue
			}
			t := parent
			if fd.TypeCondition != "" {
				t = ec.schema.Types[fd.TypeCondition]
			}
			referencedTypes(ec, t, fd.SelectionSet, seen, visited)
		}
	}
}
