package language

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ErrOperationNameRequired is returned when a document does not hold exactly
// one operation and no operation name was supplied.
var ErrOperationNameRequired = errors.New("must provide operation name if query contains multiple operations")

// OperationNotFoundError is returned when no operation matches the supplied name.
type OperationNotFoundError struct {
	Name string
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("unknown operation named %q", e.Name)
}

// UnknownFragmentError is returned when a spread names a fragment that the
// document does not define.
type UnknownFragmentError struct {
	Name string
}

func (e *UnknownFragmentError) Error() string {
	return fmt.Sprintf("unknown fragment %q", e.Name)
}

// SelectOperation returns the operation for the given name, or the only
// operation of the document when name is empty.
func SelectOperation(document *QueryDocument, name string) (*OperationDefinition, error) {
	operations := document.Operations
	if name == "" {
		if len(operations) == 1 {
			return operations[0], nil
		}
		return nil, ErrOperationNameRequired
	}
	op, ok := lo.Find(operations, func(op *OperationDefinition) bool {
		n, named := OperationName(op)
		return named && n == name
	})
	if !ok {
		return nil, &OperationNotFoundError{Name: name}
	}
	return op, nil
}

// OperationName returns the name of the operation, if it has one. Shorthand
// selection-set operations never do.
func OperationName(op *OperationDefinition) (string, bool) {
	if op == nil || op.Name == "" {
		return "", false
	}
	return op.Name, true
}

// FindDirective looks up a directive on a selection. Only fields carry
// directives for this lookup; spreads and inline fragments never match.
func FindDirective(selection Selection, name string) *Directive {
	field, ok := selection.(*Field)
	if !ok {
		return nil
	}
	return findInList(field.Directives, name)
}

func findInList(directives DirectiveList, name string) *Directive {
	d, _ := lo.Find(directives, func(d *Directive) bool { return d.Name == name })
	return d
}

// LookupArgument returns the value of the first argument with the given name.
func LookupArgument(args ArgumentList, name string) *Value {
	arg, ok := lo.Find(args, func(a *Argument) bool { return a.Name == name })
	if !ok {
		return nil
	}
	return arg.Value
}

// ShouldSkip reports whether a selection is skipped by @skip. A @skip without a
// usable boolean "if" argument skips.
func ShouldSkip(selection Selection, variables map[string]any) bool {
	return skipDirective(FindDirective(selection, "skip"), variables)
}

// ShouldInclude reports whether a selection is kept by @include. An @include
// without a usable boolean "if" argument includes.
func ShouldInclude(selection Selection, variables map[string]any) bool {
	return includeDirective(FindDirective(selection, "include"), variables)
}

// SkipDirectives applies the @skip policy to the directives of a fragment
// spread or inline fragment.
func SkipDirectives(directives DirectiveList, variables map[string]any) bool {
	return skipDirective(findInList(directives, "skip"), variables)
}

// IncludeDirectives applies the @include policy to the directives of a
// fragment spread or inline fragment.
func IncludeDirectives(directives DirectiveList, variables map[string]any) bool {
	return includeDirective(findInList(directives, "include"), variables)
}

func skipDirective(d *Directive, variables map[string]any) bool {
	if d == nil {
		return false
	}
	v, ok := booleanArgument(d, variables)
	if !ok {
		return true
	}
	return v
}

func includeDirective(d *Directive, variables map[string]any) bool {
	if d == nil {
		return true
	}
	v, ok := booleanArgument(d, variables)
	if !ok {
		return true
	}
	return v
}

// booleanArgument reads the "if" argument of a directive, substituting
// variables. ok is false when the argument is absent or not a boolean.
func booleanArgument(d *Directive, variables map[string]any) (value bool, ok bool) {
	v := LookupArgument(d.Arguments, "if")
	if v == nil {
		return false, false
	}
	switch v.Kind {
	case BooleanValue:
		return v.Raw == "true", true
	case Variable:
		b, isBool := variables[strings.TrimPrefix(v.Raw, "$")].(bool)
		return b, isBool
	default:
		return false, false
	}
}

// ResponseKey returns the key a field is reported under: its alias, or its
// name when it has none.
func ResponseKey(field *Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

// FindFragment looks up a fragment definition by exact name.
func FindFragment(document *QueryDocument, name string) *FragmentDefinition {
	fd, _ := lo.Find(document.Fragments, func(fd *FragmentDefinition) bool {
		return fd != nil && fd.Name == name
	})
	return fd
}

// FragmentCycle walks every fragment spread reachable from op, including the
// ones nested in field selections, and returns the chain of fragment names
// forming a cycle, or nil when there is none. A spread naming an undefined
// fragment yields an *UnknownFragmentError.
func FragmentCycle(document *QueryDocument, op *OperationDefinition) ([]string, error) {
	w := &cycleWalker{
		document: document,
		done:     make(map[string]bool),
		onStack:  make(map[string]bool),
	}
	if err := w.walk(op.SelectionSet); err != nil {
		return nil, err
	}
	return w.cycle, nil
}

type cycleWalker struct {
	document *QueryDocument
	done     map[string]bool
	onStack  map[string]bool
	stack    []string
	cycle    []string
}

func (w *cycleWalker) walk(set SelectionSet) error {
	for _, selection := range set {
		if w.cycle != nil {
			return nil
		}
		switch sel := selection.(type) {
		case *Field:
			if err := w.walk(sel.SelectionSet); err != nil {
				return err
			}
		case *InlineFragment:
			if err := w.walk(sel.SelectionSet); err != nil {
				return err
			}
		case *FragmentSpread:
			if err := w.spread(sel.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *cycleWalker) spread(name string) error {
	if w.onStack[name] {
		start := lo.IndexOf(w.stack, name)
		w.cycle = append(append([]string{}, w.stack[start:]...), name)
		return nil
	}
	if w.done[name] {
		return nil
	}
	fd := FindFragment(w.document, name)
	if fd == nil {
		return &UnknownFragmentError{Name: name}
	}
	w.onStack[name] = true
	w.stack = append(w.stack, name)
	err := w.walk(fd.SelectionSet)
	w.stack = w.stack[:len(w.stack)-1]
	w.onStack[name] = false
	w.done[name] = true
	return err
}
