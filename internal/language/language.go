package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// Error is a syntax error reported by the parser, with source locations.
type Error = gqlerror.Error

// ParseQuery parses an executable document. It performs no validation against
// a schema. A failure is always an *Error.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) {
			return nil, ge
		}
		return nil, &Error{Message: err.Error()}
	}
	return doc, nil
}
