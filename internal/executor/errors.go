package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	language "github.com/hanpama/livegraph/internal/language"
)

// ErrCanceled is returned when the request context is canceled or its
// deadline passes before execution completes. The context error is wrapped
// alongside it.
var ErrCanceled = errors.New("execution canceled")

// CycleDetectedError reports a fragment that spreads itself, directly or
// through other fragments. Path lists the fragment names along the cycle,
// starting and ending with the same name.
type CycleDetectedError struct {
	Path []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("fragment cycle detected: %s", strings.Join(e.Path, " -> "))
}

// VariableError reports a variable value that cannot be coerced to its
// declared type.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variable $%s: %v", e.Name, e.Err)
}

func (e *VariableError) Unwrap() error { return e.Err }

// RootTypeError reports an operation whose root type the schema lacks.
type RootTypeError struct {
	Operation language.Operation
}

func (e *RootTypeError) Error() string {
	return fmt.Sprintf("schema does not support %s operations", e.Operation)
}

func canceled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// Error codes reported in extensions.code of fatal results.
const (
	CodeOperationNameRequired = "OPERATION_NAME_REQUIRED"
	CodeOperationNotFound     = "OPERATION_NOT_FOUND"
	CodeCycleDetected         = "CYCLE_DETECTED"
	CodeUnknownFragment       = "UNKNOWN_FRAGMENT"
	CodeBadVariables          = "BAD_USER_INPUT"
	CodeUnsupportedOperation  = "UNSUPPORTED_OPERATION"
	CodeCanceled              = "CANCELED"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// ErrorCode classifies a fatal execution error.
func ErrorCode(err error) string {
	var (
		notFound *language.OperationNotFoundError
		cycle    *CycleDetectedError
		unknown  *language.UnknownFragmentError
		variable *VariableError
		root     *RootTypeError
	)
	switch {
	case errors.Is(err, language.ErrOperationNameRequired):
		return CodeOperationNameRequired
	case errors.As(err, &notFound):
		return CodeOperationNotFound
	case errors.As(err, &cycle):
		return CodeCycleDetected
	case errors.As(err, &unknown):
		return CodeUnknownFragment
	case errors.As(err, &variable):
		return CodeBadVariables
	case errors.As(err, &root):
		return CodeUnsupportedOperation
	case errors.Is(err, ErrCanceled):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// IsClientError reports whether a fatal error was caused by the request
// itself rather than by the server.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case CodeCanceled, CodeInternal:
		return false
	default:
		return true
	}
}

// FatalResult builds the result of a request that could not produce data.
func FatalResult(err error) *ExecutionResult {
	return &ExecutionResult{
		Errors: []GraphQLError{{
			Message:    err.Error(),
			Extensions: map[string]any{"code": ErrorCode(err)},
		}},
		Err: err,
	}
}
