package query

import "fmt"

// Stable validation error codes returned to API callers.
const (
	CodeEmptyRequest       = "EMPTY_REQUEST"
	CodeLimitExceeded      = "LIMIT_EXCEEDED"
	CodeUnknownField       = "UNKNOWN_FIELD"
	CodeInvalidAggregation = "INVALID_AGGREGATION"
	CodeInvalidOperator    = "INVALID_OPERATOR"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeInvalidAlias       = "INVALID_ALIAS"
	CodeDuplicateAlias     = "DUPLICATE_ALIAS"
	CodeInvalidOrderBy     = "INVALID_ORDER_BY"
	CodeMixedGrain         = "MIXED_GRAIN"
	CodeInvalidParameter   = "INVALID_PARAMETER"
)

// ValidationError rejects a malformed or unsafe request. Callers fix their input; it is
// never retried.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on the error code so callers can write errors.Is(err, query.ErrUnknownField).
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyRequest       = &ValidationError{Code: CodeEmptyRequest}
	ErrLimitExceeded      = &ValidationError{Code: CodeLimitExceeded}
	ErrUnknownField       = &ValidationError{Code: CodeUnknownField}
	ErrInvalidAggregation = &ValidationError{Code: CodeInvalidAggregation}
	ErrInvalidOperator    = &ValidationError{Code: CodeInvalidOperator}
	ErrTypeMismatch       = &ValidationError{Code: CodeTypeMismatch}
	ErrInvalidAlias       = &ValidationError{Code: CodeInvalidAlias}
	ErrDuplicateAlias     = &ValidationError{Code: CodeDuplicateAlias}
	ErrInvalidOrderBy     = &ValidationError{Code: CodeInvalidOrderBy}
	ErrMixedGrain         = &ValidationError{Code: CodeMixedGrain}
	ErrInvalidParameter   = &ValidationError{Code: CodeInvalidParameter}
)

func newError(code, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidParameter reports an out-of-range analysis parameter.
func InvalidParameter(field, format string, args ...interface{}) *ValidationError {
	return newError(CodeInvalidParameter, field, format, args...)
}
