package sqltranslate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// TranslationError reports a source construct that cannot be compiled.
//
// Translation errors include:
//   - Untranslatable: no translator handles the expression
//   - Not supported: the dialect cannot express an operation for a type
//     (ordering by decimal, averaging a decimal, an apply join on SQLite)
//   - Unknown member: a property or navigation that does not exist
//   - Invalid query: a malformed tree (unbound lambda parameter, wrong
//     argument count)
type TranslationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Expr is the source expression involved, formatted for display.
	Expr string

	// Suggestion is a likely intended member name, when one is close.
	Suggestion string
}

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeUntranslatable indicates no translator produced SQL.
	ErrCodeUntranslatable ErrorCode = "UNTRANSLATABLE"

	// ErrCodeNotSupported indicates a recognized operation the dialect
	// cannot express for the types involved.
	ErrCodeNotSupported ErrorCode = "NOT_SUPPORTED"

	// ErrCodeUnknownMember indicates a member that does not exist.
	ErrCodeUnknownMember ErrorCode = "UNKNOWN_MEMBER"

	// ErrCodeInvalidQuery indicates a malformed query tree.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"
)

// Error implements the error interface.
func (e *TranslationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Expr != "" {
		fmt.Fprintf(&b, " in %s", e.Expr)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
	}
	return b.String()
}

// IsUntranslatable returns true if err is an untranslatable-expression
// error. Uses errors.As to handle wrapped errors.
func IsUntranslatable(err error) bool {
	return hasCode(err, ErrCodeUntranslatable)
}

// IsNotSupported returns true if err is a not-supported error.
func IsNotSupported(err error) bool {
	return hasCode(err, ErrCodeNotSupported)
}

// IsUnknownMember returns true if err is an unknown-member error.
func IsUnknownMember(err error) bool {
	return hasCode(err, ErrCodeUnknownMember)
}

func hasCode(err error, code ErrorCode) bool {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// Untranslatable builds an ErrCodeUntranslatable error.
func Untranslatable(expr string, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:    ErrCodeUntranslatable,
		Message: fmt.Sprintf(format, args...),
		Expr:    expr,
	}
}

// NotSupported builds an ErrCodeNotSupported error naming the operation
// and the type it was applied to.
func NotSupported(operation string, typ fmt.Stringer) *TranslationError {
	return &TranslationError{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("%s is not supported for %s values by this database", operation, typ),
	}
}

// InvalidQuery builds an ErrCodeInvalidQuery error.
func InvalidQuery(expr string, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:    ErrCodeInvalidQuery,
		Message: fmt.Sprintf(format, args...),
		Expr:    expr,
	}
}

// UnknownMember builds an ErrCodeUnknownMember error, suggesting the
// closest of candidates within an edit distance of 2.
func UnknownMember(owner, name string, candidates []string) *TranslationError {
	return &TranslationError{
		Code:       ErrCodeUnknownMember,
		Message:    fmt.Sprintf("%s has no member %q", owner, name),
		Suggestion: closest(name, candidates),
	}
}

func closest(name string, candidates []string) string {
	best, bestDist := "", 3
	lower := strings.ToLower(name)
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// withExpr fills in the expression of a TranslationError that has none.
func withExpr(err error, expr string) error {
	var te *TranslationError
	if errors.As(err, &te) && te.Expr == "" {
		c := *te
		c.Expr = expr
		return &c
	}
	return err
}
