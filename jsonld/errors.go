package jsonld

import (
	"errors"
	"fmt"
)

// ErrorCode identifies which context processing rule was violated.
// The values are the W3C JSON-LD API error codes, so conformance test
// expectations can be compared directly against Code.
type ErrorCode string

const (
	InvalidBaseIRI             ErrorCode = "invalid base IRI"
	InvalidVocabMapping        ErrorCode = "invalid vocab mapping"
	InvalidDefaultLanguage     ErrorCode = "invalid default language"
	InvalidLocalContext        ErrorCode = "invalid local context"
	KeywordRedefinition        ErrorCode = "keyword redefinition"
	CyclicIRIMapping           ErrorCode = "cyclic IRI mapping"
	InvalidTermDefinition      ErrorCode = "invalid term definition"
	InvalidTypeMapping         ErrorCode = "invalid type mapping"
	InvalidReverseProperty     ErrorCode = "invalid reverse property"
	InvalidIRIMapping          ErrorCode = "invalid IRI mapping"
	InvalidLanguageMapping     ErrorCode = "invalid language mapping"
	InvalidContainerMapping    ErrorCode = "invalid container mapping"
	RecursiveContextInclusion  ErrorCode = "recursive context inclusion"
	LoadingRemoteContextFailed ErrorCode = "loading remote context failed"
	InvalidRemoteContext       ErrorCode = "invalid remote context"
)

// Sentinel errors for use with errors.Is. Matching is by code only.
var (
	ErrInvalidBaseIRI             = &Error{Code: InvalidBaseIRI}
	ErrInvalidVocabMapping        = &Error{Code: InvalidVocabMapping}
	ErrInvalidDefaultLanguage     = &Error{Code: InvalidDefaultLanguage}
	ErrInvalidLocalContext        = &Error{Code: InvalidLocalContext}
	ErrKeywordRedefinition        = &Error{Code: KeywordRedefinition}
	ErrCyclicIRIMapping           = &Error{Code: CyclicIRIMapping}
	ErrInvalidTermDefinition      = &Error{Code: InvalidTermDefinition}
	ErrInvalidTypeMapping         = &Error{Code: InvalidTypeMapping}
	ErrInvalidReverseProperty     = &Error{Code: InvalidReverseProperty}
	ErrInvalidIRIMapping          = &Error{Code: InvalidIRIMapping}
	ErrInvalidLanguageMapping     = &Error{Code: InvalidLanguageMapping}
	ErrInvalidContainerMapping    = &Error{Code: InvalidContainerMapping}
	ErrRecursiveContextInclusion  = &Error{Code: RecursiveContextInclusion}
	ErrLoadingRemoteContextFailed = &Error{Code: LoadingRemoteContextFailed}
	ErrInvalidRemoteContext       = &Error{Code: InvalidRemoteContext}
)

// Error is the single error type returned by context processing.
type Error struct {
	Code ErrorCode
	// Term is the term being defined when the error was raised, if any.
	Term    string
	Details string
	// Err is the underlying cause, e.g. a document loader failure.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "jsonld: " + string(e.Code)
	if e.Term != "" {
		msg += fmt.Sprintf(" (term %q)", e.Term)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not
// (and does not wrap) an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, term string, format string, args ...any) *Error {
	return &Error{Code: code, Term: term, Details: fmt.Sprintf(format, args...)}
}
