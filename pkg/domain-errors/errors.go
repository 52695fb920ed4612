// Package domainerrors defines coded errors returned by services.
//
// Stores return sentinel errors from pkg/platform/sentinel; services translate
// them into coded errors so transports can map a single Code to a response.
// Validation codes double as the form-level "kind" reported to callers.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// Validation kinds surfaced to form and API callers.
	CodeInvalid   Code = "invalid"
	CodeMaxLength Code = "max_length"
	CodeUnique    Code = "unique"
	CodeRejected  Code = "rejected"
	CodeSelfPromo Code = "selfpromo"
	CodeNoAction  Code = "no_action"
	CodeLock      Code = "lock"

	// Identifier already linked to a different target.
	CodeCollision Code = "collision"
	// Identifier belongs to the permanent scheme and cannot be detached.
	CodePermanent Code = "permanent"

	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeForbidden    Code = "forbidden"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"

	// Fatal import conditions.
	CodeConcurrentImport Code = "concurrent_import"
	CodeBotProfile       Code = "bot_profile"

	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Field optionally names the input it concerns.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WithField returns a copy of err bound to the given input field.
// Errors without a code are wrapped as internal.
func WithField(err error, field string) error {
	var de *Error
	if errors.As(err, &de) {
		cp := *de
		cp.Field = field
		return &cp
	}
	return &Error{Code: CodeInternal, Message: "unexpected error", Field: field, Err: err}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsValidation reports whether code is one of the form-level validation kinds.
func IsValidation(code Code) bool {
	switch code {
	case CodeInvalid, CodeMaxLength, CodeUnique, CodeRejected, CodeSelfPromo, CodeNoAction, CodeLock, CodeCollision, CodePermanent:
		return true
	}
	return false
}

// IsFatal reports whether err aborts a whole import run.
func IsFatal(err error) bool {
	return HasCode(err, CodeConcurrentImport) || HasCode(err, CodeBotProfile)
}
