package extractor

import (
	"errors"
	"fmt"
)

// Code classifies an extraction failure. Codes are stable strings that
// survive serialization into job records and API error bodies.
type Code string

const (
	// Decryption stage.
	CodePasswordRequired Code = "PASSWORD_REQUIRED"
	CodeWrongPassword    Code = "WRONG_PASSWORD"

	// Resolution stage.
	CodeUnknownBank  Code = "UNKNOWN_BANK"
	CodeInactiveBank Code = "INACTIVE_BANK"
	CodeLoadError    Code = "LOAD_ERROR"

	// Extraction stage.
	CodeFormatMismatch Code = "FORMAT_MISMATCH"
	CodeNoTransactions Code = "NO_TRANSACTIONS_FOUND"

	// Row level. Recovered locally unless nothing survives.
	CodeAmountParse Code = "AMOUNT_PARSE_ERROR"
	CodeDateParse   Code = "DATE_PARSE_ERROR"
)

// Error is a classified extraction failure. Message is safe to show to
// callers; wrapped detail stays in server-side logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapErr builds a classified error around an underlying cause.
func WrapErr(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the classification from err, or "" when err carries
// none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is classified as code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
