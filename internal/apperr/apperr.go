package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes failures surfaced to callers
type Kind string

const (
	KindValidation Kind = "validation"
	KindDecode     Kind = "decode"
	KindEmptyInput Kind = "empty_input"
	KindInference  Kind = "inference"
	KindUnknown    Kind = "unknown"
)

// ErrNoValidImages is the cause attached to empty-input failures
var ErrNoValidImages = errors.New("no valid images found in the archive")

// Error is a categorized application error
type Error struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Cause      error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation reports input that does not fit the requested mode (wrong file type, bad option)
func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, StatusCode: http.StatusBadRequest, Cause: cause}
}

// Decode reports an archive that could not be unpacked
func Decode(message string, cause error) *Error {
	return &Error{Kind: KindDecode, Message: message, StatusCode: http.StatusUnprocessableEntity, Cause: cause}
}

// EmptyInput reports an archive without any recognized image entries
func EmptyInput() *Error {
	return &Error{Kind: KindEmptyInput, Message: ErrNoValidImages.Error(), StatusCode: http.StatusUnprocessableEntity}
}

// Inference reports a failed generation call
func Inference(message string, cause error) *Error {
	return &Error{Kind: KindInference, Message: message, StatusCode: http.StatusBadGateway, Cause: cause}
}

// Unknown wraps anything that was not anticipated
func Unknown(cause error) *Error {
	msg := "an unknown error occurred"
	return &Error{Kind: KindUnknown, Message: msg, StatusCode: http.StatusInternalServerError, Cause: cause}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown for uncategorized errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode maps err to an HTTP status
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Wrap returns err unchanged when it is already categorized, otherwise as an unknown error
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Unknown(err)
}
