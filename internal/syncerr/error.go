package syncerr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error tags.
const (
	TagValidation      = "invalid-parameters"
	TagNotFound        = "not-found"
	TagUnsupported     = "unsupported-operation"
	TagVersionConflict = "version-conflict"
	TagTransient       = "transient"
)

type (
	// An Error represents the error format rendered by the server and recorded on failed queue items.
	Error struct {
		HTTPCode   int `json:"-"`
		FieldError err `json:"error"`
	}

	err struct {
		Tag     string `json:"tag,omitempty"`
		Message string `json:"message"`
	}
)

// New returns a new Error with the given code, tag and message.
func New(code int, tag, message string) *Error {
	return &Error{HTTPCode: code, FieldError: err{Tag: tag, Message: message}}
}

// Validation returns a caller error, never queued.
func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, TagValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an error for a missing record.
func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, TagNotFound, fmt.Sprintf(format, args...))
}

// Unsupported returns an error for an operation the entity never accepts.
func Unsupported(format string, args ...any) *Error {
	return New(http.StatusUnprocessableEntity, TagUnsupported, fmt.Sprintf(format, args...))
}

// VersionConflict returns an error for a write based on stale state.
func VersionConflict(format string, args ...any) *Error {
	return New(http.StatusConflict, TagVersionConflict, fmt.Sprintf(format, args...))
}

// Transient returns an error that may succeed on a later attempt.
func Transient(format string, args ...any) *Error {
	return New(http.StatusServiceUnavailable, TagTransient, fmt.Sprintf(format, args...))
}

// Error implements error interface.
func (e *Error) Error() string {
	return e.FieldError.Message
}

// Tag returns the machine readable tag of the error.
func (e *Error) Tag() string {
	return e.FieldError.Tag
}

// StatusCode returns the HTTP status code.
func StatusCode(err error) int {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.HTTPCode
	}
	return http.StatusInternalServerError
}

// KindOf returns the tag of err. Errors outside of this package are transient.
func KindOf(err error) string {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Tag()
	}
	return TagTransient
}

// Is returns true if err is tagged with tag.
func Is(err error, tag string) bool {
	return err != nil && KindOf(err) == tag
}

// IsPermanent returns true if retrying the failed operation will deterministically fail again.
func IsPermanent(err error) bool {
	return PermanentTag(KindOf(err))
}

// PermanentTag returns true if the tag denotes a failure that retrying can not fix.
func PermanentTag(tag string) bool {
	switch tag {
	case TagValidation, TagUnsupported, TagNotFound:
		return true
	}
	return false
}
