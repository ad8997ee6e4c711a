package freshdesk

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failed Freshdesk call.
type Kind int

const (
	// KindUnknown is the fallback for statuses without a dedicated kind.
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindAccessDenied
	KindNotFound
	KindMethodNotAllowed
	KindUnsupportedAcceptHeader
	KindConflictingState
	KindUnsupportedContent
	KindRateLimit
	// KindServer is a plain 500. It is also a KindServer5xx.
	KindServer
	// KindServer5xx covers any other status above 500.
	KindServer5xx
	// KindNetwork covers timeouts and connection failures.
	KindNetwork
	// KindConfiguration is raised before any network call is made.
	KindConfiguration
)

var kindNames = map[Kind]string{
	KindUnknown:                 "FreshdeskError",
	KindValidation:              "ValidationError",
	KindAuthentication:          "AuthenticationError",
	KindAccessDenied:            "AccessDeniedError",
	KindNotFound:                "NotFoundError",
	KindMethodNotAllowed:        "MethodNotAllowedError",
	KindUnsupportedAcceptHeader: "UnsupportedAcceptHeaderError",
	KindConflictingState:        "ConflictingStateError",
	KindUnsupportedContent:      "UnsupportedContentError",
	KindRateLimit:               "RateLimitError",
	KindServer:                  "ServerError",
	KindServer5xx:               "Server5xxError",
	KindNetwork:                 "NetworkError",
	KindConfiguration:           "ConfigurationError",
}

// String returns the name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Retryable reports whether the backoff layer may retry a call that failed
// with this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindServer, KindServer5xx, KindNetwork:
		return true
	}
	return false
}

// Common errors, for use with errors.Is.
var (
	ErrUnknown                 = &Error{Kind: KindUnknown}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrAuthentication          = &Error{Kind: KindAuthentication}
	ErrAccessDenied            = &Error{Kind: KindAccessDenied}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrMethodNotAllowed        = &Error{Kind: KindMethodNotAllowed}
	ErrUnsupportedAcceptHeader = &Error{Kind: KindUnsupportedAcceptHeader}
	ErrConflictingState        = &Error{Kind: KindConflictingState}
	ErrUnsupportedContent      = &Error{Kind: KindUnsupportedContent}
	ErrRateLimit               = &Error{Kind: KindRateLimit}
	ErrServer                  = &Error{Kind: KindServer}
	ErrServer5xx               = &Error{Kind: KindServer5xx}
	ErrNetwork                 = &Error{Kind: KindNetwork}
	ErrConfiguration           = &Error{Kind: KindConfiguration}
)

// Error is a classified Freshdesk failure
type Error struct {
	Kind       Kind
	StatusCode int
	// Code is the API specific sub-code from the response body, if any.
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		if e.Err != nil {
			return fmt.Sprintf("freshdesk network error: %v", e.Err)
		}
		return "freshdesk network error: " + e.Message
	case KindConfiguration:
		return "freshdesk configuration error: " + e.Message
	}
	return fmt.Sprintf("HTTP-error-code: %s, Error: %s", e.ErrorCode(), e.Message)
}

// ErrorCode returns the status code, followed by the API sub-code when present.
func (e *Error) ErrorCode() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// Unwrap returns the underlying transport error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind. A KindServer error also matches ErrServer5xx.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindServer5xx && e.Kind == KindServer
}

// Retryable reports whether the failure is transient
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var fdErr *Error
	if errors.As(err, &fdErr) {
		return fdErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient classified failure
func IsRetryable(err error) bool {
	var fdErr *Error
	if errors.As(err, &fdErr) {
		return fdErr.Retryable()
	}
	return false
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}
