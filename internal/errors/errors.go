package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies an error for propagation and rendering decisions.
type Kind int

const (
	// KindInvalid - the request is malformed; carries a JSON pointer to the field
	KindInvalid Kind = iota
	// KindAccessDenied - the entity exists but is outside the account's scope
	KindAccessDenied
	// KindNotFound - the entity does not exist
	KindNotFound
	// KindConflict - concurrent state mutation detected
	KindConflict
	// KindRateLimited - a cooldown is active
	KindRateLimited
	// KindUnavailable - transient upstream failure, retried by the gateway
	KindUnavailable
	// KindInternal - unexpected failure, surfaced with an incident id
	KindInternal
)

// Error is the structured error used across the mining pipeline.
type Error struct {
	Kind       Kind
	Message    string
	Pointer    string // JSON pointer to the offending request field, KindInvalid only
	IncidentID string // set for KindInternal
	Cause      error
	Context    map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on the Kind so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair for logging.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	e := &Error{Kind: kind, Message: message}
	if kind == KindInternal {
		e.IncidentID = uuid.NewString()
	}
	return e
}

// Wrap attaches a cause. Returns nil when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(kind, message)
	e.Cause = err
	return e
}

// Invalid creates a request-invalid error pointing at a request field.
// The pointer uses the upstream convention, e.g. ".metrics".
func Invalid(pointer, format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalid,
		Message: fmt.Sprintf(format, args...),
		Pointer: pointer,
	}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// AccessDenied creates an account/repository scope violation error.
func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, fmt.Sprintf(format, args...))
}

// Conflict creates a concurrent-mutation error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps a transient upstream failure.
func Unavailable(err error, format string, args ...any) *Error {
	return Wrap(err, KindUnavailable, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure and mints an incident id.
func Internal(err error, format string, args ...any) *Error {
	return Wrap(err, KindInternal, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the error may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindUnavailable || KindOf(err) == KindRateLimited
}

// Problem is the RFC 7807 style document every external failure becomes.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Pointer  string `json:"pointer,omitempty"`
}

var kindProblems = map[Kind]struct {
	uri    string
	title  string
	status int
}{
	KindInvalid:      {"/errors/InvalidRequestError", "Bad Request", http.StatusBadRequest},
	KindAccessDenied: {"/errors/ForbiddenError", "Forbidden", http.StatusForbidden},
	KindNotFound:     {"/errors/NotFoundError", "Not Found", http.StatusNotFound},
	KindConflict:     {"/errors/DatabaseConflict", "Conflict", http.StatusConflict},
	KindRateLimited:  {"/errors/RateLimitExceeded", "Too Many Requests", http.StatusTooManyRequests},
	KindUnavailable:  {"/errors/ServiceUnavailable", "Service Unavailable", http.StatusServiceUnavailable},
	KindInternal:     {"/errors/InternalServerError", "Internal Server Error", http.StatusInternalServerError},
}

// ToProblem renders an error chain as a problem document.
func ToProblem(err error) Problem {
	kind := KindOf(err)
	meta := kindProblems[kind]
	p := Problem{
		Type:   meta.uri,
		Title:  meta.title,
		Status: meta.status,
		Detail: err.Error(),
	}
	var e *Error
	if errors.As(err, &e) {
		p.Pointer = e.Pointer
		if e.IncidentID != "" {
			p.Instance = "/incidents/" + e.IncidentID
		}
	}
	return p
}

// Details renders the context map for logs.
func (e *Error) Details() string {
	if len(e.Context) == 0 {
		return e.Error()
	}
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString(" (")
	first := true
	for k, v := range e.Context {
		if !first {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, v)
		first = false
	}
	sb.WriteString(")")
	return sb.String()
}
