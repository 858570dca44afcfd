// Package shared contains the error taxonomy shared by the proxy and the client.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// Sentinels identifying each error kind. Typed errors below report themselves
// as their sentinel through errors.Is.
var (
	// ErrTransport indicates that no response was obtained from a peer
	ErrTransport = errors.New("transport failure")

	// ErrAuth indicates that a bearer token could not be obtained or was rejected
	ErrAuth = errors.New("authorization failure")

	// ErrUpstream indicates that the resource server answered with a non-2xx status
	ErrUpstream = errors.New("upstream error")

	// ErrValidation indicates a business-rule or input rejection
	ErrValidation = errors.New("validation failed")
)

// ConnectivityMessage is shown to users when the server could not be reached.
const ConnectivityMessage = "It wasn't possible to connect to the server!"

// FetchFailedText is the body the proxy answers with when the upstream is unreachable.
// Clients recognise it as a connectivity failure.
const FetchFailedText = "fetch failed"

// UserNotFoundText is the upstream message for an unknown user.
const UserNotFoundText = "User not found"

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindTransport represents connectivity failures (possibly transient)
	KindTransport
	// KindAuth represents missing or rejected credentials
	KindAuth
	// KindUpstream represents non-2xx answers of the resource server
	KindUpstream
	// KindValidation represents business-rule rejections
	KindValidation
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportFailure"
	case KindAuth:
		return "AuthFailure"
	case KindUpstream:
		return "UpstreamError"
	case KindValidation:
		return "ValidationViolation"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// TransportError is returned when no response was obtained.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return FetchFailedText
	}
	return FetchFailedText + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports ErrTransport as the kind sentinel.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// AuthError is returned when a token is missing, could not be obtained or was rejected.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return ErrAuth.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is reports ErrAuth as the kind sentinel.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// UpstreamError carries a non-2xx status and the raw body text of the resource server.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream responded with status %d", e.Status)
	}
	return e.Body
}

// Is reports ErrUpstream as the kind sentinel.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// FieldViolation describes one rejected field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError groups field violations so callers can render field-level feedback.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as the kind sentinel.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Transport wraps err as a TransportError.
func Transport(err error) error {
	return &TransportError{Err: err}
}

// Auth builds an AuthError with the given message and optional cause.
func Auth(message string, cause error) error {
	return &AuthError{Message: message, Err: cause}
}

// Upstream builds an UpstreamError.
func Upstream(status int, body string) error {
	return &UpstreamError{Status: status, Body: body}
}

// Violation builds a ValidationError from field/message pairs.
// Violations are sorted by field to keep messages stable.
func Violation(fields map[string]string) error {
	vs := make([]FieldViolation, 0, len(fields))
	for f, m := range fields {
		vs = append(vs, FieldViolation{Field: f, Message: m})
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].Field < vs[j].Field })
	return &ValidationError{Violations: vs}
}

// kindPriorities defines the deterministic order for error classification.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, context.Canceled},
	{KindAuth, ErrAuth},
	{KindValidation, ErrValidation},
	{KindUpstream, ErrUpstream},
	{KindTransport, ErrTransport},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// For errors created with errors.Join, the first matching kind in priority order is returned.
// Returns KindUnknown for unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindAuth:
//	    return http.StatusUnauthorized
//	case shared.KindTransport:
//	    return http.StatusBadGateway
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return KindUnknown
}

// MarkKind converts err into the typed error for kind, preserving err as the cause.
// Errors that already carry the kind are returned unchanged. KindUpstream cannot be
// marked since it needs a status; err is returned as is.
func MarkKind(err error, kind Kind) error {
	if err == nil || KindOf(err) == kind {
		return err
	}
	switch kind {
	case KindTransport:
		return Transport(err)
	case KindAuth:
		return Auth(err.Error(), err)
	case KindValidation:
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}

// Classify guarantees that err belongs to the taxonomy. Anything unclassified,
// including deadlines and network errors, becomes a TransportError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindTransport, KindAuth, KindUpstream, KindValidation:
		return err
	}
	return Transport(err)
}

// IsTransport reports whether the error is a connectivity failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsAuth reports whether the error is an authorization failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsUpstream reports whether the error is a non-2xx upstream answer.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// IsViolation reports whether the error is a validation violation.
func IsViolation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUserNotFound reports whether the error is exactly the upstream 404 "User not found".
func IsUserNotFound(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Status == 404 && ue.Body == UserNotFoundText
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}

// UserMessage returns the text to show on a full-screen error state.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsTransport(err) {
		return ConnectivityMessage
	}
	return err.Error()
}
