package bare

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrIncompatibleGateway is returned when the gateway shares no protocol version with the client.
	ErrIncompatibleGateway = errors.New("incompatible gateway")

	// ErrCapabilityFetch is returned when the capability document could not be fetched or parsed.
	ErrCapabilityFetch = errors.New("capability fetch failed")

	// ErrProtocolEnvelope is returned when a gateway response is not a valid envelope.
	ErrProtocolEnvelope = errors.New("protocol envelope error")

	// ErrRedirect is returned when a redirect cannot be followed under the active policy.
	ErrRedirect = errors.New("redirect error")

	// ErrCancelled is returned when the caller's context ended the operation.
	ErrCancelled = errors.New("cancelled")

	// ErrTargetDenied is returned when a remote URL is refused before it is sent.
	ErrTargetDenied = errors.New("target denied")
)

// IncompatibleGatewayError is returned by Select when no known version is offered.
type IncompatibleGatewayError struct {
	// Offered is the version list advertised by the gateway.
	Offered []string
}

func (e *IncompatibleGatewayError) Error() string {
	return fmt.Sprintf("unable to find compatible client version (gateway offers [%s], client supports [%s])",
		strings.Join(e.Offered, ", "), strings.Join(SupportedVersions(), ", "))
}

// Is supports errors.Is(err, ErrIncompatibleGateway).
func (e *IncompatibleGatewayError) Is(target error) bool {
	return target == ErrIncompatibleGateway
}

// CapabilityFetchError is returned when the gateway's capability document is unavailable.
type CapabilityFetchError struct {
	// Status is the HTTP status of the discovery response, 0 if none was received.
	Status int
	// Body is the response body for non-2xx statuses.
	Body string
	// Cause is the underlying transport or decoding error.
	Cause error
}

func (e *CapabilityFetchError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("unable to fetch bare meta: %v", e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("unable to fetch bare meta: %d %s", e.Status, e.Body)
	default:
		return "unable to fetch bare meta"
	}
}

// Unwrap returns the underlying cause.
func (e *CapabilityFetchError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrCapabilityFetch).
func (e *CapabilityFetchError) Is(target error) bool {
	return target == ErrCapabilityFetch
}

// ProtocolEnvelopeError reports a structurally invalid gateway response.
type ProtocolEnvelopeError struct {
	// Version is the codec that rejected the response.
	Version string
	// Field names the missing or malformed envelope field.
	Field string
	// Reason is a short description.
	Reason string
	// Cause is the parse error, if any.
	Cause error
}

func (e *ProtocolEnvelopeError) Error() string {
	msg := fmt.Sprintf("bare %s: %s: %s", e.Version, e.Field, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProtocolEnvelopeError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrProtocolEnvelope).
func (e *ProtocolEnvelopeError) Is(target error) bool {
	return target == ErrProtocolEnvelope
}

// RedirectError is returned when a redirect cannot be followed.
type RedirectError struct {
	// URL is the URL whose response was the redirect.
	URL string
	// Reason is why the redirect was rejected.
	Reason string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %s", e.URL, e.Reason)
}

// Is supports errors.Is(err, ErrRedirect).
func (e *RedirectError) Is(target error) bool {
	return target == ErrRedirect
}

// CancelledError is returned when the caller's context is done.
type CancelledError struct {
	// Cause is the context error.
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cancelled: %v", e.Cause)
	}
	return "cancelled"
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrCancelled).
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// TargetDeniedError is returned when a client-side rule refuses a remote URL.
type TargetDeniedError struct {
	// URL is the refused remote URL.
	URL string
	// Rule is the rule that refused it.
	Rule string
	// Cause is set when the rule could not be evaluated.
	Cause error
}

func (e *TargetDeniedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("target %s denied: rule %q failed: %v", e.URL, e.Rule, e.Cause)
	}
	return fmt.Sprintf("target %s denied by rule %q", e.URL, e.Rule)
}

// Unwrap returns the evaluation error, if any.
func (e *TargetDeniedError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrTargetDenied).
func (e *TargetDeniedError) Is(target error) bool {
	return target == ErrTargetDenied
}
