package gateway

import (
	"errors"
)

// GatewayError wraps a provider API error with classification metadata.
type GatewayError struct {
	// Gateway is the name of the gateway that returned the error.
	Gateway string
	// StatusCode is the HTTP status code from the gateway API.
	StatusCode int
	// Message is the error description from the gateway API.
	Message string
	// Permanent indicates the error will not succeed on retry. The
	// sandbox tier's "not whitelisted" rejection falls in this class.
	Permanent bool
}

func (e *GatewayError) Error() string {
	return e.Gateway + ": " + e.Message
}

// IsPermanent returns true if the error is a permanent rejection that must
// not be retried.
func IsPermanent(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Permanent
	}
	return false
}

// IsTransient returns true if the error is a temporary failure that may
// succeed on retry.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return !ge.Permanent
	}
	// Transport-level errors carry no status code and are retryable.
	return true
}

// ClassifyHTTPError creates a GatewayError from an HTTP status code and
// response body, classifying it as permanent or transient. Returns nil for
// success statuses.
func ClassifyHTTPError(gatewayName string, statusCode int, body string) *GatewayError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	ge := &GatewayError{
		Gateway:    gatewayName,
		StatusCode: statusCode,
		Message:    body,
	}

	switch {
	case statusCode == 429:
		// Rate limited - always transient.
		ge.Permanent = false

	case statusCode >= 400 && statusCode < 500:
		// Client-side rejections (malformed identifier, sandbox
		// whitelist) will not change on retry.
		ge.Permanent = true

	default:
		// 5xx and anything else: assume transient to avoid dropping
		// recoverable deliveries.
		ge.Permanent = false
	}

	return ge
}
