package gateway

import (
	"context"
	"time"
)

// Gateway defines the interface for delivering one message to one recipient
// identifier through a chat-messaging provider.
type Gateway interface {
	// Send delivers the text to the identifier and returns the outcome.
	// Transport-level failures and non-success statuses are returned as
	// errors; the caller decides retryability via the classifier.
	Send(ctx context.Context, identifier, text string) (*Outcome, error)
	// Name returns the gateway's identifier (e.g., "vonage", "stdout").
	Name() string
	// HealthCheck verifies the gateway is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a gateway API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Outcome contains the result of an accepted delivery.
type Outcome struct {
	ProviderMessageID string
	StatusCode        int
	ProviderMessage   string
	Timestamp         time.Time
}
