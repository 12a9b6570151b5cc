package sdk

import "encoding/json"

// Envelope is the common REST response shape.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// StreamRequest describes a stream endpoint call.
type StreamRequest struct {
	// Method is GET or POST; defaults to POST.
	Method string
	Path   string
	// Payload is sent as the JSON body of POST requests.
	Payload interface{}
	// RequestID is sent as the X-Request-ID header when set.
	RequestID string
	Headers   map[string]string
}

// CancelRequest mirrors POST /scenario/cancel.
type CancelRequest struct {
	RequestID string `json:"requestId"`
}

// RetryRequest mirrors POST /{requestId}/retry.
type RetryRequest struct {
	MessageType string `json:"messageType"`
}
