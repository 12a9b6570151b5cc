package sdk

import "fmt"

// HTTPError wraps non-2xx responses.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	if e.Body != "" {
		return fmt.Sprintf("request failed: %s (%d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request failed: %s (%d)", e.Status, e.StatusCode)
}

// StatusError reports a 2xx response whose envelope carries a non-200
// statusCode.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "status error"
	}
	if e.Message != "" {
		return fmt.Sprintf("request rejected (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request rejected (%d)", e.StatusCode)
}
