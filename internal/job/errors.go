package job

import "fmt"

// Code classifies job errors.
type Code string

const (
	CodeConnectionTimeout  Code = "CONNECTION_TIMEOUT"
	CodeHeartbeatTimeout   Code = "HEARTBEAT_TIMEOUT"
	CodeUniversalTimeout   Code = "UNIVERSAL_TIMEOUT"
	CodeStreamError        Code = "STREAM_ERROR"
	CodeParseError         Code = "PARSE_ERROR"
	CodeRetryFailed        Code = "RETRY_FAILED"
	CodeCancelNotifyFailed Code = "CANCEL_NOTIFY_FAILED"
)

// Fatal reports whether errors of this code terminate the session.
func (c Code) Fatal() bool {
	switch c {
	case CodeConnectionTimeout, CodeHeartbeatTimeout, CodeUniversalTimeout, CodeStreamError:
		return true
	}
	return false
}

// Error is the {code, message} pair surfaced to consumers.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewError creates an error, wrapping cause when given.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "job error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
