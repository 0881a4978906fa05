package apiclient

import (
	"errors"
	"fmt"
)

// ErrorCode classifies client-visible failures. NetworkError is the only
// class eligible for the local pattern-analysis fallback; everything else
// reflects a reachable server's verdict and must surface as-is.
type ErrorCode string

const (
	NetworkError   ErrorCode = "NETWORK_ERROR"
	RateLimited    ErrorCode = "RATE_LIMITED"
	FileTooLarge   ErrorCode = "FILE_TOO_LARGE"
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	AuthRequired   ErrorCode = "AUTH_REQUIRED"
	ServerError    ErrorCode = "SERVER_ERROR"
	ParseError     ErrorCode = "PARSE_ERROR"
)

// APIError is a classified request failure.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }

// CodeOf extracts the error code, or empty string for unclassified errors.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsNetworkError reports whether the failure never reached the server.
func IsNetworkError(err error) bool {
	return CodeOf(err) == NetworkError
}
