package charm

import (
	"fmt"
)

// AuthProviderError indicates the token refresh call itself failed: the
// identity provider rejected the refresh_token grant or was unreachable.
type AuthProviderError struct {
	Status int
	Body   string
}

func (e *AuthProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token refresh failed: %s", e.Body)
	}
	return fmt.Sprintf("token refresh failed: status %d: %s", e.Status, e.Body)
}

// AuthError indicates a resource call was still unauthorized after one
// token refresh and retry. Terminal for the invocation.
type AuthError struct {
	Status int
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("request unauthorized: %v", e.Cause)
	}
	return fmt.Sprintf("request unauthorized after token refresh (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ClientError is a caller-correctable 4xx API failure, e.g. an unknown
// patient ID or an invalid payload.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("API client error: status %d: %s", e.Status, e.Message)
}

// ServerError is a 5xx upstream fault.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("API server error: status %d: %s", e.Status, e.Message)
}

// ProtocolError indicates the API returned a body that could not be parsed
// as the expected JSON shape.
type ProtocolError struct {
	Status int
	Cause  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed API response (status %d): %v", e.Status, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// TransportError is a network-level failure: connection refused, DNS
// failure, or a request timeout.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// translateStatus maps a non-2xx, non-auth response to the error taxonomy.
func translateStatus(status int, body string) error {
	switch {
	case status >= 500:
		return &ServerError{Status: status, Message: body}
	case status >= 400:
		return &ClientError{Status: status, Message: body}
	default:
		return nil
	}
}
