package charm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "provider error without status",
			err:  &AuthProviderError{Body: "connection refused"},
			want: "token refresh failed: connection refused",
		},
		{
			name: "provider error with status",
			err:  &AuthProviderError{Status: 400, Body: "invalid_grant"},
			want: "token refresh failed: status 400: invalid_grant",
		},
		{
			name: "auth error terminal",
			err:  &AuthError{Status: 401},
			want: "request unauthorized after token refresh (status 401)",
		},
		{
			name: "client error",
			err:  &ClientError{Status: 404, Message: "patient not found"},
			want: "API client error: status 404: patient not found",
		},
		{
			name: "server error",
			err:  &ServerError{Status: 503, Message: "maintenance"},
			want: "API server error: status 503: maintenance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("root cause")

	var authErr *AuthError
	wrapped := &AuthError{Status: 401, Cause: cause}
	require.ErrorAs(t, wrapped, &authErr)
	assert.True(t, errors.Is(wrapped, cause))

	var transportErr *TransportError
	tErr := &TransportError{Op: "GET /patients", Cause: cause}
	require.ErrorAs(t, tErr, &transportErr)
	assert.True(t, errors.Is(tErr, cause))

	var protoErr *ProtocolError
	pErr := &ProtocolError{Status: 200, Cause: cause}
	require.ErrorAs(t, pErr, &protoErr)
	assert.True(t, errors.Is(pErr, cause))
}

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "2xx is not an error",
			status: 200,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:   "4xx is a client error",
			status: 404,
			check: func(t *testing.T, err error) {
				var clientErr *ClientError
				require.ErrorAs(t, err, &clientErr)
			},
		},
		{
			name:   "5xx is a server error",
			status: 502,
			check: func(t *testing.T, err error) {
				var serverErr *ServerError
				require.ErrorAs(t, err, &serverErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, translateStatus(tt.status, "body"))
		})
	}
}

func TestIsAuthRejection(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want bool
	}{
		{"401 is a rejection", &Response{Status: 401}, true},
		{"200 is not", &Response{Status: 200}, false},
		{"400 with token expired body is", &Response{Status: 400, Body: []byte(`{"error":"Token expired"}`)}, true},
		{"400 with invalid token body is", &Response{Status: 400, Body: []byte(`{"error":"Invalid Token supplied"}`)}, true},
		{"400 with other body is not", &Response{Status: 400, Body: []byte(`{"error":"bad date format"}`)}, false},
		{"403 is not", &Response{Status: 403}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAuthRejection(tt.resp))
		})
	}
}
