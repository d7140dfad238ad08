package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "validation with field",
			err:      NewValidationError("Username", "too long"),
			expected: "validation failed: Username - too long",
		},
		{
			name:     "validation without field",
			err:      NewValidationError("", "invalid user id"),
			expected: "validation failed: invalid user id",
		},
		{
			name:     "not found with message",
			err:      UserNotFound(7),
			expected: "user not found: id=7",
		},
		{
			name:     "not found without message",
			err:      NewNotFoundError("user", ""),
			expected: "user not found",
		},
		{
			name:     "internal with cause",
			err:      NewInternalError("failed to list users", stderrors.New("connection reset")),
			expected: "failed to list users: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		httpCode int
		grpcCode codes.Code
	}{
		{"validation", NewValidationError("", "bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"not found", UserNotFound(1), http.StatusNotFound, codes.NotFound},
		{"internal", NewInternalError("boom", nil), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)

			var hs HTTPStatuser
			require.True(t, stderrors.As(wrapped, &hs))
			assert.Equal(t, tt.httpCode, hs.HTTPStatus())

			st, ok := status.FromError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.grpcCode, st.Code())
		})
	}
}

func TestInternalError_DoesNotLeakCause(t *testing.T) {
	err := NewInternalError("failed to create user", stderrors.New("pq: password authentication failed"))

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, "failed to create user", st.Message())
	assert.ErrorContains(t, stderrors.Unwrap(err), "password authentication")
}
