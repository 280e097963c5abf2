package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/npezzotti/chat-relay/internal/server"
	"github.com/stretchr/testify/assert"
)

func TestNewRouteError(t *testing.T) {
	tcases := []struct {
		name    string
		err     error
		status  int
		code    server.ErrorCode
		message string
	}{
		{
			name:    "invalid message",
			err:     &server.RouteError{Code: server.CodeInvalidMessage},
			status:  http.StatusBadRequest,
			code:    server.CodeInvalidMessage,
			message: "bad request",
		},
		{
			name:    "room not found",
			err:     &server.RouteError{Code: server.CodeRoomNotFound},
			status:  http.StatusNotFound,
			code:    server.CodeRoomNotFound,
			message: "not found",
		},
		{
			name:    "persistence failure",
			err:     &server.RouteError{Code: server.CodePersistenceFailure, Err: errors.New("db down")},
			status:  http.StatusInternalServerError,
			code:    server.CodePersistenceFailure,
			message: "internal server error",
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			message: "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := NewRouteError(tc.err)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.message, apiErr.Message)
			assert.ErrorIs(t, apiErr, tc.err, "expected the cause to be kept")
		})
	}
}
