package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/chat-relay/internal/server"
)

type ApiError struct {
	StatusCode int              `json:"status_code"`
	Message    string           `json:"message"`
	Code       server.ErrorCode `json:"code,omitempty"`
	Err        error            `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    strings.ToLower(http.StatusText(status)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

// NewRouteError carries the chat server's error code over to HTTP. Errors
// that are not route errors become 500s.
func NewRouteError(err error) *ApiError {
	var routeErr *server.RouteError
	if !errors.As(err, &routeErr) {
		return NewInternalServerError(err)
	}

	apiErr := newApiError(routeErr.Status(), err)
	apiErr.Code = routeErr.Code
	return apiErr
}
