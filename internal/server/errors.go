package server

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeInvalidMessage     ErrorCode = "invalid_message"
	CodeRoomNotFound       ErrorCode = "room_not_found"
	CodePersistenceFailure ErrorCode = "persistence_failure"
	CodeNotSignedIn        ErrorCode = "not_signed_in"
)

func (c ErrorCode) status() int {
	switch c {
	case CodeInvalidMessage:
		return http.StatusBadRequest
	case CodeRoomNotFound:
		return http.StatusNotFound
	case CodeNotSignedIn:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RouteError is returned by the router and reported to the originating
// connection as a messageError event.
type RouteError struct {
	Code ErrorCode
	Err  error
}

func (e *RouteError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Status is the HTTP status matching the error code.
func (e *RouteError) Status() int {
	return e.Code.status()
}

func (e *RouteError) response(id int) *ServerMessage {
	switch e.Code {
	case CodeInvalidMessage:
		return ErrInvalidMessage(id)
	case CodeRoomNotFound:
		return ErrRoomNotFound(id)
	default:
		return ErrPersistenceFailure(id)
	}
}
