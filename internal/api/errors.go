package api

import (
	"errors"
	"fmt"
	"net/http"

	"moalmanac-api/internal/about"
	"moalmanac-api/internal/resolver"
)

// ErrBadRequest marks a malformed or missing required parameter.
var ErrBadRequest = errors.New("bad request")

// requestError carries the message shown to the client alongside the error
// class used to pick the status code.
type requestError struct {
	message string
	err     error
}

func (e *requestError) Error() string { return e.message }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{message: fmt.Sprintf(format, args...), err: ErrBadRequest}
}

func notFound(format string, args ...any) error {
	return &requestError{message: fmt.Sprintf(format, args...), err: resolver.ErrNotFound}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrNotFound), errors.Is(err, about.ErrMissing):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageForError returns the client-facing message. Internal failures get
// fallback so storage details never reach the response.
func messageForError(err error, fallback string) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.message
	}
	return fallback
}
