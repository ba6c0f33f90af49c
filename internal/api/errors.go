package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-alumnichat/internal/messaging"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
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

func lower(s string) string {
	return strings.ToLower(s)
}

func newStatusError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newStatusError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newStatusError(http.StatusNotFound)
}

func NewUnauthorizedError() *ApiError {
	return newStatusError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newStatusError(http.StatusForbidden)
}

func NewServiceUnavailableError(err error) *ApiError {
	e := newStatusError(http.StatusServiceUnavailable)
	e.Err = err
	return e
}

func NewInternalServerError(err error) *ApiError {
	e := newStatusError(http.StatusInternalServerError)
	e.Err = err
	return e
}

// FromServiceError converts a messaging error into the HTTP envelope. The
// message of an internal error is never exposed.
func FromServiceError(err error) *ApiError {
	status := messaging.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: status,
		Message:    messaging.PublicMessage(err),
		Err:        err,
	}
}
