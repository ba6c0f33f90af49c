package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeSelfConversation Code = "SELF_CONVERSATION"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
)

var (
	ErrSelfConversation = New(CodeSelfConversation, "cannot start a conversation with yourself")
	ErrForbidden        = New(CodeForbidden, "you can only message users you are connected with")
	ErrNotFound         = New(CodeNotFound, "not found")
	ErrValidation       = New(CodeValidation, "invalid request")
)

// AppError is the error type returned by Service. Two AppErrors match with
// errors.Is when their codes are equal.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Validation(msg string) error {
	return New(CodeValidation, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf reports the code carried by err, or CodeInternal for errors that
// did not originate here.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to the status code used by the HTTP and websocket
// layers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeSelfConversation, CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to a client. Internal causes
// are hidden.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
