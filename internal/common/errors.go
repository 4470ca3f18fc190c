package common

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation Code = "validation"
	CodeForbidden  Code = "forbidden"
	CodeState      Code = "state"
	CodeCapacity   Code = "capacity"
	CodeConflict   Code = "conflict"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal"
)

type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

func NewValidationError(message string, fields map[string]string) error {
	return &Error{Code: CodeValidation, Message: message, Fields: fields}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code == code
	}
	return false
}
