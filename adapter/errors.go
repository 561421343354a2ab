package adapter

import (
	"errors"
	"fmt"
)

// Error types carried by Error.Type
const (
	TypeNotFound   = "E_NOT_FOUND"
	TypeBadRequest = "E_BAD_REQUEST"
)

// ErrNotConnected is returned by operations invoked before Connect
var ErrNotConnected = errors.New("adapter is not connected")

// ServiceSchemaError reports an invalid adapter or service definition.
// It is raised by Init and is fatal at startup.
type ServiceSchemaError struct {
	Message string
}

func (e *ServiceSchemaError) Error() string {
	return e.Message
}

// Error is a request-level failure with an HTTP-like status code
type Error struct {
	Message string
	Code    int
	Type    string
	Data    map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Code, e.Type)
}

// NewNotFoundError builds the 404 returned for missing entities
func NewNotFoundError(data map[string]interface{}) *Error {
	return &Error{Message: "Entity not found", Code: 404, Type: TypeNotFound, Data: data}
}

// NewBadRequestError builds a 400 error
func NewBadRequestError(message string) *Error {
	return &Error{Message: message, Code: 400, Type: TypeBadRequest}
}

// IsNotFound reports whether err is an entity not-found error
func IsNotFound(err error) bool {
	return hasType(err, TypeNotFound)
}

// IsBadRequest reports whether err is a bad-request error
func IsBadRequest(err error) bool {
	return hasType(err, TypeBadRequest)
}

func hasType(err error, typ string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == typ
}
