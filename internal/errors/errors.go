// Package errors defines the error taxonomy shared by the bot platform:
// configuration problems, transport failures, dispatch failures and
// registry lookups. Every error carries a stable code usable by the API layer.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes for the application.
const (
	CodeUnknown       = "UNKNOWN"
	CodeConfiguration = "CONFIGURATION"
	CodeTransport     = "TRANSPORT"
	CodeDispatch      = "DISPATCH"
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidAction = "INVALID_ACTION"
	CodeConflict      = "CONFLICT"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ConfigurationError reports an invalid bot configuration. It keeps the full
// list of validation failures and the non-fatal warnings found alongside them.
type ConfigurationError struct {
	Errors   []string
	Warnings []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Errors, "; ")
}

func (e *ConfigurationError) Code() string {
	return CodeConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return nil
}

// NewConfigurationError builds a ConfigurationError from validation output.
func NewConfigurationError(errs, warnings []string) error {
	return &ConfigurationError{Errors: errs, Warnings: warnings}
}

// TransportError wraps a failure talking to the chat platform.
type TransportError struct {
	base Error
	Op   string
}

func (e *TransportError) Error() string {
	return e.base.Error()
}

func (e *TransportError) Code() string {
	return e.base.Code()
}

func (e *TransportError) Unwrap() error {
	return e.base.Unwrap()
}

func NewTransportError(op string, cause error) error {
	return &TransportError{
		Op: op,
		base: Error{
			code:    CodeTransport,
			message: "transport " + op + " failed",
			err:     cause,
		},
	}
}

// DispatchError is raised when rendering or sending a response to an inbound
// event fails. It never leaves the router; it only shapes logging.
type DispatchError struct {
	base    Error
	Trigger string
}

func (e *DispatchError) Error() string {
	return e.base.Error()
}

func (e *DispatchError) Code() string {
	return e.base.Code()
}

func (e *DispatchError) Unwrap() error {
	return e.base.Unwrap()
}

func NewDispatchError(trigger string, cause error) error {
	return &DispatchError{
		Trigger: trigger,
		base: Error{
			code:    CodeDispatch,
			message: fmt.Sprintf("dispatch of %q failed", trigger),
			err:     cause,
		},
	}
}

type NotFoundError struct {
	base Error
}

func (e *NotFoundError) Error() string {
	return e.base.Error()
}

func (e *NotFoundError) Code() string {
	return e.base.Code()
}

func (e *NotFoundError) Unwrap() error {
	return e.base.Unwrap()
}

func NewNotFoundError(id string) error {
	return &NotFoundError{
		base: Error{
			code:    CodeNotFound,
			message: fmt.Sprintf("bot instance %q not found", id),
		},
	}
}

type InvalidActionError struct {
	base Error
}

func (e *InvalidActionError) Error() string {
	return e.base.Error()
}

func (e *InvalidActionError) Code() string {
	return e.base.Code()
}

func (e *InvalidActionError) Unwrap() error {
	return e.base.Unwrap()
}

func NewInvalidActionError(message string) error {
	return &InvalidActionError{
		base: Error{
			code:    CodeInvalidAction,
			message: message,
		},
	}
}

// ConflictError reports a lifecycle transition that is not allowed from the
// instance's current state (for example, controlling a destroyed instance).
type ConflictError struct {
	base Error
}

func (e *ConflictError) Error() string {
	return e.base.Error()
}

func (e *ConflictError) Code() string {
	return e.base.Code()
}

func (e *ConflictError) Unwrap() error {
	return e.base.Unwrap()
}

func NewConflictError(message string) error {
	return &ConflictError{
		base: Error{
			code:    CodeConflict,
			message: message,
		},
	}
}
