// Package dberr defines the error taxonomy shared by every component of the
// engine: configuration, filesystem, serialization, communication,
// partitioning, query, and resource errors all wrap down to a single typed
// error carrying a stable code.
package dberr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure, independent of the message text.
type Code string

const (
	CodeConfig             Code = "DBERR_CONFIG"
	CodeFilesystem         Code = "DBERR_FILESYSTEM"
	CodeSerialization      Code = "DBERR_SERIALIZATION"
	CodeCommunication      Code = "DBERR_COMMUNICATION"
	CodeInvalidPartition   Code = "DBERR_INVALID_PARTITION"
	CodeQuery              Code = "DBERR_QUERY"
	CodeResource           Code = "DBERR_RESOURCE"
	CodeFeatureUnsupported Code = "DBERR_FEATURE_UNSUPPORTED"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: map[string]interface{}{}}
}

// Wrap attaches a code and message to an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err, Details: map[string]interface{}{}}
}

// WithDetail attaches a key/value pair used by diagnostics and NACK payloads.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the Code from err, or "" if err does not wrap an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
