package models

import (
	"errors"
	"fmt"
)

// ErrNoData is returned by queries issued before any workbook has been loaded
var ErrNoData = errors.New("no result data loaded")

// ConfigError represents missing or invalid startup configuration
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
	}
	return "configuration error: " + e.Message
}

// IsTransient returns false as configuration errors are fatal
func (e *ConfigError) IsTransient() bool {
	return false
}

// AuthReason distinguishes bad input from bad credentials for logging
type AuthReason string

const (
	AuthReasonEmptyCredentials   AuthReason = "empty credentials"
	AuthReasonInvalidCredentials AuthReason = "invalid credentials"
)

// AuthError represents a rejected login attempt
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return "authentication failed: " + string(e.Reason)
}

// IsTransient returns false, the caller must re-prompt
func (e *AuthError) IsTransient() bool {
	return false
}

// FormatError represents a workbook that does not match the expected layout.
// Row is the 1-based spreadsheet row, zero when the error is not row specific.
type FormatError struct {
	Sheet   string
	Row     int
	Message string
	Cause   error
}

func (e *FormatError) Error() string {
	msg := e.Message
	switch {
	case e.Sheet != "" && e.Row > 0:
		msg = fmt.Sprintf("sheet %q row %d: %s", e.Sheet, e.Row, e.Message)
	case e.Sheet != "":
		msg = fmt.Sprintf("sheet %q: %s", e.Sheet, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("format error: %s: %v", msg, e.Cause)
	}
	return "format error: " + msg
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// IsTransient returns false, a different file is needed
func (e *FormatError) IsTransient() bool {
	return false
}

// IOError represents a workbook that could not be read or written
type IOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("io error: %s: %v", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true, the upload may be retried
func (e *IOError) IsTransient() bool {
	return true
}

// IsConfigError reports whether err wraps a ConfigError
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsAuthError reports whether err wraps an AuthError
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsFormatError reports whether err wraps a FormatError
func IsFormatError(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsIOError reports whether err wraps an IOError
func IsIOError(err error) bool {
	var target *IOError
	return errors.As(err, &target)
}
