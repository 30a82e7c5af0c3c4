package manager

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CodeValidation is returned when request input or source layout is invalid.
	CodeValidation = "VALIDATION"
	// CodeAlreadyExists is returned when a server name is taken and force is off.
	CodeAlreadyExists = "ALREADY_EXISTS"
	// CodeNotFound is returned when a server or platform id is unknown.
	CodeNotFound = "NOT_FOUND"
	// CodeInstallFailed is returned when environment creation or teardown fails.
	CodeInstallFailed = "INSTALL_FAILED"
	// CodeConfigFailed is returned when a platform config cannot be read or written.
	CodeConfigFailed = "CONFIG_FAILED"
	// CodeTimeout is returned when a subprocess exceeds its deadline.
	CodeTimeout = "TIMEOUT"
	// CodePartialRemoval is returned when removal finished for only some platforms.
	CodePartialRemoval = "PARTIAL_REMOVAL"
)

// Error is the structured failure type that flows from every component to the
// CLI without losing the machine-readable code or the subprocess stderr that
// explains it.
type Error struct {
	Code     string
	Message  string
	Server   string
	Platform string
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return CodeInstallFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = CodeInstallFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &Error{Code: cleanCode, Message: cleanMsg, Cause: cause}
}

func errorf(code, format string, args ...any) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// CodeOf extracts the machine code from err, or "" when err carries none.
func CodeOf(err error) string {
	var mErr *Error
	if errors.As(err, &mErr) && mErr != nil {
		return mErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given machine code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
