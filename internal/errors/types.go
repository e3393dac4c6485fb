package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeResolve  ErrorType = "resolve"
	ErrorTypeProtocol ErrorType = "protocol"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error type with build context.
type Error struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	SourceID  string
	Specifier string
	FilePath  string
	Line      int
	Column    int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	location := e.FilePath
	if location == "" {
		location = e.SourceID
	}
	if location != "" {
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *Error) WithLocation(filePath string, line, column int) *Error {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithSource records the module the error belongs to.
func (e *Error) WithSource(sourceID string) *Error {
	e.SourceID = sourceID

	return e
}

// WithSpecifier records the import specifier involved.
func (e *Error) WithSpecifier(specifier string) *Error {
	e.Specifier = specifier

	return e
}

// Error creation functions

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewParseError creates a parse error for a malformed document or module.
func NewParseError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeParse,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewResolveError creates an unresolved-specifier error.
func NewResolveError(sourceID, specifier string) *Error {
	return &Error{
		Type:      ErrorTypeResolve,
		Code:      ErrCodeUnresolvedSpecifier,
		Message:   fmt.Sprintf("unresolved specifier %q in module %s", specifier, sourceID),
		SourceID:  sourceID,
		Specifier: specifier,
	}
}

// NewProtocolError creates an error for misuse of the build protocol.
func NewProtocolError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeProtocol,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Type == errType
	}

	return false
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return IsType(err, ErrorTypeParse)
}

// IsResolveError checks if an error is an unresolved specifier.
func IsResolveError(err error) bool {
	return IsType(err, ErrorTypeResolve)
}

// IsProtocolError checks if an error is a protocol misuse.
func IsProtocolError(err error) bool {
	return IsType(err, ErrorTypeProtocol)
}

// ErrorHandler provides centralized error reporting.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error with fields drawn from its structure.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *Error
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch te.Type {
	case ErrorTypeProtocol:
		h.logger.Warn(ctx, te, "Build protocol misuse",
			"type", te.Type,
			"code", te.Code)
	case ErrorTypeParse, ErrorTypeResolve:
		h.logger.Error(ctx, te, "Module failed to compile",
			"type", te.Type,
			"code", te.Code,
			"source", te.SourceID,
			"specifier", te.Specifier,
			"file", te.FilePath)
	default:
		h.logger.Error(ctx, te, "Build failed",
			"type", te.Type,
			"code", te.Code,
			"file", te.FilePath)
	}
}

// Common error codes.
const (
	ErrCodeFileNotFound        = "ERR_FILE_NOT_FOUND"
	ErrCodeReadFailed          = "ERR_READ_FAILED"
	ErrCodeWriteFailed         = "ERR_WRITE_FAILED"
	ErrCodeMkdirFailed         = "ERR_MKDIR_FAILED"
	ErrCodeImportMapMissing    = "ERR_IMPORT_MAP_MISSING"
	ErrCodeImportMapInvalid    = "ERR_IMPORT_MAP_INVALID"
	ErrCodeSyntax              = "ERR_SYNTAX"
	ErrCodeUnresolvedSpecifier = "ERR_UNRESOLVED_SPECIFIER"
	ErrCodeBuildInFlight       = "ERR_BUILD_IN_FLIGHT"
	ErrCodeBarrierClosed       = "ERR_BARRIER_CLOSED"
	ErrCodeBarrierDrained      = "ERR_BARRIER_DRAINED"
	ErrCodeDrainTimeout        = "ERR_DRAIN_TIMEOUT"
	ErrCodeInvalidRouteData    = "ERR_INVALID_ROUTE_DATA"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeInternalError       = "ERR_INTERNAL"
)
