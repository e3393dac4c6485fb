package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating an *Error if the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}

	// Keep the location of an existing *Error so diagnostics still point at the file
	var te *Error
	if errors.As(err, &te) {
		return &Error{
			Type:      errType,
			Code:      code,
			Message:   message,
			Cause:     te,
			Context:   cloneContext(te.Context),
			SourceID:  te.SourceID,
			Specifier: te.Specifier,
			FilePath:  te.FilePath,
			Line:      te.Line,
			Column:    te.Column,
		}
	}

	return &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapIO wraps an error as an I/O error for the given path.
func WrapIO(err error, code, message, path string) *Error {
	wrapped := Wrap(err, ErrorTypeIO, code, message)
	if wrapped != nil {
		wrapped.FilePath = path
	}
	return wrapped
}

// Source returns the module ID carried by err, if any.
func Source(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.SourceID
	}
	return ""
}

func cloneContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
