package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeCompilation   ErrorType = "compilation"
	ErrorTypeExpansion     ErrorType = "expansion"
	ErrorTypeBinding       ErrorType = "binding"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeInternal      ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeMissingTag        = "ERR_MISSING_TAG"
	ErrCodeDuplicateTag      = "ERR_DUPLICATE_TAG"
	ErrCodeNotComposite      = "ERR_NOT_COMPOSITE"
	ErrCodeNoData            = "ERR_NO_DATA"
	ErrCodeUnknownPath       = "ERR_UNKNOWN_PATH"
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodeUnbalancedTag     = "ERR_UNBALANCED_TAG"
	ErrCodeUnbalancedBlock   = "ERR_UNBALANCED_BLOCK"
	ErrCodeBadStatement      = "ERR_BAD_STATEMENT"
	ErrCodeBadExpression     = "ERR_BAD_EXPRESSION"
	ErrCodeEvaluation        = "ERR_EVALUATION"
	ErrCodeExpansionOverflow = "ERR_EXPANSION_OVERFLOW"
	ErrCodeIncludeCycle      = "ERR_INCLUDE_CYCLE"
	ErrCodeBindingMiss       = "ERR_BINDING_MISS"
	ErrCodeBadHandler        = "ERR_BAD_HANDLER"
	ErrCodeRenderLoop        = "ERR_RENDER_LOOP"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeDecode            = "ERR_DECODE"
	ErrCodeRequestFailed     = "ERR_REQUEST_FAILED"
	ErrCodeServerFailed      = "ERR_SERVER_FAILED"
	ErrCodeUnknownSession    = "ERR_UNKNOWN_SESSION"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// WispError is a structured error type with context.
type WispError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *WispError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" || e.Line > 0 {
		location := e.FilePath
		if location == "" {
			location = "template"
		}
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
func (e *WispError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *WispError) Is(target error) bool {
	var t *WispError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *WispError) WithContext(key string, value interface{}) *WispError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *WispError) WithLocation(filePath string, line, column int) *WispError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *WispError) WithComponent(component string) *WispError {
	e.Component = component

	return e
}

// WithCause sets the underlying error.
func (e *WispError) WithCause(cause error) *WispError {
	e.Cause = cause

	return e
}

// NewConfigurationError creates a configuration error. Configuration errors
// are raised at setup time and are never recovered locally.
func NewConfigurationError(code, message string) *WispError {
	return &WispError{
		Type:        ErrorTypeConfiguration,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewCompilationError creates a template compilation error.
func NewCompilationError(code, message string, cause error) *WispError {
	return &WispError{
		Type:        ErrorTypeCompilation,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewExpansionError creates an include expansion error.
func NewExpansionError(code, message string) *WispError {
	return &WispError{
		Type:        ErrorTypeExpansion,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewBindingMiss creates a binding miss. Binding misses are absorbed at
// dispatch time.
func NewBindingMiss(method string) *WispError {
	return &WispError{
		Type:        ErrorTypeBinding,
		Code:        ErrCodeBindingMiss,
		Message:     "no handler method: " + method,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *WispError {
	return &WispError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *WispError {
	return &WispError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *WispError {
	return &WispError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Wrap wraps an error with additional context. Location and component
// information of a wrapped WispError is preserved.
func Wrap(err error, errType ErrorType, code, message string) *WispError {
	if err == nil {
		return nil
	}

	var we *WispError
	if errors.As(err, &we) {
		return &WispError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       err,
			Context:     we.Context,
			Component:   we.Component,
			FilePath:    we.FilePath,
			Line:        we.Line,
			Column:      we.Column,
			Recoverable: we.Recoverable,
		}
	}

	return &WispError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var we *WispError
	if errors.As(err, &we) {
		return we.Recoverable
	}

	return false
}

// HasErrorType checks if any error in the chain has the specified type.
func HasErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if we, ok := err.(*WispError); ok && we.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}

	return false
}

// HasErrorCode checks if any error in the chain has the specified code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		if we, ok := err.(*WispError); ok && we.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}

	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return HasErrorType(err, ErrorTypeConfiguration) }

// IsCompilation reports whether err is a template compilation error.
func IsCompilation(err error) bool { return HasErrorType(err, ErrorTypeCompilation) }

// IsExpansion reports whether err is an include expansion error.
func IsExpansion(err error) bool { return HasErrorType(err, ErrorTypeExpansion) }

// IsBindingMiss reports whether err is a binding miss.
func IsBindingMiss(err error) bool { return HasErrorType(err, ErrorTypeBinding) }
