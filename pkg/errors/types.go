// Package errors defines the coded errors leadsplit passes between layers.
// The code picks the HTTP status and log outcome; UserMessage is what an
// operator sees.
package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	ErrCodeParseFault        ErrorCode = "PARSE_FAULT"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeNoUsableRows      ErrorCode = "NO_USABLE_ROWS"

	ErrCodeNoAgents ErrorCode = "NO_AGENTS"

	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is a coded error with optional context and an operator-facing
// message.
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Context    map[string]any
	// Origin is the function that created the error.
	Origin      string
	UserMessage string
	Remediation []string
}

// New creates a coded error.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Origin: caller()}
}

// Wrap attaches a code and message to err. Wrap(nil, ...) is nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Underlying: err, Origin: caller()}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the human-friendly message returned to users.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// WithRemediation replaces the remediation hints.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) > 0 {
		e.Remediation = append([]string(nil), tips...)
	}
	return e
}

// WithCause records a sentinel the error should match with errors.Is
// without exposing it as the printed cause.
func (e *Error) WithCause(sentinel error) *Error {
	switch {
	case sentinel == nil:
	case e.Underlying == nil:
		e.Underlying = sentinel
	default:
		e.Underlying = &joined{primary: e.Underlying, sentinel: sentinel}
	}
	return e
}

// Error renders "[CODE] message {k: v, ...}: cause" with context keys sorted.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		for i, k := range e.contextKeys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

func (e *Error) contextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Public returns the message intended for end users, falling back to the
// internal message when none was set.
func (e *Error) Public() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// LogValue renders the error as a group so log lines keep code and context
// as separate fields.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("message", e.Message),
	}
	if e.Origin != "" {
		attrs = append(attrs, slog.String("origin", e.Origin))
	}
	for _, k := range e.contextKeys() {
		attrs = append(attrs, slog.Any(k, e.Context[k]))
	}
	if e.Underlying != nil {
		attrs = append(attrs, slog.String("cause", e.Underlying.Error()))
	}
	return slog.GroupValue(attrs...)
}

// joined prints as primary but also matches sentinel.
type joined struct {
	primary  error
	sentinel error
}

func (j *joined) Error() string   { return j.primary.Error() }
func (j *joined) Unwrap() []error { return []error{j.primary, j.sentinel} }

// caller names the function that called New or Wrap.
func caller() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return fn.Name()
}

// As finds the first structured error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if stderrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	structured, ok := As(err)
	return ok && structured.Code == code
}

// GetCode returns err's code, INTERNAL for uncoded errors and "" for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if structured, ok := As(err); ok {
		return structured.Code
	}
	return ErrCodeInternal
}
