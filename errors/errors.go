package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in the shell lifecycle the error occurred
type Phase string

const (
	PhaseProbe    Phase = "probe"    // capability probing
	PhaseLoad     Phase = "load"     // module fetch and instantiation
	PhaseInstall  Phase = "install"  // offline cache population
	PhaseActivate Phase = "activate" // old cache purge
	PhaseFetch    Phase = "fetch"    // request interception
	PhaseStorage  Phase = "storage"  // cache storage backends
	PhaseConfig   Phase = "config"   // manifest and env parsing
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported   Kind = "unsupported"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindInstantiation Kind = "instantiation"
	KindNetwork       Kind = "network"
	KindBadStatus     Kind = "bad_status"
	KindStorage       Kind = "storage"
	KindState         Kind = "state"
)

// Error is the structured error type shared by the shell packages
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Target string
	Detail string
	Status int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Target != "" {
		b.WriteString(" at ")
		b.WriteString(e.Target)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Status != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Target sets the asset, URL or capability the error is about
func (b *Builder) Target(t string) *Builder {
	b.err.Target = t
	return b
}

// Status sets the HTTP status that triggered the error
func (b *Builder) Status(code int) *Builder {
	b.err.Status = code
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported capability error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Target: name,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Target: path,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Network creates a transport failure error for a single asset
func Network(phase Phase, asset string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNetwork,
		Target: asset,
		Detail: "request failed",
		Cause:  cause,
	}
}

// BadStatus creates an error for a response that cannot be cached
func BadStatus(phase Phase, asset string, status int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBadStatus,
		Target: asset,
		Detail: "response is not ok",
		Status: status,
	}
}

// Storage creates a cache storage error
func Storage(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseStorage,
		Kind:   KindStorage,
		Detail: op,
		Cause:  cause,
	}
}

// Install creates a failed install batch error
func Install(cacheName string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstall,
		Kind:   KindNetwork,
		Target: cacheName,
		Detail: "install batch aborted",
		Cause:  cause,
	}
}
