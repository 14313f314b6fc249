// Package cfgerr defines the error taxonomy shared by the configuration compiler.
//
// Every failure raised while compiling a user config carries a Kind (what class
// of problem it is), a Reason sentinel (which specific check failed), and enough
// location context (stage, field path, offending value) to find the cause.
package cfgerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a configuration error.
type Kind int

// Error kinds.
const (
	// SchemaValidation marks malformed or contradictory configuration.
	SchemaValidation Kind = iota + 1
	// ResourceNotFound marks a referenced file that is absent on disk.
	ResourceNotFound
	// Format marks malformed key text, port strings or YAML structure.
	Format
	// PolicyViolation marks configuration that is well formed but not allowed.
	PolicyViolation
)

func (k Kind) String() string {
	switch k {
	case SchemaValidation:
		return "schema validation"
	case ResourceNotFound:
		return "resource not found"
	case Format:
		return "format"
	case PolicyViolation:
		return "policy violation"
	default:
		return "unknown"
	}
}

// Reason sentinels. Use errors.Is against these.
var (
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrPortRangeMismatch    = errors.New("port range mismatch")
	ErrInvalidPort          = errors.New("invalid port mapping")
	ErrKeyFileNotFound      = errors.New("key file not found")
	ErrScriptNotFound       = errors.New("script not found")
	ErrRepoSourceNotFound   = errors.New("apt repo source not found")
	ErrInvalidKeyFormat     = errors.New("invalid key format")
	ErrLeftoverSubstitution = errors.New("leftover substitution")
	ErrRuntimePathAtBuild   = errors.New("runtime path referenced at build time")
	ErrMutuallyExclusive    = errors.New("mutually exclusive options")
	ErrMissingField         = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownKey           = errors.New("unknown key")
	ErrTemplateReference    = errors.New("unresolved template reference")
)

// Error is a located configuration error.
type Error struct {
	Kind    Kind
	Reason  error
	Stage   string
	Field   string
	Value   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	if e.Reason != nil {
		b.WriteString(e.Reason.Error())
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " at %s", e.Field)
	} else if e.Stage != "" {
		fmt.Fprintf(&b, " in %s", e.Stage)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " (%q)", e.Value)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// New builds an Error of the given kind and reason.
func New(kind Kind, reason error, field, value, message string) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Stage:   stageOf(field),
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Schema builds a SchemaValidation error.
func Schema(reason error, field, value, message string) *Error {
	return New(SchemaValidation, reason, field, value, message)
}

// NotFound builds a ResourceNotFound error for path referenced at field.
func NotFound(reason error, field, path string, cause error) *Error {
	e := New(ResourceNotFound, reason, field, path, "")
	e.Cause = cause
	return e
}

// Formatf builds a Format error with a formatted message.
func Formatf(reason error, field, value, format string, args ...any) *Error {
	return New(Format, reason, field, value, fmt.Sprintf(format, args...))
}

// Policy builds a PolicyViolation error.
func Policy(reason error, field, value, message string) *Error {
	return New(PolicyViolation, reason, field, value, message)
}

// WithField returns a copy of e relocated to field. Used when a lower layer
// raises an error without knowing where in the config it happened.
func WithField(err error, field string) error {
	var ce *Error
	if !errors.As(err, &ce) {
		return err
	}
	cp := *ce
	cp.Field = field
	cp.Stage = stageOf(field)
	return &cp
}

// Collect flattens err into the *Error values it carries. It understands
// go-multierror lists and errors.Join trees.
func Collect(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if ce, ok := err.(*Error); ok {
			out = append(out, ce)
			return
		}
		switch x := err.(type) {
		case interface{ WrappedErrors() []error }:
			for _, e := range x.WrappedErrors() {
				walk(e)
			}
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	for _, ce := range Collect(err) {
		if ce.Kind == k {
			return true
		}
	}
	return false
}

// IsSchemaValidation checks if err is a SchemaValidation error.
func IsSchemaValidation(err error) bool { return IsKind(err, SchemaValidation) }

// IsResourceNotFound checks if err is a ResourceNotFound error.
func IsResourceNotFound(err error) bool { return IsKind(err, ResourceNotFound) }

// IsFormat checks if err is a Format error.
func IsFormat(err error) bool { return IsKind(err, Format) }

// IsPolicyViolation checks if err is a PolicyViolation error.
func IsPolicyViolation(err error) bool { return IsKind(err, PolicyViolation) }

// stageOf extracts the stage name from a dotted field path such as
// "stage_2.custom.on_build[0]".
func stageOf(field string) string {
	head, _, _ := strings.Cut(field, ".")
	if strings.HasPrefix(head, "stage_") {
		if i := strings.IndexByte(head, '['); i >= 0 {
			head = head[:i]
		}
		return head
	}
	return ""
}
