// Package faults defines the error kinds shared by the permission, tool, executor and plan layers.
package faults

import (
	"errors"
	"fmt"
	"sync"
)

// Kind identifies a class of failure. Kinds are the vocabulary of retry_on allow-lists.
type Kind string

const (
	KindUnknown                 Kind = "unknown"
	KindPermissionDenied        Kind = "permission_denied"
	KindAccessDenied            Kind = "access_denied"
	KindCommandTimeout          Kind = "command_timeout"
	KindCommandExecutionFailure Kind = "command_execution_failure"
	KindPlanParseError          Kind = "plan_parse_error"
	KindWorkflowStepFailure     Kind = "workflow_step_failure"
)

// Attributes describe a kind.
type Attributes struct {
	Message string
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Attributes{
		KindUnknown:                 {Message: "unknown error"},
		KindPermissionDenied:        {Message: "permission denied"},
		KindAccessDenied:            {Message: "access denied"},
		KindCommandTimeout:          {Message: "command timed out"},
		KindCommandExecutionFailure: {Message: "command failed"},
		KindPlanParseError:          {Message: "malformed plan document"},
		KindWorkflowStepFailure:     {Message: "workflow step failed"},
	}
)

// Register adds or replaces the attributes of a kind.
func Register(kind Kind, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = attr
}

// AttributesOf returns the attributes of a kind, or those of KindUnknown if unregistered.
func AttributesOf(kind Kind) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[kind]; ok {
		return attr
	}
	return registry[KindUnknown]
}

// Known reports whether kind is registered.
func Known(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Error is a failure tagged with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with a kind. A nil cause yields nil.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = AttributesOf(e.Kind).Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain that is not a
// WorkflowStepFailure wrapper, falling back to the wrapper's kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var outer Kind
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			break
		}
		if fe.Kind != KindWorkflowStepFailure {
			return fe.Kind
		}
		if outer == "" {
			outer = fe.Kind
		}
		err = fe.Cause
	}
	if outer != "" {
		return outer
	}
	return KindUnknown
}

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
