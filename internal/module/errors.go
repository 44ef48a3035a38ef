package module

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes module lifecycle errors.
type ErrorCode string

const (
	// ErrCodeDuplicateModule indicates an ID was registered twice.
	ErrCodeDuplicateModule ErrorCode = "DUPLICATE_MODULE"

	// ErrCodeUnknownModule indicates a lookup of an ID that was never registered.
	ErrCodeUnknownModule ErrorCode = "UNKNOWN_MODULE"

	// ErrCodeCircularDependency indicates the required sets form a cycle.
	ErrCodeCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"

	// ErrCodeRegistrySealed indicates a registration after construction began.
	ErrCodeRegistrySealed ErrorCode = "REGISTRY_SEALED"

	// ErrCodeInvalidDescriptor indicates a malformed registration (nil factory, bad phase).
	ErrCodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"

	// ErrCodeFactoryFailed indicates a module factory returned an error.
	ErrCodeFactoryFailed ErrorCode = "FACTORY_FAILED"

	// ErrCodeUpdateFailed indicates a module Update returned an error.
	ErrCodeUpdateFailed ErrorCode = "UPDATE_FAILED"

	// ErrCodeDestroyFailed indicates a module Destroy returned an error.
	ErrCodeDestroyFailed ErrorCode = "DESTROY_FAILED"
)

// Error is a lifecycle error with a code for programmatic handling.
type Error struct {
	Code    ErrorCode
	Module  ID
	Message string

	// Path is the dependency chain for cycle errors, first element repeated
	// at the end: [a b a].
	Path []ID

	// Err is the underlying cause (factory, update or destroy failure).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Module != "" {
		fmt.Fprintf(&b, ": module %q", e.Module)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Path) > 0 {
		b.WriteString(" (")
		b.WriteString(joinPath(e.Path))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, id ID, msg string) *Error {
	return &Error{Code: code, Module: id, Message: msg}
}

func wrapError(code ErrorCode, id ID, msg string, err error) *Error {
	return &Error{Code: code, Module: id, Message: msg, Err: err}
}

func newCycleError(path []ID) *Error {
	return &Error{
		Code:    ErrCodeCircularDependency,
		Module:  path[0],
		Message: "circular module dependency",
		Path:    path,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether any *Error in err's tree carries code.
// Unlike CodeOf it looks past the first match, so it works on joined errors.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if me, ok := err.(*Error); ok && me.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// IsCycleError reports whether err is (or contains) a circular dependency error.
func IsCycleError(err error) bool {
	return HasCode(err, ErrCodeCircularDependency)
}

// IsUnknownModuleError reports whether err is (or contains) an unknown module error.
func IsUnknownModuleError(err error) bool {
	return HasCode(err, ErrCodeUnknownModule)
}

// IsDuplicateError reports whether err is (or contains) a duplicate registration error.
func IsDuplicateError(err error) bool {
	return HasCode(err, ErrCodeDuplicateModule)
}

func joinPath(path []ID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = string(id)
	}
	return strings.Join(parts, " → ")
}
