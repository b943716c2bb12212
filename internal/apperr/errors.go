// Package apperr defines the stable error taxonomy the orchestration engine
// returns to its callers. See design doc Section 7.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of an error independent of its message. Callers
// (the out-of-scope transport layer) map Kind to a stable numeric code; the
// codes below are fixed once assigned and must never be renumbered.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindInvalidScript
	KindInvalidOverride
	KindInvalidConfig
	KindNotFound
	KindConflictingBinding
	KindQuotaExceeded
	KindNotAtDayBoundary
	KindSimulationLocked
	KindMissingAgentScripts
	KindScriptFailure
	KindCacheError
	KindDurableStoreError
	KindPersistenceError
	KindInvariantViolation
)

var kindNames = map[Kind]string{
	KindUnknown:             "Unknown",
	KindInvalidScript:       "InvalidScript",
	KindInvalidOverride:     "InvalidOverride",
	KindInvalidConfig:       "InvalidConfig",
	KindNotFound:            "NotFound",
	KindConflictingBinding:  "ConflictingBinding",
	KindQuotaExceeded:       "QuotaExceeded",
	KindNotAtDayBoundary:    "NotAtDayBoundary",
	KindSimulationLocked:    "SimulationLocked",
	KindMissingAgentScripts: "MissingAgentScripts",
	KindScriptFailure:       "ScriptFailure",
	KindCacheError:          "CacheError",
	KindDurableStoreError:   "DurableStoreError",
	KindPersistenceError:    "PersistenceError",
	KindInvariantViolation:  "InvariantViolation",
}

// Code returns the stable numeric code for the transport layer.
func (k Kind) Code() int { return int(k) }

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ScriptFailureReason refines a KindScriptFailure error with the specific
// way a sandboxed invocation failed, so callers can branch (retry a Timeout,
// never retry an ImportDenied) without parsing Message text.
type ScriptFailureReason uint8

const (
	ReasonUnspecified ScriptFailureReason = iota
	ReasonTimeout
	ReasonMemoryLimit
	ReasonInvalidReturn
	ReasonRuntimeException
	ReasonImportDenied
)

var reasonNames = map[ScriptFailureReason]string{
	ReasonUnspecified:      "Unspecified",
	ReasonTimeout:          "Timeout",
	ReasonMemoryLimit:      "MemoryLimit",
	ReasonInvalidReturn:    "InvalidReturn",
	ReasonRuntimeException: "RuntimeException",
	ReasonImportDenied:     "ImportDenied",
}

func (r ScriptFailureReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "Unspecified"
}

// Error is the concrete error type carried through the orchestration engine.
// Messages never include internal paths or secrets; only ids relevant to the
// caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, if any
	// Reason refines KindScriptFailure errors; it is ReasonUnspecified for
	// every other Kind.
	Reason ScriptFailureReason
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.KindX) style checks via a sentinel wrapper,
// but the idiomatic path is apperr.KindOf(err) == apperr.KindNotFound.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewScriptFailure constructs a KindScriptFailure error carrying a specific
// ScriptFailureReason.
func NewScriptFailure(reason ScriptFailureReason, message string) *Error {
	return &Error{Kind: KindScriptFailure, Message: message, Reason: reason}
}

// WrapScriptFailure constructs a KindScriptFailure error carrying a specific
// ScriptFailureReason, wrapping an underlying cause.
func WrapScriptFailure(reason ScriptFailureReason, message string, err error) *Error {
	return &Error{Kind: KindScriptFailure, Message: message, Err: err, Reason: reason}
}

// KindOf extracts the Kind from an error, returning KindUnknown for errors
// that were not produced by this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// ReasonOf extracts the ScriptFailureReason from an error, returning
// ReasonUnspecified for errors that were not produced by this package or
// that are not KindScriptFailure.
func ReasonOf(err error) ScriptFailureReason {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ReasonUnspecified
}
