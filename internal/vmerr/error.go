package vmerr

import (
	"errors"
	"fmt"
	"strings"

	"movecheck/internal/binary"
)

// IndexRef records one step of the index path leading to a failure.
type IndexRef struct {
	Kind binary.IndexKind
	Idx  binary.TableIndex
}

// CodeOffsetRef records the bytecode position of a failure.
type CodeOffsetRef struct {
	Function binary.FunctionDefinitionIndex
	Offset   binary.CodeOffset
}

// PartialError is an error raised inside a pass before its location is known.
type PartialError struct {
	Code    Code
	Message string
	Indices []IndexRef
	Offsets []CodeOffsetRef
}

// Newf returns a PartialError with a formatted message.
func Newf(code Code, format string, args ...any) *PartialError {
	return &PartialError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMessage replaces the message.
func (e *PartialError) WithMessage(msg string) *PartialError {
	e.Message = msg
	return e
}

// AtIndex appends an index to the error path.
func (e *PartialError) AtIndex(kind binary.IndexKind, idx binary.TableIndex) *PartialError {
	e.Indices = append(e.Indices, IndexRef{Kind: kind, Idx: idx})
	return e
}

// AtCodeOffset records the function and bytecode offset of the failure.
func (e *PartialError) AtCodeOffset(fn binary.FunctionDefinitionIndex, offset binary.CodeOffset) *PartialError {
	e.Offsets = append(e.Offsets, CodeOffsetRef{Function: fn, Offset: offset})
	return e
}

// Finish attaches a location, producing the error returned from a pass.
func (e *PartialError) Finish(loc Location) *Error {
	return &Error{PartialError: *e, Location: loc}
}

func (e *PartialError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(e.Code.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	for _, ix := range e.Indices {
		fmt.Fprintf(&sb, " [%s #%d]", ix.Kind, ix.Idx)
	}
	for _, off := range e.Offsets {
		fmt.Fprintf(&sb, " [function #%d @%d]", off.Function, off.Offset)
	}
	return sb.String()
}

// LocationKind says what the Location names.
type LocationKind uint8

const (
	LocationUndefined LocationKind = iota
	LocationScript
	LocationModule
)

// Location is the unit an Error was raised in.
type Location struct {
	Kind   LocationKind
	Module binary.ModuleID
}

// Undefined is the location of errors not tied to a unit.
var Undefined = Location{Kind: LocationUndefined}

// Script is the location of errors raised while checking a script.
var Script = Location{Kind: LocationScript}

// ModuleLocation returns the location of a module.
func ModuleLocation(id binary.ModuleID) Location {
	return Location{Kind: LocationModule, Module: id}
}

func (l Location) String() string {
	switch l.Kind {
	case LocationScript:
		return "script"
	case LocationModule:
		return "module " + l.Module.String()
	default:
		return "undefined"
	}
}

// Error is a located verification or runtime failure.
type Error struct {
	PartialError
	Location Location
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Location.String() + ": " + e.PartialError.Error()
}

// CodeOf extracts the status code of err, or UnknownCode.
func CodeOf(err error) Code {
	var located *Error
	if errors.As(err, &located) {
		return located.Code
	}
	var partial *PartialError
	if errors.As(err, &partial) {
		return partial.Code
	}
	return UnknownCode
}
