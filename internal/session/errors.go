package session

import "errors"

// Code classifies an error for the wire protocol. Rejections are returned to
// the originating connection only; other participants observe no effect.
type Code string

const (
	CodeInvalid      Code = "invalid"      // malformed or out-of-phase command
	CodeUnauthorized Code = "unauthorized" // role/controller mismatch
	CodeCapacity     Code = "capacity"     // no free seat
	CodeResource     Code = "resource"     // archival or collaborator failure
	CodeInvariant    Code = "invariant"    // fatal, forces safe disposal
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func Invalid(msg string) *Error      { return &Error{Code: CodeInvalid, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Capacity(msg string) *Error     { return &Error{Code: CodeCapacity, Message: msg} }
func Invariant(msg string) *Error    { return &Error{Code: CodeInvariant, Message: msg} }

var ErrSessionEnded = &Error{Code: CodeInvalid, Message: "session has ended"}

// CodeOf extracts the classification from err, defaulting to invalid.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInvalid
}
