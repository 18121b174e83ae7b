// Package gameerr defines the error taxonomy shared by the registry, the
// command dispatcher and the command modules. Every domain failure carries a
// Code; at the wire level all failures collapse into the same error envelope,
// so codes exist for tests, logs and callers that want to branch.
package gameerr

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	InvalidArgument  Code = "invalid_argument"
	NotFound         Code = "not_found"
	NotMember        Code = "not_member"
	NotLeader        Code = "not_leader"
	Full             Code = "full"
	NotInvited       Code = "not_invited"
	AlreadySubmitted Code = "already_submitted"
	NoSuchSubmission Code = "no_such_submission"
	AlreadyVoted     Code = "already_voted"
	PollClosed       Code = "poll_closed"
	UnknownCommand   Code = "unknown_command"
	BadArguments     Code = "bad_arguments"
)

// Error is a domain error with a code and a human-readable message. The
// message is what ends up in the response envelope.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of err, unwrapping as needed. Errors that are not
// domain errors report InvalidArgument, so unexpected failures reach the
// client like any other rejection.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return InvalidArgument
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
