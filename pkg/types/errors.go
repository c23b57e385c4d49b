package types

import "errors"

// ErrorKind classifies errors that are reported back to clients.
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindNameTaken     ErrorKind = "name_taken"
	KindNotJoined     ErrorKind = "not_joined"
	KindAlreadyJoined ErrorKind = "already_joined"
	KindDisconnected  ErrorKind = "disconnected"
	KindProfanity     ErrorKind = "profanity"
	KindRateLimited   ErrorKind = "rate_limited"
	KindBadRequest    ErrorKind = "bad_request"
)

// Error is a client-facing error. Message is sent over the wire verbatim.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind so copies and sentinels compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput, Message: "Username and room are required!"}
	ErrNameTaken     = &Error{Kind: KindNameTaken, Message: "Username is in use!"}
	ErrNotJoined     = &Error{Kind: KindNotJoined, Message: "You must join a room first!"}
	ErrAlreadyJoined = &Error{Kind: KindAlreadyJoined, Message: "You have already joined a room!"}
	ErrDisconnected  = &Error{Kind: KindDisconnected, Message: "Connection is closed!"}
	ErrProfanity     = &Error{Kind: KindProfanity, Message: "Profanity is not allowed!"}
	ErrRateLimited   = &Error{Kind: KindRateLimited, Message: "You are sending messages too fast!"}
	ErrBadRequest    = &Error{Kind: KindBadRequest, Message: "Invalid request!"}
)

// internalErrorMessage hides infrastructure failures from clients.
const internalErrorMessage = "Internal server error"

// PublicMessage returns the text a client should see for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return internalErrorMessage
}
