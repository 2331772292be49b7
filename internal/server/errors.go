package server

import "errors"

type ErrorKind int

const (
	// KindAuth is the only kind that terminates the connection.
	KindAuth ErrorKind = iota
	KindAuthorization
	KindValidation
	KindNotFound
	KindStore
)

// ChatError is reported only to the connection that caused it; it is never
// broadcast to a room.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

func NewAuthError(message string) *ChatError {
	return &ChatError{Kind: KindAuth, Message: message}
}

func NewAuthorizationError(message string) *ChatError {
	return &ChatError{Kind: KindAuthorization, Message: message}
}

func NewValidationError(message string) *ChatError {
	return &ChatError{Kind: KindValidation, Message: message}
}

func NewNotFoundError(message string) *ChatError {
	return &ChatError{Kind: KindNotFound, Message: message}
}

func NewStoreError(err error) *ChatError {
	return &ChatError{Kind: KindStore, Message: "persistence failure", Err: err}
}

func AsChatError(err error) *ChatError {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}

	return nil
}
