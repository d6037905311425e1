package lifecycle

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation       = errors.New("validation")
	ErrCredentials      = errors.New("credentials")
	ErrChainRejected    = errors.New("chain rejected")
	ErrChainUnavailable = errors.New("chain unavailable")
)

const (
	msgInvalidCredentials = "Invalid credentials."
	msgChainUnavailable   = "Blockchain node unavailable."
)

// Error is a failure reported to the caller. Message is client facing; Err
// keeps the cause for logs.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}
