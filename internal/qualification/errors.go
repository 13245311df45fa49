package qualification

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound is returned by introspection calls that
	// reference a phone with no tracked conversation.
	ErrConversationNotFound = errors.New("qualification: conversation not found")

	// ErrConversationEnded is returned by manual operations against a
	// conversation already in a terminal state.
	ErrConversationEnded = errors.New("qualification: conversation already ended")
)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("qualification: invalid %s: %s", e.Field, e.Reason)
}
