package errors

import (
	stderrors "errors"
	"fmt"
)

// AuthRemediation is the fixed remediation text attached to every
// authentication failure. It names both resolution paths the agent CLI
// supports.
const AuthRemediation = `Authentication failed. The agent CLI could not authenticate with its backend.

To fix this, either:
  1. Run 'claude' once in a terminal and complete the interactive login, or
  2. Set the ANTHROPIC_API_KEY environment variable to a valid API key.

Then retry the request.`

// AuthenticationError reports that the agent CLI could not authenticate.
// It is non-retryable: the user has to act before another call can
// succeed. Message is always AuthRemediation plus the original failure.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s\n\noriginal error: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// NewAuthenticationError builds an AuthenticationError carrying the fixed
// remediation message and the original failure as cause.
func NewAuthenticationError(cause error) *AuthenticationError {
	return &AuthenticationError{Message: AuthRemediation, Cause: cause}
}

// CallError reports a generic failure of one agent invocation. The prompt
// excerpt is truncated to 100 characters; SessionID, DurationMS and
// NumTurns are populated when the failure came from a terminal result
// event that carried them.
type CallError struct {
	Message       string
	PromptExcerpt string
	SessionID     string
	DurationMS    int64
	NumTurns      int
	Cause         error
}

func (e *CallError) Error() string {
	msg := e.Message
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s (session %s)", msg, e.SessionID)
	}
	if e.PromptExcerpt != "" {
		msg = fmt.Sprintf("%s [prompt: %q]", msg, e.PromptExcerpt)
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Cause }

// promptExcerptLen bounds the prompt excerpt attached to call errors.
const promptExcerptLen = 100

// NewCallError builds a CallError with the prompt truncated to the
// standard excerpt length.
func NewCallError(message, prompt string, cause error) *CallError {
	excerpt := prompt
	if len(excerpt) > promptExcerptLen {
		excerpt = excerpt[:promptExcerptLen]
	}
	return &CallError{Message: message, PromptExcerpt: excerpt, Cause: cause}
}

// IsAuthentication reports whether err is (or wraps) an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return stderrors.As(err, &ae)
}

// AsCallError extracts a CallError from err, if any.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
