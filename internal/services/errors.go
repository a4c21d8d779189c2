package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrOffline            = errors.New("service offline")
	ErrTimeout            = errors.New("timeout")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrModelNotLoaded     = errors.New("model not loaded")
	ErrTransient          = errors.New("transient failure")
)

// Error pairs a classification marker with a user-facing message. The marker
// drives retry decisions and the failure code; Message is what a submission's
// error field shows the end user.
type Error struct {
	Marker  error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// New builds a classified error with no underlying cause.
func New(marker error, message string) error {
	return Wrap(marker, message, nil)
}

// Wrap tags cause with a classification marker and a user-facing message.
func Wrap(marker error, message string, cause error) error {
	if marker == nil {
		marker = ErrTransient
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = marker.Error()
	}
	return &Error{Marker: marker, Message: message, Cause: cause}
}

// IsPermanent reports whether err must not be retried: the input or the
// referenced data is bad, so repeating the attempt cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}

// Code maps err to the stable failure category surfaced to users.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrOffline):
		return "OFFLINE"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, ErrModelNotLoaded):
		return "MODEL_NOT_LOADED"
	default:
		return "ANALYSIS_FAILED"
	}
}

// UserMessage extracts the message safe to persist on a failed submission.
// Validation messages from the remote service pass through unmodified since
// they are actionable by the user; everything else already carries a message
// written by the pipeline.
func UserMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
