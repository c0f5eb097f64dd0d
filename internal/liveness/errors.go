package liveness

import (
	"errors"
	"fmt"
)

// ErrContextSwitched is the default cause reported when a session is cancelled.
var ErrContextSwitched = errors.New("CONTEXT_SWITCHED")

// ErrNoEvaluator is returned by NewSession when no evaluator is supplied.
var ErrNoEvaluator = errors.New("session requires an evaluator")

// CaptureStartError wraps the device or process failure that kept capture from starting.
// It is never retried by the session.
type CaptureStartError struct {
	Message string
	Cause   error
}

func (e *CaptureStartError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "capture start failed"
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *CaptureStartError) Unwrap() error { return e.Cause }

// ContextSwitchError reports that the active session stopped being valid mid-challenge.
type ContextSwitchError struct {
	Cause error
}

func (e *ContextSwitchError) Error() string {
	if e.Cause == nil || errors.Is(e.Cause, ErrContextSwitched) {
		return "session cancelled: " + ErrContextSwitched.Error()
	}
	return fmt.Sprintf("session cancelled: %v", e.Cause)
}

func (e *ContextSwitchError) Unwrap() error {
	if e.Cause == nil {
		return ErrContextSwitched
	}
	return e.Cause
}
