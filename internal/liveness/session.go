package liveness

import (
	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/google/uuid"
)

// Listener receives every event a session emits, in order.
type Listener func(Event)

// Session is one verification flow. It is owned by a single goroutine and is not
// safe for concurrent use; frames must be observed in capture order.
type Session struct {
	id           string
	eval         *Evaluator
	plan         []Challenge
	state        State
	listener     Listener
	captureFrame int
}

// Option customises a session at construction.
type Option func(*Session)

// WithListener routes session events to l.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession starts a session at the first challenge of plan.
func NewSession(eval *Evaluator, plan []Challenge, opts ...Option) (*Session, error) {
	if eval == nil {
		return nil, ErrNoEvaluator
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	s := &Session{
		id:           uuid.NewString(),
		eval:         eval,
		plan:         append([]Challenge(nil), plan...),
		state:        InitialState(),
		captureFrame: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier stamped on every event.
func (s *Session) ID() string { return s.id }

// State returns the current sequencer state.
func (s *Session) State() State { return s.state }

// Plan returns a copy of the challenge plan.
func (s *Session) Plan() []Challenge {
	return append([]Challenge(nil), s.plan...)
}

// Current returns the active challenge, or false once the session has ended.
func (s *Session) Current() (Challenge, bool) {
	if s.state.Status != StatusInProgress || s.state.Index >= len(s.plan) {
		return "", false
	}
	return s.plan[s.state.Index], true
}

// CaptureFrame returns the first frame after completion on which at least one eye was
// open, the frame a biometric capture should be taken from.
func (s *Session) CaptureFrame() (int, bool) {
	return s.captureFrame, s.captureFrame >= 0
}

// Start runs startCapture once. If it fails the session ends with
// capture_start_failed and the cause is returned wrapped in a *CaptureStartError.
func (s *Session) Start(startCapture func() error) error {
	if startCapture == nil || s.state.Terminal() {
		return nil
	}
	if err := startCapture(); err != nil {
		s.apply(CaptureFailedInput())
		return &CaptureStartError{Cause: err}
	}
	return nil
}

// Observe feeds one frame to the sequencer and returns the resulting state.
func (s *Session) Observe(frame types.Frame) State {
	if s.state.Status == StatusCompleted {
		s.pickCaptureFrame(frame)
		return s.state
	}
	s.apply(FrameInput(frame))
	if s.state.Status == StatusCompleted {
		s.pickCaptureFrame(frame)
	}
	return s.state
}

// Cancel ends an in-progress session with reason cancelled. The returned
// *ContextSwitchError is meant to be reported to the caller; it is nil if the
// session had already ended.
func (s *Session) Cancel(cause error) error {
	if s.state.Terminal() {
		return nil
	}
	s.apply(CancelInput())
	return &ContextSwitchError{Cause: cause}
}

// Expire ends an in-progress session with reason timed_out.
func (s *Session) Expire() {
	s.apply(ExpireInput())
}

func (s *Session) apply(in Input) {
	next, events := Transition(s.eval, s.plan, s.state, in)
	s.state = next
	for _, e := range events {
		s.emit(e)
	}
}

func (s *Session) pickCaptureFrame(frame types.Frame) {
	if s.captureFrame >= 0 || len(frame.Faces) != 1 {
		return
	}
	if !s.eval.ValidateAtLeastOneEyeOpen(frame.Faces[0]) {
		return
	}
	s.captureFrame = frame.Index
	s.emit(Event{Kind: EventCaptureReady, FrameIndex: frame.Index})
}

func (s *Session) emit(e Event) {
	if s.listener == nil {
		return
	}
	e.SessionID = s.id
	s.listener(e)
}
