package liveness

import "github.com/andresmejia3/livecheck/internal/types"

// Status is the coarse lifecycle position of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// FailureReason is the machine-readable cause attached to StatusFailed.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonMultipleFaces      FailureReason = "multiple_faces"
	ReasonCancelled          FailureReason = "cancelled"
	ReasonCaptureStartFailed FailureReason = "capture_start_failed"
	ReasonTimedOut           FailureReason = "timed_out"
)

// State is the full sequencer state. Index is only meaningful while in progress.
type State struct {
	Status Status
	Index  int
	Reason FailureReason
	// EyesSeenOpen is set once the active BLINK challenge has observed at least
	// one open eye. A closed-eyes frame only counts as a blink after that.
	EyesSeenOpen bool
}

// InitialState is where every session begins.
func InitialState() State {
	return State{Status: StatusInProgress}
}

// Terminal reports whether no further input can change the state.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// InputKind tags what happened to the session.
type InputKind int

const (
	InputFrame InputKind = iota
	InputCancel
	InputCaptureFailed
	InputExpire
)

// Input is one event fed to the sequencer. Frame is set only for InputFrame.
type Input struct {
	Kind  InputKind
	Frame types.Frame
}

// FrameInput wraps a captured frame.
func FrameInput(f types.Frame) Input { return Input{Kind: InputFrame, Frame: f} }

// CancelInput signals an external context switch.
func CancelInput() Input { return Input{Kind: InputCancel} }

// CaptureFailedInput signals that capture never started.
func CaptureFailedInput() Input { return Input{Kind: InputCaptureFailed} }

// ExpireInput signals that a wall-clock deadline above the sequencer ran out.
func ExpireInput() Input { return Input{Kind: InputExpire} }

// EventKind tags a notification emitted by the sequencer.
type EventKind string

const (
	EventGesture         EventKind = "gesture"
	EventChallengePassed EventKind = "challenge_passed"
	EventStateChanged    EventKind = "state_changed"
	EventCaptureReady    EventKind = "capture_ready"
)

// Event is a notification for the collaborator driving the session.
type Event struct {
	Kind       EventKind
	SessionID  string
	FrameIndex int
	Challenge  Challenge
	Gesture    Gesture
	From       Status
	To         Status
	Reason     FailureReason
}

// Transition computes the next state for one input. It is pure: the same
// state, plan and input always produce the same result.
func Transition(ev *Evaluator, plan []Challenge, st State, in Input) (State, []Event) {
	if st.Terminal() {
		return st, nil
	}

	switch in.Kind {
	case InputCancel:
		return fail(st, ReasonCancelled, -1)
	case InputCaptureFailed:
		return fail(st, ReasonCaptureStartFailed, -1)
	case InputExpire:
		return fail(st, ReasonTimedOut, -1)
	case InputFrame:
		return observeFrame(ev, plan, st, in.Frame)
	default:
		return st, nil
	}
}

func observeFrame(ev *Evaluator, plan []Challenge, st State, frame types.Frame) (State, []Event) {
	if HasMoreThanOneFace(frame.Faces) {
		return fail(st, ReasonMultipleFaces, frame.Index)
	}
	if st.Index >= len(plan) {
		return complete(st, frame.Index)
	}

	face, ok := frame.Dominant()
	if !ok {
		// Nothing to judge on this frame.
		return st, nil
	}

	current := plan[st.Index]
	if current == ChallengeBlink {
		return observeBlink(ev, plan, st, frame.Index, face)
	}

	res := ev.Evaluate(current, face)

	var events []Event
	if res.HasEvent() {
		events = append(events, gestureEvent(frame.Index, current, res.Event))
	}
	if !res.Matched {
		return st, events
	}
	return pass(plan, st, frame.Index, current, events)
}

// observeBlink accepts a closed-eyes frame only after an open eye was seen on
// this challenge, so a still photo with closed eyes never passes. A face whose
// eyes were not measured at all is no decision.
func observeBlink(ev *Evaluator, plan []Challenge, st State, frameIndex int, face types.FaceObservation) (State, []Event) {
	if face.LeftEyeOpenProbability == nil && face.RightEyeOpenProbability == nil {
		return st, nil
	}

	res := ev.CheckBothEyesClosed(face)
	var events []Event
	if res.HasEvent() {
		events = append(events, gestureEvent(frameIndex, ChallengeBlink, res.Event))
	}
	if !res.Matched {
		if ev.ValidateAtLeastOneEyeOpen(face) {
			st.EyesSeenOpen = true
		}
		return st, events
	}
	if !st.EyesSeenOpen {
		return st, events
	}
	return pass(plan, st, frameIndex, ChallengeBlink, events)
}

func gestureEvent(frameIndex int, c Challenge, g Gesture) Event {
	return Event{
		Kind:       EventGesture,
		FrameIndex: frameIndex,
		Challenge:  c,
		Gesture:    g,
	}
}

// pass moves the cursor past the active challenge, completing the session after the last one.
func pass(plan []Challenge, st State, frameIndex int, current Challenge, events []Event) (State, []Event) {
	events = append(events, Event{
		Kind:       EventChallengePassed,
		FrameIndex: frameIndex,
		Challenge:  current,
	})
	next := State{Status: StatusInProgress, Index: st.Index + 1}
	if next.Index >= len(plan) {
		done, more := complete(st, frameIndex)
		return done, append(events, more...)
	}
	return next, events
}

func complete(st State, frameIndex int) (State, []Event) {
	next := State{Status: StatusCompleted}
	return next, []Event{{
		Kind:       EventStateChanged,
		FrameIndex: frameIndex,
		From:       st.Status,
		To:         next.Status,
	}}
}

func fail(st State, reason FailureReason, frameIndex int) (State, []Event) {
	next := State{Status: StatusFailed, Index: st.Index, Reason: reason}
	return next, []Event{{
		Kind:       EventStateChanged,
		FrameIndex: frameIndex,
		From:       st.Status,
		To:         next.Status,
		Reason:     reason,
	}}
}
