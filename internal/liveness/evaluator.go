package liveness

import "github.com/andresmejia3/livecheck/internal/types"

// HeadMovement is the coarse yaw direction of the subject's head.
type HeadMovement string

const (
	HeadLeft   HeadMovement = "LEFT"
	HeadRight  HeadMovement = "RIGHT"
	HeadCenter HeadMovement = "CENTER"
)

// Gesture identifies something a detector observed on a frame.
type Gesture string

const (
	GestureNone         Gesture = ""
	GestureBlink        Gesture = "blink_observed"
	GestureSmile        Gesture = "smile_observed"
	GestureHeadMovement Gesture = "head_movement_matched"
)

// GestureResult is what a detector reports for one observation.
// Event is GestureNone when the detector has nothing to announce.
type GestureResult struct {
	Matched bool
	Event   Gesture
}

// HasEvent reports whether the detector produced a notification.
func (r GestureResult) HasEvent() bool {
	return r.Event != GestureNone
}

// Evaluator turns raw detector probabilities and angles into gesture decisions.
// It holds no state besides its calibration, so every method is pure.
type Evaluator struct {
	cal Calibration
}

// NewEvaluator validates the calibration and builds an evaluator around it.
func NewEvaluator(cal Calibration) (*Evaluator, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cal: cal}, nil
}

// IsEyeOpened treats an unmeasured eye as not open.
func (e *Evaluator) IsEyeOpened(p *float64) bool {
	return p != nil && *p > e.cal.EyeOpenThreshold
}

// IsSmiling treats an unmeasured smile as not smiling.
func (e *Evaluator) IsSmiling(p *float64) bool {
	return p != nil && *p > e.cal.SmileThreshold
}

// DetectHeadMovement maps every yaw angle to exactly one direction.
func (e *Evaluator) DetectHeadMovement(angleY float64) HeadMovement {
	switch {
	case angleY > e.cal.HeadTurnAngle:
		return HeadRight
	case angleY < -e.cal.HeadTurnAngle:
		return HeadLeft
	default:
		return HeadCenter
	}
}

// CheckBothEyesClosed matches when neither eye passes IsEyeOpened.
// The blink notification fires on the non-matching branch, as the mobile SDK always has.
func (e *Evaluator) CheckBothEyesClosed(obs types.FaceObservation) GestureResult {
	closed := !e.IsEyeOpened(obs.LeftEyeOpenProbability) && !e.IsEyeOpened(obs.RightEyeOpenProbability)
	if !closed {
		return GestureResult{Matched: false, Event: GestureBlink}
	}
	return GestureResult{Matched: true}
}

// CheckSmile matches and notifies when the subject is smiling.
func (e *Evaluator) CheckSmile(obs types.FaceObservation) GestureResult {
	if e.IsSmiling(obs.SmilingProbability) {
		return GestureResult{Matched: true, Event: GestureSmile}
	}
	return GestureResult{}
}

// ValidateHeadMovement matches and notifies only when the head points the expected way.
// A mismatch produces no event at all.
func (e *Evaluator) ValidateHeadMovement(obs types.FaceObservation, expected HeadMovement) GestureResult {
	if e.DetectHeadMovement(obs.HeadEulerAngleY) == expected {
		return GestureResult{Matched: true, Event: GestureHeadMovement}
	}
	return GestureResult{}
}

// ValidateAtLeastOneEyeOpen guards against occluded or fully closed frames.
func (e *Evaluator) ValidateAtLeastOneEyeOpen(obs types.FaceObservation) bool {
	return e.IsEyeOpened(obs.LeftEyeOpenProbability) || e.IsEyeOpened(obs.RightEyeOpenProbability)
}

// HasMoreThanOneFace reports whether a frame is ambiguous because several faces were found.
func HasMoreThanOneFace(faces []types.FaceObservation) bool {
	return len(faces) > 1
}

// Evaluate runs the detector a challenge is satisfied by.
func (e *Evaluator) Evaluate(c Challenge, obs types.FaceObservation) GestureResult {
	switch c {
	case ChallengeBlink:
		return e.CheckBothEyesClosed(obs)
	case ChallengeSmile:
		return e.CheckSmile(obs)
	case ChallengeTurnLeft:
		return e.ValidateHeadMovement(obs, HeadLeft)
	case ChallengeTurnRight:
		return e.ValidateHeadMovement(obs, HeadRight)
	default:
		return GestureResult{}
	}
}
