package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FrameTask represents a single captured frame sent to an analyzer worker
type FrameTask struct {
	Index int
	Data  []byte
}

// FaceObservation matches the JSON structure coming back from the face analyzer.
// A nil probability means the analyzer could not measure it on this frame.
type FaceObservation struct {
	LeftEyeOpenProbability  *float64 `json:"left_eye_open_probability,omitempty" validate:"omitempty,gte=0,lte=1"`
	RightEyeOpenProbability *float64 `json:"right_eye_open_probability,omitempty" validate:"omitempty,gte=0,lte=1"`
	SmilingProbability      *float64 `json:"smiling_probability,omitempty" validate:"omitempty,gte=0,lte=1"`
	HeadEulerAngleY         float64  `json:"head_euler_angle_y"` // yaw in degrees, negative = subject's left
}

// Frame is everything the analyzer reported for one captured frame, in detector order.
type Frame struct {
	Index int               `json:"index"`
	Faces []FaceObservation `json:"faces"`
}

// ValidateFaces rejects observations whose probabilities fall outside [0, 1].
func ValidateFaces(faces []FaceObservation) error {
	for i := range faces {
		if err := validate.Struct(faces[i]); err != nil {
			return fmt.Errorf("face %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks every face in the frame.
func (f Frame) Validate() error {
	return ValidateFaces(f.Faces)
}

// Dominant returns the face gesture checks run against, or false if none was detected.
func (f Frame) Dominant() (FaceObservation, bool) {
	if len(f.Faces) == 0 {
		return FaceObservation{}, false
	}
	return f.Faces[0], true
}

// ErrorResult captures the error object returned by the analyzer on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// Prob is a helper for building observations with a measured probability.
func Prob(v float64) *float64 {
	return &v
}
