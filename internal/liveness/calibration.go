package liveness

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Default calibration, tuned against the upstream detector's output distribution.
const (
	DefaultEyeOpenThreshold = 0.4
	DefaultSmileThreshold   = 0.3
	DefaultHeadTurnAngle    = 35.0
)

var validate = validator.New()

// Calibration holds the thresholds the evaluator compares raw detector output against.
// HeadTurnAngle is used for both directions so the yaw regions stay symmetric.
type Calibration struct {
	EyeOpenThreshold float64 `validate:"gte=0,lte=1"`
	SmileThreshold   float64 `validate:"gte=0,lte=1"`
	HeadTurnAngle    float64 `validate:"gt=0,lt=90"`
}

// DefaultCalibration returns the production thresholds.
func DefaultCalibration() Calibration {
	return Calibration{
		EyeOpenThreshold: DefaultEyeOpenThreshold,
		SmileThreshold:   DefaultSmileThreshold,
		HeadTurnAngle:    DefaultHeadTurnAngle,
	}
}

// Validate rejects thresholds outside the range the detector can produce.
func (c Calibration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid calibration: %w", err)
	}
	return nil
}
