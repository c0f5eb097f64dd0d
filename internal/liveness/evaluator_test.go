package liveness

import (
	"math"
	"testing"

	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(DefaultCalibration())
	require.NoError(t, err)
	return ev
}

func face(left, right *float64) types.FaceObservation {
	return types.FaceObservation{LeftEyeOpenProbability: left, RightEyeOpenProbability: right}
}

func TestNewEvaluatorRejectsBadCalibration(t *testing.T) {
	tests := []struct {
		name string
		cal  Calibration
	}{
		{"eye threshold above 1", Calibration{EyeOpenThreshold: 1.2, SmileThreshold: 0.3, HeadTurnAngle: 35}},
		{"negative smile threshold", Calibration{EyeOpenThreshold: 0.4, SmileThreshold: -0.1, HeadTurnAngle: 35}},
		{"zero head angle", Calibration{EyeOpenThreshold: 0.4, SmileThreshold: 0.3, HeadTurnAngle: 0}},
		{"head angle past profile", Calibration{EyeOpenThreshold: 0.4, SmileThreshold: 0.3, HeadTurnAngle: 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.cal)
			require.Error(t, err)
		})
	}
}

func TestIsEyeOpened(t *testing.T) {
	ev := newTestEvaluator(t)

	tests := []struct {
		name string
		p    *float64
		want bool
	}{
		{"absent", nil, false},
		{"zero", types.Prob(0), false},
		{"at threshold", types.Prob(0.4), false},
		{"just above threshold", types.Prob(0.4001), true},
		{"wide open", types.Prob(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ev.IsEyeOpened(tt.p))
		})
	}
}

func TestIsEyeOpenedMatchesThresholdEverywhere(t *testing.T) {
	ev := newTestEvaluator(t)
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		assert.Equal(t, p > 0.4, ev.IsEyeOpened(&p), "p=%v", p)
	}
}

func TestIsSmiling(t *testing.T) {
	ev := newTestEvaluator(t)

	assert.False(t, ev.IsSmiling(nil))
	assert.False(t, ev.IsSmiling(types.Prob(0.3)))
	assert.True(t, ev.IsSmiling(types.Prob(0.31)))
}

func TestCustomCalibrationIsHonoured(t *testing.T) {
	ev, err := NewEvaluator(Calibration{EyeOpenThreshold: 0.8, SmileThreshold: 0.9, HeadTurnAngle: 10})
	require.NoError(t, err)

	assert.False(t, ev.IsEyeOpened(types.Prob(0.7)))
	assert.False(t, ev.IsSmiling(types.Prob(0.85)))
	assert.Equal(t, HeadRight, ev.DetectHeadMovement(11))
	assert.Equal(t, HeadLeft, ev.DetectHeadMovement(-11))
}

func TestDetectHeadMovement(t *testing.T) {
	ev := newTestEvaluator(t)

	tests := []struct {
		angle float64
		want  HeadMovement
	}{
		{0, HeadCenter},
		{35, HeadCenter},
		{-35, HeadCenter},
		{35.01, HeadRight},
		{-35.01, HeadLeft},
		{90, HeadRight},
		{-90, HeadLeft},
		{math.Inf(1), HeadRight},
		{math.Inf(-1), HeadLeft},
		{math.NaN(), HeadCenter},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ev.DetectHeadMovement(tt.angle), "angle=%v", tt.angle)
	}
}

func TestDetectHeadMovementPartitionsAngles(t *testing.T) {
	ev := newTestEvaluator(t)

	prev := HeadLeft
	changes := 0
	for a := -180.0; a <= 180.0; a += 0.25 {
		got := ev.DetectHeadMovement(a)
		// Symmetric regions: mirroring the angle mirrors the direction.
		mirrored := ev.DetectHeadMovement(-a)
		switch got {
		case HeadLeft:
			assert.Equal(t, HeadRight, mirrored, "angle=%v", a)
		case HeadRight:
			assert.Equal(t, HeadLeft, mirrored, "angle=%v", a)
		default:
			assert.Equal(t, HeadCenter, mirrored, "angle=%v", a)
		}
		if got != prev {
			changes++
			prev = got
		}
	}
	// LEFT -> CENTER -> RIGHT, each region contiguous.
	assert.Equal(t, 2, changes)
}

func TestCheckBothEyesClosed(t *testing.T) {
	ev := newTestEvaluator(t)

	tests := []struct {
		name        string
		obs         types.FaceObservation
		wantMatched bool
	}{
		{"both open", face(types.Prob(0.9), types.Prob(0.9)), false},
		{"left open", face(types.Prob(0.9), types.Prob(0.1)), false},
		{"right open", face(types.Prob(0.1), types.Prob(0.9)), false},
		{"both closed", face(types.Prob(0.1), types.Prob(0.1)), true},
		{"both unmeasured", face(nil, nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ev.CheckBothEyesClosed(tt.obs)
			assert.Equal(t, tt.wantMatched, res.Matched)
			// The blink notification fires exactly when the check is negative.
			if tt.wantMatched {
				assert.False(t, res.HasEvent())
			} else {
				assert.Equal(t, GestureBlink, res.Event)
			}
		})
	}
}

func TestCheckSmile(t *testing.T) {
	ev := newTestEvaluator(t)

	res := ev.CheckSmile(types.FaceObservation{SmilingProbability: types.Prob(0.8)})
	assert.True(t, res.Matched)
	assert.Equal(t, GestureSmile, res.Event)

	res = ev.CheckSmile(types.FaceObservation{SmilingProbability: types.Prob(0.1)})
	assert.False(t, res.Matched)
	assert.False(t, res.HasEvent())

	res = ev.CheckSmile(types.FaceObservation{})
	assert.False(t, res.Matched)
	assert.False(t, res.HasEvent())
}

func TestValidateHeadMovement(t *testing.T) {
	ev := newTestEvaluator(t)
	obs := types.FaceObservation{HeadEulerAngleY: 50}

	res := ev.ValidateHeadMovement(obs, HeadRight)
	assert.True(t, res.Matched)
	assert.Equal(t, GestureHeadMovement, res.Event)

	// A mismatch is silence, not a negative notification.
	res = ev.ValidateHeadMovement(obs, HeadLeft)
	assert.Equal(t, GestureResult{}, res)
}

func TestHasMoreThanOneFace(t *testing.T) {
	f := types.FaceObservation{}
	assert.False(t, HasMoreThanOneFace(nil))
	assert.False(t, HasMoreThanOneFace([]types.FaceObservation{}))
	assert.False(t, HasMoreThanOneFace([]types.FaceObservation{f}))
	assert.True(t, HasMoreThanOneFace([]types.FaceObservation{f, f}))
	assert.True(t, HasMoreThanOneFace([]types.FaceObservation{f, f, f}))
}

func TestValidateAtLeastOneEyeOpen(t *testing.T) {
	ev := newTestEvaluator(t)

	tests := []struct {
		left, right float64
		want        bool
	}{
		{0.9, 0.1, true},
		{0.1, 0.9, true},
		{0.1, 0.1, false},
		{0.9, 0.9, true},
	}

	for _, tt := range tests {
		got := ev.ValidateAtLeastOneEyeOpen(face(types.Prob(tt.left), types.Prob(tt.right)))
		assert.Equal(t, tt.want, got, "left=%v right=%v", tt.left, tt.right)
	}
	assert.False(t, ev.ValidateAtLeastOneEyeOpen(face(nil, nil)))
}

func TestDetectorsAreIdempotent(t *testing.T) {
	ev := newTestEvaluator(t)
	obs := types.FaceObservation{
		LeftEyeOpenProbability:  types.Prob(0.2),
		RightEyeOpenProbability: types.Prob(0.7),
		SmilingProbability:      types.Prob(0.5),
		HeadEulerAngleY:         -40,
	}

	for _, c := range AllChallenges {
		first := ev.Evaluate(c, obs)
		second := ev.Evaluate(c, obs)
		assert.Equal(t, first, second, "challenge %s", c)
	}
	assert.Equal(t, ev.ValidateAtLeastOneEyeOpen(obs), ev.ValidateAtLeastOneEyeOpen(obs))
}
