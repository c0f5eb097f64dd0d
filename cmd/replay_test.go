package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/andresmejia3/livecheck/internal/types"
)

const blinkThenRight = `{"index":3,"faces":[{"left_eye_open_probability":0.9,"right_eye_open_probability":0.9,"head_euler_angle_y":0}]}
{"index":6,"faces":[{"left_eye_open_probability":0.05,"right_eye_open_probability":0.1,"head_euler_angle_y":1}]}

{"index":9,"faces":[]}
{"index":12,"faces":[{"left_eye_open_probability":0.8,"right_eye_open_probability":0.7,"head_euler_angle_y":41.5}]}
`

func replayOptions(challenges string) Options {
	cal := liveness.DefaultCalibration()
	return Options{
		Challenges:     challenges,
		Output:         "json",
		EyeThreshold:   cal.EyeOpenThreshold,
		SmileThreshold: cal.SmileThreshold,
		HeadAngle:      cal.HeadTurnAngle,
	}
}

func TestDecodeFrames(t *testing.T) {
	frames, err := decodeFrames(strings.NewReader(blinkThenRight))
	if err != nil {
		t.Fatalf("decodeFrames failed: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("Expected 4 frames (blank line skipped), got %d", len(frames))
	}
	if frames[2].Index != 9 || len(frames[2].Faces) != 0 {
		t.Errorf("Empty frame not preserved: %+v", frames[2])
	}
	if frames[0].Faces[0].SmilingProbability != nil {
		t.Error("Missing smile probability must decode as nil")
	}
	if frames[3].Faces[0].HeadEulerAngleY != 41.5 {
		t.Errorf("Yaw not decoded: %v", frames[3].Faces[0].HeadEulerAngleY)
	}
}

func TestDecodeFramesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"malformed json", "{\"index\":1}\n{oops\n", "line 2"},
		{"out of order", "{\"index\":5}\n{\"index\":5}\n", "out of capture order"},
		{"probability out of range", "{\"index\":1}\n\n{\"index\":2,\"faces\":[{\"left_eye_open_probability\":7.5,\"right_eye_open_probability\":-3,\"head_euler_angle_y\":0}]}\n", "line 3: invalid frame"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrames(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeFrameIsReadBack(t *testing.T) {
	var buf bytes.Buffer
	in := types.Frame{Index: 7, Faces: []types.FaceObservation{{SmilingProbability: types.Prob(0.6), HeadEulerAngleY: -3}}}
	if err := encodeFrame(&buf, in); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Each frame must end with a newline")
	}

	out, err := decodeFrames(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Index != 7 || *out[0].Faces[0].SmilingProbability != 0.6 {
		t.Errorf("Frame did not survive a JSONL round trip: %+v", out)
	}
}

func TestRunReplay(t *testing.T) {
	frames, err := decodeFrames(strings.NewReader(blinkThenRight))
	if err != nil {
		t.Fatal(err)
	}

	oldStderr := os.Stderr
	devNull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	os.Stderr = devNull
	defer func() {
		os.Stderr = oldStderr
		devNull.Close()
	}()

	t.Run("completed", func(t *testing.T) {
		var out bytes.Buffer
		if err := runReplay(context.Background(), frames, replayOptions("blink,turn_right"), &out); err != nil {
			t.Fatalf("Expected the session to complete, got %v", err)
		}

		var o Outcome
		if err := json.Unmarshal(out.Bytes(), &o); err != nil {
			t.Fatalf("Outcome is not JSON: %v\n%s", err, out.String())
		}
		if o.Status != liveness.StatusCompleted || o.Passed != 2 {
			t.Errorf("Unexpected outcome: %+v", o)
		}
		if o.CaptureFrame == nil || *o.CaptureFrame != 12 {
			t.Errorf("Expected capture frame 12, got %v", o.CaptureFrame)
		}
		if o.Plan != "blink,turn_right" {
			t.Errorf("Unexpected plan %q", o.Plan)
		}
	})

	t.Run("wrong direction never completes", func(t *testing.T) {
		var out bytes.Buffer
		err := runReplay(context.Background(), frames, replayOptions("blink,turn_left"), &out)
		if err == nil || !strings.Contains(err.Error(), "incomplete") {
			t.Errorf("Expected an incomplete session, got %v", err)
		}
	})

	t.Run("stricter calibration", func(t *testing.T) {
		opts := replayOptions("turn_right")
		opts.HeadAngle = 45
		var out bytes.Buffer
		if err := runReplay(context.Background(), frames, opts, &out); err == nil {
			t.Error("A 41.5 degree turn must not pass a 45 degree threshold")
		}
	})

	t.Run("invalid calibration", func(t *testing.T) {
		opts := replayOptions("blink")
		opts.EyeThreshold = 1.5
		if err := runReplay(context.Background(), frames, opts, &bytes.Buffer{}); err == nil {
			t.Error("Expected calibration validation to fail")
		}
	})

	t.Run("unknown challenge", func(t *testing.T) {
		if err := runReplay(context.Background(), frames, replayOptions("wink"), &bytes.Buffer{}); err == nil {
			t.Error("Expected plan parsing to fail")
		}
	})
}
