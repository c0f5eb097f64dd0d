package cmd

import (
	"fmt"
	"io"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/andresmejia3/livecheck/internal/logger"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcome is the final report of one verification session.
type Outcome struct {
	SessionID    string                 `json:"session_id"`
	Plan         string                 `json:"plan"`
	Status       liveness.Status        `json:"status"`
	Reason       liveness.FailureReason `json:"reason,omitempty"`
	Passed       int                    `json:"challenges_passed"`
	CaptureFrame *int                   `json:"capture_frame,omitempty"`
	Frames       int                    `json:"frames_observed"`
	Error        string                 `json:"error,omitempty"`
}

// reporter turns session events into status lines and structured log entries.
type reporter struct {
	w      io.Writer
	quiet  bool
	passed int
}

func newReporter(w io.Writer, quiet bool) *reporter {
	return &reporter{w: w, quiet: quiet}
}

// listen is installed as the session listener.
func (r *reporter) listen(e liveness.Event) {
	logger.Debug("session event",
		logger.LoggerOptions{Key: "session", Data: e.SessionID},
		logger.LoggerOptions{Key: "kind", Data: string(e.Kind)},
		logger.LoggerOptions{Key: "frame", Data: e.FrameIndex},
		logger.LoggerOptions{Key: "challenge", Data: string(e.Challenge)},
		logger.LoggerOptions{Key: "gesture", Data: string(e.Gesture)})

	switch e.Kind {
	case liveness.EventChallengePassed:
		r.passed++
		r.printf("✅ %s passed at frame %d\n", e.Challenge, e.FrameIndex)
	case liveness.EventStateChanged:
		switch e.To {
		case liveness.StatusCompleted:
			r.printf("🎉 All challenges completed at frame %d\n", e.FrameIndex)
		case liveness.StatusFailed:
			logger.Warning("session failed",
				logger.LoggerOptions{Key: "session", Data: e.SessionID},
				logger.LoggerOptions{Key: "reason", Data: string(e.Reason)},
				logger.LoggerOptions{Key: "frame", Data: e.FrameIndex})
			if e.FrameIndex >= 0 {
				r.printf("❌ Session failed at frame %d: %s\n", e.FrameIndex, e.Reason)
			} else {
				r.printf("❌ Session failed: %s\n", e.Reason)
			}
		}
	case liveness.EventCaptureReady:
		r.printf("📸 Capture frame: %d\n", e.FrameIndex)
	}
}

func (r *reporter) printf(format string, args ...interface{}) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.w, format, args...)
}

// outcome summarises a session once no more frames will be observed.
func (r *reporter) outcome(s *liveness.Session, frames int, err error) Outcome {
	st := s.State()
	o := Outcome{
		SessionID: s.ID(),
		Plan:      liveness.FormatPlan(s.Plan()),
		Status:    st.Status,
		Reason:    st.Reason,
		Passed:    r.passed,
		Frames:    frames,
	}
	if idx, ok := s.CaptureFrame(); ok {
		o.CaptureFrame = &idx
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// writeOutcome renders o as a human summary or a JSON document.
func writeOutcome(w io.Writer, o Outcome, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🛡️  LIVENESS RESULT: %s\n", o.Status)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "Session:     %s\n", o.SessionID)
	fmt.Fprintf(w, "Plan:        %s\n", o.Plan)
	fmt.Fprintf(w, "Passed:      %d\n", o.Passed)
	fmt.Fprintf(w, "Frames:      %d\n", o.Frames)
	if o.Reason != liveness.ReasonNone {
		fmt.Fprintf(w, "Reason:      %s\n", o.Reason)
	}
	if o.CaptureFrame != nil {
		fmt.Fprintf(w, "Capture at:  frame %d\n", *o.CaptureFrame)
	}
	if o.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", o.Error)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	return nil
}

// resultErr turns a non-completed outcome into the command's exit error.
func resultErr(o Outcome) error {
	switch o.Status {
	case liveness.StatusCompleted:
		return nil
	case liveness.StatusFailed:
		return fmt.Errorf("liveness verification failed: %s", o.Reason)
	default:
		return fmt.Errorf("liveness verification incomplete: input ended after %d of %d challenges", o.Passed, len(splitPlan(o.Plan)))
	}
}

func splitPlan(plan string) []liveness.Challenge {
	p, _ := liveness.ParseChallenges(plan)
	return p
}

func validateOutput(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format %q (use text or json)", format)
	}
	return nil
}
