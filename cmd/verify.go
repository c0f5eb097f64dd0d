package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/andresmejia3/livecheck/internal/utils"
	"github.com/spf13/cobra"
)

var verifyOpts Options

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a liveness challenge session against a camera or video",
	Long: `Decodes the input with ffmpeg, analyzes every Nth frame with a pool of face
analyzer workers, and feeds the results in capture order to a challenge session.
The command exits non-zero unless every challenge is completed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runVerify(cmd.Context(), verifyOpts)
	},
}

func init() {
	addCaptureFlags(verifyCmd, &verifyOpts)
	addPlanFlags(verifyCmd, &verifyOpts)
	addCalibrationFlags(verifyCmd, &verifyOpts)
	verifyCmd.Flags().StringVarP(&verifyOpts.Timeout, "timeout", "t", "30s", "Fail the session if it has not completed in time (0 disables)")

	rootCmd.AddCommand(verifyCmd)
}

// runVerify orchestrates one session: plan, analyzer pool, ffmpeg capture, and the final report.
func runVerify(ctx context.Context, opts Options) error {
	if err := validateCaptureFlags(&opts); err != nil {
		return err
	}
	if err := validateOutput(opts.Output); err != nil {
		return err
	}
	timeout, err := parseTimeout(opts.Timeout)
	if err != nil {
		return err
	}

	plan, err := opts.resolvePlan()
	if err != nil {
		return fmt.Errorf("invalid challenge plan: %w", err)
	}
	eval, err := liveness.NewEvaluator(opts.calibration())
	if err != nil {
		return err
	}

	rep := newReporter(os.Stderr, false)
	sess, err := liveness.NewSession(eval, plan, liveness.WithListener(rep.listen))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🧭 Session %s\n", sess.ID())
	fmt.Fprintf(os.Stderr, "🎯 Challenges: %s\n", liveness.FormatPlan(plan))
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Analyzer Engines...\n", opts.NumEngines)

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	var pipeline *capturePipeline
	err = sess.Start(func() error {
		var err error
		pipeline, err = startPipeline(captureCtx, opts)
		return err
	})
	if err != nil {
		utils.ShowError("Capture failed to start", err, nil)
		o := rep.outcome(sess, 0, err)
		if werr := writeOutcome(os.Stdout, o, opts.Output); werr != nil {
			return werr
		}
		return resultErr(o)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	frames := make(chan types.Frame)
	runErr := make(chan error, 1)
	go func() {
		runErr <- pipeline.run(captureCtx, frames)
	}()

	observed, sessErr := drive(ctx, sess, frames, deadline)

	// Stop capture as soon as the session has settled
	stopCapture()
	for range frames {
	}
	sessErr = settle(sess, sessErr, <-runErr)

	fmt.Fprintf(os.Stderr, "\n🏁 Capture stopped. Analyzed %d keyframes out of %d decoded.\n", pipeline.sent, pipeline.decoded)

	o := rep.outcome(sess, observed, sessErr)
	if err := writeOutcome(os.Stdout, o, opts.Output); err != nil {
		return err
	}
	return resultErr(o)
}

// drive feeds frames to the session until it settles, the frames run out, the
// deadline passes, or ctx is cancelled. A completed session keeps consuming
// frames until one is good enough to capture. It returns how many frames were observed.
func drive(ctx context.Context, s *liveness.Session, frames <-chan types.Frame, deadline <-chan time.Time) (int, error) {
	observed := 0
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return observed, s.Cancel(liveness.ErrContextSwitched)
				}
				return observed, nil
			}
			observed++
			st := s.Observe(f)
			if st.Status == liveness.StatusFailed {
				return observed, nil
			}
			if _, ok := s.CaptureFrame(); ok {
				return observed, nil
			}
		case <-deadline:
			s.Expire()
			return observed, nil
		case <-ctx.Done():
			return observed, s.Cancel(liveness.ErrContextSwitched)
		}
	}
}

// settle folds the capture result into the session. A capture that died under an
// active session cancels it with the failure as cause.
func settle(s *liveness.Session, sessErr, pipeErr error) error {
	if pipeErr == nil {
		return sessErr
	}
	if err := s.Cancel(pipeErr); err != nil {
		return err
	}
	if sessErr == nil {
		return pipeErr
	}
	return sessErr
}

// parseTimeout accepts a duration or "0" for no deadline.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout format (use '30s', '1m'): %w", err)
	}
	if d < 0 {
		return 0, errors.New("timeout must not be negative")
	}
	return d, nil
}
