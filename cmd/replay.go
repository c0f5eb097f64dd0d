package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	replayOpts      Options
	replayRecording string
)

var replayCmd = &cobra.Command{
	Use:   "replay [observations.jsonl]",
	Short: "Run a challenge plan over recorded analyzer observations",
	Long: `Replays a JSONL observation file (one frame per line) or a stored recording
through a fresh session. Useful for tuning thresholds without a camera.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var path string
		if len(args) == 1 {
			path = args[0]
		}
		if (path == "") == (replayRecording == "") {
			return errors.New("provide either an observation file or --recording")
		}

		frames, err := loadReplayFrames(cmd.Context(), path, replayRecording)
		if err != nil {
			return err
		}
		return runReplay(cmd.Context(), frames, replayOpts, os.Stdout)
	},
}

func init() {
	addPlanFlags(replayCmd, &replayOpts)
	addCalibrationFlags(replayCmd, &replayOpts)
	replayCmd.Flags().StringVar(&replayRecording, "recording", "", "Replay a recording stored in the database")
	rootCmd.AddCommand(replayCmd)
}

func loadReplayFrames(ctx context.Context, path, recordingID string) ([]types.Frame, error) {
	if recordingID != "" {
		if err := openStore(ctx); err != nil {
			return nil, err
		}
		frames, err := DB.LoadFrames(ctx, recordingID)
		if err != nil {
			return nil, fmt.Errorf("failed to load recording: %w", err)
		}
		return frames, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open observation file: %w", err)
	}
	defer f.Close()
	return decodeFrames(f)
}

// runReplay drives one session over frames and writes the outcome to out.
func runReplay(ctx context.Context, frames []types.Frame, opts Options, out io.Writer) error {
	if err := validateOutput(opts.Output); err != nil {
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

	rep := newReporter(os.Stderr, opts.Output == "json")
	sess, err := liveness.NewSession(eval, plan, liveness.WithListener(rep.listen))
	if err != nil {
		return err
	}

	var barOut io.Writer = os.Stderr
	if opts.Output == "json" {
		barOut = io.Discard
	}
	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetDescription("🔁 Replaying"),
		progressbar.OptionSetWriter(barOut),
		progressbar.OptionShowCount(),
	)

	ch := make(chan types.Frame)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
				bar.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	observed, sessErr := drive(ctx, sess, ch, nil)
	bar.Finish()
	// Unblock the feeder if the session settled early
	for range ch {
	}

	o := rep.outcome(sess, observed, sessErr)
	if err := writeOutcome(out, o, opts.Output); err != nil {
		return err
	}
	return resultErr(o)
}

// decodeFrames reads one JSON frame per line. Blank lines are skipped and frame
// indices must strictly increase.
func decodeFrames(r io.Reader) ([]types.Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), megabyte)

	var frames []types.Frame
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var f types.Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: malformed frame: %w", line, err)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: invalid frame: %w", line, err)
		}
		if n := len(frames); n > 0 && f.Index <= frames[n-1].Index {
			return nil, fmt.Errorf("line %d: frame %d is out of capture order", line, f.Index)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// encodeFrame writes f as a single JSONL record.
func encodeFrame(w io.Writer, f types.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
