package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/andresmejia3/livecheck/internal/utils"
	"github.com/spf13/cobra"
)

var (
	recordOpts  Options
	recordOut   string
	recordLabel string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture analyzer observations for later replay",
	Long: `Runs the capture pipeline without a session and saves every analyzed frame,
either to the database or to a JSONL file with --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRecord(cmd.Context(), recordOpts)
	},
}

func init() {
	addCaptureFlags(recordCmd, &recordOpts)
	recordCmd.Flags().StringVar(&recordOut, "out", "", "Write observations to this JSONL file instead of the database")
	recordCmd.Flags().StringVar(&recordLabel, "label", "", "Label the database recording, e.g. 'live subject' or 'printed photo'")
	rootCmd.AddCommand(recordCmd)
}

// frameSink receives analyzed frames in capture order.
type frameSink func(ctx context.Context, f types.Frame) error

// jsonlWriter buffers JSONL frames in front of a file.
type jsonlWriter struct {
	w *bufio.Writer
	c io.Closer
}

func newJSONLWriter(wc io.WriteCloser) *jsonlWriter {
	return &jsonlWriter{w: bufio.NewWriter(wc), c: wc}
}

func (j *jsonlWriter) write(_ context.Context, f types.Frame) error {
	return encodeFrame(j.w, f)
}

// Close flushes buffered frames and closes the file. Either failure is reported.
func (j *jsonlWriter) Close() error {
	flushErr := j.w.Flush()
	closeErr := j.c.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("failed to write observations: %w", err)
	}
	return nil
}

// validateRecordFlags rejects flag combinations the chosen sink cannot honour.
func validateRecordFlags(out, label string) error {
	if out != "" && label != "" {
		return errors.New("--label only applies to database recordings and cannot be combined with --out")
	}
	return nil
}

func runRecord(ctx context.Context, opts Options) error {
	if err := validateRecordFlags(recordOut, recordLabel); err != nil {
		return err
	}
	if err := validateCaptureFlags(&opts); err != nil {
		return err
	}

	var sink frameSink
	var recordingID string
	var file *jsonlWriter
	if recordOut != "" {
		f, err := os.Create(recordOut)
		if err != nil {
			return fmt.Errorf("unable to create output file: %w", err)
		}
		file = newJSONLWriter(f)
		defer func() {
			// Early returns still release the file.
			if file != nil {
				file.Close()
			}
		}()
		sink = file.write
	} else {
		if err := openStore(ctx); err != nil {
			return err
		}
		id, err := utils.GenerateRecordingID(opts.InputPath)
		if err != nil {
			return fmt.Errorf("failed to generate recording ID: %w", err)
		}
		if err := DB.EnsureRecording(ctx, id, opts.InputPath); err != nil {
			return fmt.Errorf("failed to register recording: %w", err)
		}
		if recordLabel != "" {
			if err := DB.LabelRecording(ctx, id, recordLabel); err != nil {
				return fmt.Errorf("failed to label recording: %w", err)
			}
		}
		recordingID = id
		sink = func(ctx context.Context, frame types.Frame) error {
			return DB.InsertFrame(ctx, id, frame)
		}
		fmt.Fprintf(os.Stderr, "📼 Recording ID: %s\n", shortID(id))
	}
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Analyzer Engines...\n", opts.NumEngines)

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	pipeline, err := startPipeline(captureCtx, opts)
	if err != nil {
		utils.ShowError("Capture failed to start", err, nil)
		return err
	}

	frames := make(chan types.Frame)
	runErr := make(chan error, 1)
	go func() {
		runErr <- pipeline.run(captureCtx, frames)
	}()

	saved, faces := 0, 0
	var sinkErr error
	for f := range frames {
		if sinkErr != nil {
			continue
		}
		if err := sink(ctx, f); err != nil {
			sinkErr = fmt.Errorf("failed to save frame %d: %w", f.Index, err)
			stopCapture()
			continue
		}
		saved++
		faces += len(f.Faces)
	}
	if err := <-runErr; err != nil {
		return err
	}
	if sinkErr != nil {
		return sinkErr
	}
	if file != nil {
		err := file.Close()
		file = nil
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Recording Complete. Saved %d keyframes (%d faces) out of %d decoded.\n", saved, faces, pipeline.decoded)
	if recordingID != "" {
		fmt.Println(recordingID)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
