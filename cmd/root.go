package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/livecheck/internal/liveness"
	"github.com/andresmejia3/livecheck/internal/logger"
	"github.com/andresmejia3/livecheck/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for verify, record, and replay commands
type Options struct {
	InputPath          string
	NthFrame           int
	NumEngines         int
	WorkerTimeout      string
	DetectionThreshold float64
	Analyzer           string

	Challenges       string
	RandomChallenges int
	Timeout          string
	Output           string

	EyeThreshold   float64
	SmileThreshold float64
	HeadAngle      float64
}

var (
	// DB is the recordings store, opened only for commands that need it
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	logLevel string
	logFile  string
)

// Version is the application version.
const Version = "0.1.0"

// needsDB marks commands that open the recordings store in PersistentPreRunE.
const needsDB = "db"

// envFlags maps flag names to the environment variables that may provide them.
var envFlags = map[string]string{
	"log-level":       "LOG_LEVEL",
	"log-file":        "LOG_FILE",
	"eye-threshold":   "LIVECHECK_EYE_THRESHOLD",
	"smile-threshold": "LIVECHECK_SMILE_THRESHOLD",
	"head-angle":      "LIVECHECK_HEAD_ANGLE",
	"analyzer":        "LIVECHECK_ANALYZER",
}

var rootCmd = &cobra.Command{
	Use:     "livecheck",
	Short:   "Gesture-based face liveness verification",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		if err := applyEnv(cmd); err != nil {
			return err
		}
		logger.Init(logger.Config{Level: logLevel, File: logFile})

		if cmd.Annotations[needsDB] == "" {
			return nil
		}

		return openStore(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		logger.Sync()
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/livecheck)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
}

// openStore connects DB once. Commands that only sometimes need the database call it directly.
func openStore(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	// If no flag was provided, try to build the connection string from the environment
	if dbURL == "" {
		dbURL = defaultDBURL()
	}

	var err error
	// Use the command's context (which will be cancellable) for the connection
	DB, err = store.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func defaultDBURL() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		// Fallback to local default if no env vars are present
		return "postgres://localhost:5432/livecheck"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// applyEnv fills flags the user did not set from their environment variables.
func applyEnv(cmd *cobra.Command) error {
	for name, env := range envFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		val, ok := os.LookupEnv(env)
		if !ok || val == "" {
			continue
		}
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", env, val, err)
		}
	}
	return nil
}

// addCalibrationFlags registers the threshold flags on commands that evaluate gestures.
func addCalibrationFlags(cmd *cobra.Command, opts *Options) {
	cal := liveness.DefaultCalibration()
	cmd.Flags().Float64Var(&opts.EyeThreshold, "eye-threshold", cal.EyeOpenThreshold, "Eye-open probability above which an eye counts as open")
	cmd.Flags().Float64Var(&opts.SmileThreshold, "smile-threshold", cal.SmileThreshold, "Smiling probability above which the subject counts as smiling")
	cmd.Flags().Float64Var(&opts.HeadAngle, "head-angle", cal.HeadTurnAngle, "Yaw in degrees beyond which the head counts as turned")
}

// addPlanFlags registers the challenge plan flags.
func addPlanFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Challenges, "challenges", "c", "", "Comma-separated challenge plan, e.g. blink,turn_right")
	cmd.Flags().IntVarP(&opts.RandomChallenges, "random", "r", 2, "Number of random distinct challenges when --challenges is not set")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Result format (text, json)")
}

// addCaptureFlags registers the ffmpeg and analyzer pool flags.
func addCaptureFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.InputPath, "input", "i", "", "Video file or camera device (e.g. /dev/video0)")
	cmd.Flags().IntVarP(&opts.NthFrame, "nth-frame", "n", 3, "Analyze every Nth decoded frame")
	cmd.Flags().IntVarP(&opts.NumEngines, "engines", "e", 1, "Number of parallel analyzer workers")
	cmd.Flags().StringVar(&opts.WorkerTimeout, "worker-timeout", "10s", "Maximum time to wait for one analyzer reply")
	cmd.Flags().Float64VarP(&opts.DetectionThreshold, "detection-threshold", "D", 0.5, "Face detection confidence threshold")
	cmd.Flags().StringVar(&opts.Analyzer, "analyzer", "", "Analyzer command line (default: python3 -u python/analyzer.py)")
	cmd.MarkFlagRequired("input")
}

func (o Options) calibration() liveness.Calibration {
	return liveness.Calibration{
		EyeOpenThreshold: o.EyeThreshold,
		SmileThreshold:   o.SmileThreshold,
		HeadTurnAngle:    o.HeadAngle,
	}
}

// resolvePlan parses --challenges, or draws --random challenges when it is empty.
func (o Options) resolvePlan() ([]liveness.Challenge, error) {
	if o.Challenges != "" {
		return liveness.ParseChallenges(o.Challenges)
	}
	return liveness.NewPlan(nil, o.RandomChallenges)
}
