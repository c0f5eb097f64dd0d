package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (analyzer logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps analyzer logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 LIVECHECK ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nANALYZER CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Capture Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// IsCameraDevice reports whether input names a V4L2 capture device rather than a file.
func IsCameraDevice(input string) bool {
	return strings.HasPrefix(input, "/dev/video")
}

// GetTotalFrames uses ffprobe to count frames for the progress bar.
// It returns 0 if the count fails or the input is a live camera, letting callers fall back to a spinner.
func GetTotalFrames(ctx context.Context, path string) int {
	if IsCameraDevice(path) {
		return 0
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  ffprobe not found. Cannot provide a progress bar estimation because of this.\n")
		return 0
	}

	type ffprobeOutput struct {
		Streams []struct {
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}

	// Container metadata only; a missing count just means a spinner.
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-show_entries", "stream=nb_frames", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	var res ffprobeOutput
	if json.Unmarshal(out, &res) != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbFrames)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// FFmpegArgs builds the decoder arguments for a video file or camera device.
// Output is raw MJPEG on stdout so SplitJpeg can cut it into frames.
func FFmpegArgs(input string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if IsCameraDevice(input) {
		args = append(args, "-f", "v4l2")
	}
	return append(args, "-i", input, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// NewFFmpegCmd creates a standard decoder pipe bound to ctx.
func NewFFmpegCmd(ctx context.Context, input string) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", FFmpegArgs(input)...)
}

// GenerateRecordingID creates a deterministic hash for a video file based on its
// path, size, and modification time. Camera devices get a random id per capture.
func GenerateRecordingID(path string) (string, error) {
	if IsCameraDevice(path) {
		return uuid.NewString(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
