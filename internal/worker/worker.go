package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/andresmejia3/livecheck/internal/utils"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reply status bytes written by the analyzer before its payload.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// ErrAnalyzer marks a reply the analyzer produced but could not fulfil. The
// process is still healthy and later frames can be sent.
var ErrAnalyzer = errors.New("analyzer error")

// DefaultCommand runs the bundled face analyzer.
var DefaultCommand = []string{"python3", "-u", "python/analyzer.py"}

// Config describes how to launch an analyzer process.
type Config struct {
	Command     []string
	ReadTimeout time.Duration
	// MinDetectionConfidence is forwarded to the analyzer as LIVECHECK_MIN_CONFIDENCE.
	MinDetectionConfidence float64
}

// AnalyzerWorker is one external face-analysis process. It turns a JPEG frame into
// the face observations the liveness session consumes.
type AnalyzerWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

func NewAnalyzerWorker(ctx context.Context, id int, cfg Config) (*AnalyzerWorker, error) {
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	proc := utils.NewSafeCommand(ctx, command[0], command[1:]...)
	proc.Cmd.Env = append(os.Environ(), fmt.Sprintf("LIVECHECK_MIN_CONFIDENCE=%g", cfg.MinDetectionConfidence))

	// Side-channel pipe (FD 3) keeps analyzer prints on stdout out of the data stream
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write end now
	w.Close()

	return &AnalyzerWorker{
		ID:          id,
		Cmd:         proc,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and returns the raw reply body.
func (w *AnalyzerWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("worker %d timed out after %s", w.ID, w.ReadTimeout)
		}
		return nil, err // analyzer crashed before replying
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame analyzes one JPEG frame.
// Reply: [Status:0][JSON faces] or [Status:1][MsgLen][Msg].
func (w *AnalyzerWorker) ProcessFrame(data []byte) ([]types.FaceObservation, error) {
	resp, err := w.Communicate(data)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("empty reply from worker %d", w.ID)
	}

	switch resp[0] {
	case statusOK:
		var faces []types.FaceObservation
		if err := json.Unmarshal(resp[1:], &faces); err != nil {
			var errorResult types.ErrorResult
			if json.Unmarshal(resp[1:], &errorResult) == nil && errorResult.Error != "" {
				return nil, fmt.Errorf("%w: %s", ErrAnalyzer, errorResult.Error)
			}
			return nil, fmt.Errorf("%w: malformed reply: %v", ErrAnalyzer, err)
		}
		if err := types.ValidateFaces(faces); err != nil {
			return nil, fmt.Errorf("%w: invalid observation: %v", ErrAnalyzer, err)
		}
		return faces, nil
	case statusError:
		body := bytes.NewReader(resp[1:])
		var msgLen uint32
		if err := binary.Read(body, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("truncated analyzer error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(body, msg); err != nil {
			return nil, fmt.Errorf("truncated analyzer error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrAnalyzer, msg)
	default:
		return nil, fmt.Errorf("unknown reply status %d from worker %d", resp[0], w.ID)
	}
}

func (w *AnalyzerWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
