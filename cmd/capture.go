package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/livecheck/internal/logger"
	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/andresmejia3/livecheck/internal/utils"
	"github.com/andresmejia3/livecheck/internal/worker"
	"github.com/schollz/progressbar/v3"
)

const megabyte = 1024 * 1024

// Buffer pool to reduce GC pressure during capture
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// analysisResult wraps the output from a worker to be sent to the reorder stage
type analysisResult struct {
	Index int
	Faces []types.FaceObservation
}

// capturePipeline decodes the input with ffmpeg and fans frames out to a pool of
// analyzer workers. Frames come back out in capture order.
type capturePipeline struct {
	opts    Options
	ffmpeg  *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	workers []*worker.AnalyzerWorker
	total   int

	// Counters are only read after run returns.
	decoded int
	sent    int
}

// startPipeline spawns the analyzer pool and ffmpeg. Any error here means the
// capture never started.
func startPipeline(ctx context.Context, opts Options) (*capturePipeline, error) {
	cfg, err := opts.analyzerConfig()
	if err != nil {
		return nil, err
	}

	p := &capturePipeline{opts: opts, stderr: &bytes.Buffer{}}
	for i := 0; i < opts.NumEngines; i++ {
		w, err := worker.NewAnalyzerWorker(ctx, i, cfg)
		if err != nil {
			p.closeWorkers()
			return nil, err
		}
		p.workers = append(p.workers, w)
	}

	p.ffmpeg = utils.NewFFmpegCmd(ctx, opts.InputPath)
	p.ffmpeg.Stderr = p.stderr
	p.stdout, err = p.ffmpeg.StdoutPipe()
	if err != nil {
		p.closeWorkers()
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := p.ffmpeg.Start(); err != nil {
		p.closeWorkers()
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	p.total = utils.GetTotalFrames(ctx, opts.InputPath)
	logger.Info("capture started",
		logger.LoggerOptions{Key: "input", Data: opts.InputPath},
		logger.LoggerOptions{Key: "engines", Data: opts.NumEngines},
		logger.LoggerOptions{Key: "nth_frame", Data: opts.NthFrame})
	return p, nil
}

// run streams analyzed frames to out, in order, until the input ends or ctx is
// cancelled. out is closed when run returns.
func (p *capturePipeline) run(ctx context.Context, out chan<- types.Frame) error {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := p.total
	if total <= 0 {
		// Fallback to a spinner for cameras or when ffprobe fails
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Capturing"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	tasks := make(chan types.FrameTask, len(p.workers))
	results := make(chan analysisResult, len(p.workers)*2)
	errCh := make(chan error, len(p.workers))
	var wg sync.WaitGroup

	// Must run concurrently to prevent deadlock on results
	orderDone := make(chan struct{})
	go func() {
		orderFrames(ctx, results, out, p.opts.NthFrame)
		close(orderDone)
	}()

	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker.AnalyzerWorker) {
			defer wg.Done()
			if err := analyze(ctx, w, tasks, results); err != nil {
				errCh <- err
				cancel()
			}
		}(w)
	}

	readErr := p.readFrames(ctx, tasks, bar)

	close(tasks)
	wg.Wait()
	close(results)
	<-orderDone
	p.closeWorkers()

	if ctx.Err() != nil {
		// Nobody drains stdout anymore, so ffmpeg would block on its next write.
		p.ffmpeg.Process.Kill()
	}
	waitErr := p.ffmpeg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if ctx.Err() != nil {
		// Stopped on purpose; ffmpeg was killed and its exit status is noise.
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("frame scanner failed: %w", readErr)
	}
	if waitErr != nil {
		if p.stderr.Len() > 0 {
			fmt.Fprintf(os.Stderr, "\nFFmpeg Logs:\n%s\n", p.stderr.String())
		}
		return fmt.Errorf("FFmpeg execution failed: %w", waitErr)
	}
	return nil
}

// readFrames splits ffmpeg output into JPEG frames and queues every Nth one.
func (p *capturePipeline) readFrames(ctx context.Context, tasks chan<- types.FrameTask, bar *progressbar.ProgressBar) error {
	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		p.decoded++
		bar.Add(1) // Update progress bar for every frame read

		if p.decoded%p.opts.NthFrame != 0 {
			continue
		}

		// Get buffer from pool
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < len(scanner.Bytes()) {
			buf = make([]byte, len(scanner.Bytes()))
		}
		buf = buf[:len(scanner.Bytes())]
		copy(buf, scanner.Bytes())

		select {
		case tasks <- types.FrameTask{Index: p.decoded, Data: buf}:
			p.sent++
		case <-ctx.Done():
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func (p *capturePipeline) closeWorkers() {
	for _, w := range p.workers {
		w.Close()
	}
}

// analyze feeds tasks to one analyzer process. Reply-level analyzer errors are
// logged and turned into empty frames; a dead process ends the capture.
func analyze(ctx context.Context, w *worker.AnalyzerWorker, tasks <-chan types.FrameTask, results chan<- analysisResult) error {
	for task := range tasks {
		faces, err := w.ProcessFrame(task.Data)

		// Return buffer to pool immediately after sending
		frameBufferPool.Put(task.Data[:0])

		if err != nil {
			if ctx.Err() != nil {
				// Capture was stopped and the analyzer killed with it.
				return nil
			}
			if !errors.Is(err, worker.ErrAnalyzer) {
				// DRAIN: Wait for process to exit and capture final stderr logs
				w.Close()
				utils.ShowError(fmt.Sprintf("Analyzer %d crashed", w.ID), err, w.Cmd)
				return fmt.Errorf("analyzer %d crashed: %w", w.ID, err)
			}
			logger.Warning("analyzer could not process frame",
				logger.LoggerOptions{Key: "worker", Data: w.ID},
				logger.LoggerOptions{Key: "frame", Data: task.Index},
				logger.LoggerOptions{Key: "error", Data: err.Error()})
			// Send empty result to prevent reorder deadlock
			faces = nil
		}

		select {
		case results <- analysisResult{Index: task.Index, Faces: faces}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// orderFrames re-orders analyzer results (worker 2 might finish before worker 1)
// and forwards them to out in capture order. Indices start at step and advance by step.
func orderFrames(ctx context.Context, results <-chan analysisResult, out chan<- types.Frame, step int) {
	buffer := make(map[int]analysisResult)
	next := step

	for res := range results {
		buffer[res.Index] = res

		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)

			select {
			case out <- types.Frame{Index: r.Index, Faces: r.Faces}:
			case <-ctx.Done():
				return
			}
			next += step
		}
	}
}

func (o Options) analyzerConfig() (worker.Config, error) {
	timeout, err := time.ParseDuration(o.WorkerTimeout)
	if err != nil {
		return worker.Config{}, fmt.Errorf("invalid worker-timeout %q: %w", o.WorkerTimeout, err)
	}
	return worker.Config{
		Command:                strings.Fields(o.Analyzer),
		ReadTimeout:            timeout,
		MinDetectionConfidence: o.DetectionThreshold,
	}, nil
}

// validateCaptureFlags ensures all capture arguments are valid before starting heavy processes.
func validateCaptureFlags(opts *Options) error {
	if !utils.IsCameraDevice(opts.InputPath) {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("input file does not exist: %w", err)
			}
			return fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("input path is a directory, expected a video file or camera device")
		}
	}
	if opts.NthFrame < 1 {
		return fmt.Errorf("invalid nth-frame interval: must be >= 1, got %d", opts.NthFrame)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.DetectionThreshold < 0 || opts.DetectionThreshold > 1.0 {
		return fmt.Errorf("invalid detection threshold: must be between 0.0 and 1.0, got %f", opts.DetectionThreshold)
	}
	if _, err := time.ParseDuration(opts.WorkerTimeout); err != nil {
		return fmt.Errorf("invalid worker-timeout format (use '10s', '500ms'): %w", err)
	}
	return nil
}
