// Package ytdlp supervises yt-dlp child processes and turns their output
// into structured progress for the download engine.
package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/platform"
)

const (
	tailKeep   = 30
	tailReport = 8
)

// ErrStopped is returned when the caller stopped the download while it ran.
var ErrStopped = errors.New("download stopped")

// ExitError reports a yt-dlp run that ended without a success signal.
type ExitError struct {
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("download failed. exit code: %d", e.Code)
	}
	return fmt.Sprintf("download failed. exit code: %d\n%s", e.Code, strings.Join(e.Tail, "\n"))
}

// Request describes one download. An empty Title is resolved before the
// download starts.
type Request struct {
	URL             string
	OutputDir       string
	Quality         string
	RemoveWatermark bool
	Title           string
}

// Update is a throttled status report. Percent is nil for state-only updates.
type Update struct {
	State   domain.State
	Detail  string
	Percent *float64
}

// Hooks receives events from a running download.
type Hooks interface {
	TitleResolved(title string)
	Destination(path string)
	Update(u Update)
	// Stopped is polled between output lines. Returning true ends the run.
	Stopped() bool
}

// Result is a successful run. FilePath is empty when no output file could be
// located on disk.
type Result struct {
	FilePath  string
	OutputDir string
}

type Options struct {
	BinDir        string
	TempDir       string
	FallbackDir   string
	TitleTimeout  time.Duration
	StopGrace     time.Duration
	UpdateTimeout time.Duration
}

// CLI runs downloads through the yt-dlp executable.
type CLI struct {
	opts   Options
	log    *logger.Logger
	window time.Duration
}

func NewCLI(opts Options, log *logger.Logger) *CLI {
	if log == nil {
		log = logger.Discard()
	}
	return &CLI{opts: opts, log: log, window: DefaultThrottleWindow}
}

// TempDir is the directory yt-dlp writes fragments into.
func (c *CLI) TempDir() string {
	return c.opts.TempDir
}

// Run downloads req.URL. Cancelling ctx terminates the child process and
// force-kills it after the stop grace period.
func (c *CLI) Run(ctx context.Context, req Request, hooks Hooks) (Result, error) {
	bins, err := platform.ResolveBinaries(c.opts.BinDir)
	if err != nil {
		return Result{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = c.FetchTitle(ctx, bins.YTDLP, req.URL)
		hooks.TitleResolved(title)
	}

	outDir, err := c.ensureOutputDir(req.OutputDir)
	if err != nil {
		return Result{}, err
	}
	if c.opts.TempDir != "" {
		if err := os.MkdirAll(c.opts.TempDir, 0o755); err != nil {
			c.log.Warn("ytdlp: cannot create temp dir %s: %v", c.opts.TempDir, err)
		}
	}

	hooks.Update(Update{State: domain.StateDownloading, Detail: "Downloading..."})

	cmd := exec.CommandContext(ctx, bins.YTDLP, BuildArgs(req, bins.FFmpegLocation(), outDir, c.opts.TempDir)...)
	cmd.Cancel = platform.Terminate(cmd)
	cmd.WaitDelay = c.opts.StopGrace

	pr, pw, err := os.Pipe()
	if err != nil {
		return Result{}, fmt.Errorf("create output pipe: %w", err)
	}
	defer pr.Close()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return Result{}, fmt.Errorf("start yt-dlp: %w", err)
	}
	pw.Close()

	// A grandchild such as ffmpeg can keep the pipe open after yt-dlp dies.
	stopRead := context.AfterFunc(ctx, func() {
		time.AfterFunc(c.opts.StopGrace, func() { _ = pr.Close() })
	})
	defer stopRead()

	st := c.stream(pr, hooks)

	waitErr := cmd.Wait()
	if st.stopped || hooks.Stopped() || ctx.Err() != nil {
		return Result{}, ErrStopped
	}

	code := 0
	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			code = ee.ExitCode()
		} else {
			code = -1
			st.tail = append(st.tail, waitErr.Error())
		}
	}

	if code != 0 && !st.alreadyDownloaded {
		tail := st.tail
		if len(tail) > tailReport {
			tail = tail[len(tail)-tailReport:]
		}
		return Result{}, &ExitError{Code: code, Tail: tail}
	}

	return Result{FilePath: ResolveFilePath(st.filePath, st.destination, outDir), OutputDir: outDir}, nil
}

type streamState struct {
	filePath          string
	destination       string
	alreadyDownloaded bool
	stopped           bool
	tail              []string
}

func (c *CLI) stream(r *os.File, hooks Hooks) streamState {
	var st streamState
	throttle := NewThrottle(c.window)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitByNewlineOrCR)

	for scanner.Scan() {
		if hooks.Stopped() {
			st.stopped = true
			return st
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		st.tail = append(st.tail, line)
		if len(st.tail) > tailKeep {
			st.tail = st.tail[1:]
		}

		parsed := ParseLine(line)
		switch parsed.Kind {
		case LineFilepath:
			st.filePath = parsed.Path
		case LineProgress:
			pct := parsed.Progress.Percent
			if throttle.Allow(&pct) {
				hooks.Update(Update{State: domain.StateDownloading, Detail: parsed.Progress.Detail(), Percent: &pct})
			}
		case LineDestination:
			st.destination = parsed.Path
			hooks.Destination(parsed.Path)
		case LineAlreadyDownloaded:
			st.alreadyDownloaded = true
		case LineMerging:
			hooks.Update(Update{State: domain.StateMerging, Detail: "Merging..."})
		default:
			c.log.Debug("ytdlp: %s", line)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.log.Debug("ytdlp: output read ended: %v", err)
		// Keep the pipe empty so the process never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
	return st
}

func (c *CLI) ensureOutputDir(dir string) (string, error) {
	if dir == "" {
		dir = c.opts.FallbackDir
	}
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return dir, nil
	}
	if c.opts.FallbackDir == "" || dir == c.opts.FallbackDir {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	c.log.Warn("ytdlp: cannot create %s, using %s: %v", dir, c.opts.FallbackDir, err)
	if err := os.MkdirAll(c.opts.FallbackDir, 0o755); err != nil {
		return "", fmt.Errorf("create fallback dir %s: %w", c.opts.FallbackDir, err)
	}
	return c.opts.FallbackDir, nil
}

// ResolveFilePath picks the final output: the reported file path if it
// exists, then the destination with the merge extension, then the raw
// destination. Relative destinations are taken from outDir.
func ResolveFilePath(reported, destination, outDir string) string {
	if reported != "" && exists(reported) {
		return reported
	}
	if destination == "" {
		return ""
	}
	if !filepath.IsAbs(destination) {
		destination = filepath.Join(outDir, destination)
	}
	merged := strings.TrimSuffix(destination, filepath.Ext(destination)) + "." + MergeFormat
	if exists(merged) {
		return merged
	}
	if exists(destination) {
		return destination
	}
	return ""
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
