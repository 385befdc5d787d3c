// Package ytdlp runs the yt-dlp retrieval tool to materialize media
// artifacts from a source URL.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Config controls the external tool invocation.
type Config struct {
	// Binary is the yt-dlp executable name or path.
	Binary string
	// MaxFileSize caps each downloaded item, passed to the tool.
	MaxFileSize int64
	// Retries and RetryDelay bound the transient-error retry loop.
	Retries    int
	RetryDelay time.Duration
}

// runFunc executes the tool and returns stdout and stderr. Swapped out in
// tests.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Fetcher invokes yt-dlp and validates its outputs.
type Fetcher struct {
	cfg    Config
	retry  pipeline.RetryPolicy
	run    runFunc
	logger *zap.Logger
}

// New constructs a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg: cfg,
		retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Retries,
			Delay:       cfg.RetryDelay,
			Retryable:   isTransient,
		},
		run:    runTool,
		logger: logger,
	}
}

// Fetch runs the tool and returns the materialized artifact paths.
// Transient network failures are retried up to the configured bound; all
// other tool failures propagate immediately. An item the tool reports as
// downloaded but whose file is missing or empty is a hard integrity
// failure.
func (f *Fetcher) Fetch(ctx context.Context, req pipeline.FetchRequest) (pipeline.FetchResult, error) {
	args := f.buildArgs(req)

	var stdout []byte
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		out, stderr, runErr := f.run(ctx, f.cfg.Binary, args...)
		if runErr != nil {
			if req.Batch && len(parsePaths(out)) > 0 {
				// Partial collection success: the tool exits nonzero when
				// some entries fail, but completed siblings stay valid.
				f.logger.Warn("collection fetch completed with failed items",
					zap.String("url", req.URL),
					zap.String("stderr", tail(stderr)))
				stdout = out
				return nil
			}
			return classify(runErr, stderr)
		}
		stdout = out
		return nil
	})
	if err != nil {
		return pipeline.FetchResult{}, err
	}

	paths := parsePaths(stdout)
	if len(paths) == 0 {
		return pipeline.FetchResult{}, &pipeline.ToolError{
			Tool:  f.cfg.Binary,
			Stage: pipeline.StateFetching,
			Err:   errors.New("no output paths reported"),
		}
	}
	for _, p := range paths {
		info, statErr := os.Stat(p)
		if statErr != nil || info.Size() == 0 {
			f.logger.Error("fetch tool reported success but output is invalid",
				zap.String("url", req.URL),
				zap.String("path", p))
			return pipeline.FetchResult{}, &pipeline.IntegrityError{Path: p}
		}
	}
	return pipeline.FetchResult{Paths: paths}, nil
}

func (f *Fetcher) buildArgs(req pipeline.FetchRequest) []string {
	args := []string{
		"--no-progress",
		"--no-warnings",
		"--print", "after_move:filepath",
		"-o", filepath.Join(req.OutputDir, "%(title)s.%(ext)s"),
	}
	if f.cfg.MaxFileSize > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", f.cfg.MaxFileSize))
	}
	if req.AudioOnly {
		args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", "192K")
	} else {
		format := req.Format
		if format == "" {
			format = pipeline.QualityBest.FormatExpr()
		}
		args = append(args, "-f", format, "--merge-output-format", "mp4")
	}
	if req.Batch {
		args = append(args, "--yes-playlist", "--ignore-errors")
	} else {
		args = append(args, "--no-playlist")
	}
	return append(args, req.URL)
}

// runTool executes the binary, capturing stdout and stderr separately.
func runTool(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func parsePaths(stdout []byte) []string {
	var paths []string
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

// classify maps a tool failure onto the error taxonomy. Network-class
// failures become retryable TransientFetchErrors.
func classify(err error, stderr []byte) error {
	msg := strings.ToLower(string(stderr))
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "unable to download"):
		return &pipeline.TransientFetchError{Err: fmt.Errorf("%w: %s", err, tail(stderr))}
	default:
		return &pipeline.ToolError{Tool: "yt-dlp", Stage: pipeline.StateFetching, Output: tail(stderr), Err: err}
	}
}

func isTransient(err error) bool {
	var transient *pipeline.TransientFetchError
	return errors.As(err, &transient)
}

// tail keeps error output short enough for logs and user messages.
func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	const limit = 300
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
