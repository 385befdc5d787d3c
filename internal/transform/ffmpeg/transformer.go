// Package ffmpeg post-processes fetched artifacts with the external
// ffmpeg tool: size-targeted compression, animated-image conversion,
// audio extraction, and passthrough for artifacts already within budget.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Codec and filter settings mirror the defaults the service has always
// shipped with.
const (
	videoCodec   = "libx264"
	videoPreset  = "medium"
	videoCRF     = "23"
	audioCodec   = "aac"
	audioBitrate = "128k"
	mp3Codec     = "libmp3lame"
	mp3Bitrate   = "192k"
	gifFilter    = "fps=15,scale=320:-1"
)

// Config controls the transform stage.
type Config struct {
	// Binary is the ffmpeg executable name or path.
	Binary string
	// Timeout is the wall-clock budget per invocation; the process is
	// killed when it is exceeded.
	Timeout time.Duration
	// TargetSize is the compression goal. Artifacts already at or under
	// it pass through without invoking the tool.
	TargetSize int64
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Transformer converts one artifact into its delivery-ready form.
type Transformer struct {
	cfg    Config
	run    runFunc
	logger *zap.Logger
}

// New constructs a Transformer.
func New(cfg Config, logger *zap.Logger) *Transformer {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{cfg: cfg, run: runTool, logger: logger}
}

// Transform produces a new artifact derived from the input path's name,
// so concurrent runs never contend on outputs. On success the input is
// consumed; on failure the input is preserved and any partial output
// removed.
func (t *Transformer) Transform(ctx context.Context, req pipeline.TransformRequest) (string, error) {
	info, err := os.Stat(req.InputPath)
	if err != nil {
		return "", fmt.Errorf("stat transform input: %w", err)
	}

	kind := req.Kind
	if kind == pipeline.TransformCompress && info.Size() <= t.cfg.TargetSize {
		kind = pipeline.TransformPassthrough
	}

	if kind == pipeline.TransformPassthrough {
		return t.passthrough(req.InputPath)
	}

	output := outputPath(req.InputPath, kind)
	args := buildArgs(req.InputPath, output, kind)

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	if _, err := t.run(runCtx, t.cfg.Binary, args...); err != nil {
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			t.logger.Warn("failed to remove partial transform output", zap.Error(rmErr))
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			t.logger.Error("transform killed on timeout",
				zap.String("input", req.InputPath),
				zap.Duration("budget", t.cfg.Timeout))
			return "", &pipeline.TimeoutError{Tool: t.cfg.Binary, Budget: t.cfg.Timeout}
		}
		return "", err
	}

	outInfo, err := os.Stat(output)
	if err != nil || outInfo.Size() == 0 {
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			t.logger.Warn("failed to remove empty transform output", zap.Error(rmErr))
		}
		return "", &pipeline.IntegrityError{Path: output}
	}

	// Single-owner: the superseded input is not retained.
	if err := os.Remove(req.InputPath); err != nil {
		t.logger.Warn("failed to remove transform input", zap.Error(err))
	}
	return output, nil
}

// passthrough renames the artifact to its delivery name without invoking
// the tool, consuming the input like any successful transform.
func (t *Transformer) passthrough(input string) (string, error) {
	output := outputPath(input, pipeline.TransformPassthrough)
	if err := os.Rename(input, output); err != nil {
		return "", fmt.Errorf("passthrough rename: %w", err)
	}
	return output, nil
}

// outputPath derives a unique output name from the input path, keeping
// concurrent runs on disjoint files.
func outputPath(input string, kind pipeline.TransformKind) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	switch kind {
	case pipeline.TransformGIF:
		return stem + ".gif"
	case pipeline.TransformAudio:
		return stem + ".mp3"
	case pipeline.TransformPassthrough:
		return stem + "_ready" + filepath.Ext(input)
	default:
		return stem + "_compressed.mp4"
	}
}

func buildArgs(input, output string, kind pipeline.TransformKind) []string {
	switch kind {
	case pipeline.TransformGIF:
		return []string{"-i", input, "-vf", gifFilter, "-loop", "0", output, "-y"}
	case pipeline.TransformAudio:
		return []string{"-i", input, "-vn", "-acodec", mp3Codec, "-b:a", mp3Bitrate, output, "-y"}
	default:
		return []string{
			"-i", input,
			"-vcodec", videoCodec, "-crf", videoCRF, "-preset", videoPreset,
			"-acodec", audioCodec, "-b:a", audioBitrate,
			"-movflags", "+faststart",
			output, "-y",
		}
	}
}

// runTool executes ffmpeg. CommandContext kills the process when the
// timeout context fires.
func runTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &pipeline.ToolError{Tool: name, Stage: pipeline.StateTransforming, Output: tailOf(stderr.Bytes()), Err: err}
	}
	return stderr.Bytes(), nil
}

func tailOf(b []byte) string {
	s := strings.TrimSpace(string(b))
	const limit = 300
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
