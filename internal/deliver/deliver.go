// Package deliver dispatches ready artifacts to their sinks: direct chat
// transfer, size-based chunked transfer, link-share upload, or cloud
// upload.
package deliver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Config carries the delivery size policy and direct-send retry knobs.
type Config struct {
	// SizeThreshold switches direct transfers to chunked above this size.
	SizeThreshold int64
	// ChunkSize is the fixed chunk length for chunked transfers.
	ChunkSize int64
	// MaxArtifactSize rejects artifacts before any transfer attempt.
	MaxArtifactSize int64
	// SendRetries and SendBackoff bound per-unit direct transfer retries.
	SendRetries int
	SendBackoff time.Duration
}

// Dispatcher implements pipeline.Deliverer over the configured sinks.
type Dispatcher struct {
	cfg    Config
	sender pipeline.ChatSender
	links  pipeline.LinkUploader
	cloud  pipeline.CloudUploader
	logger *zap.Logger
}

// New constructs a Dispatcher.
func New(cfg Config, sender pipeline.ChatSender, links pipeline.LinkUploader, cloud pipeline.CloudUploader, logger *zap.Logger) *Dispatcher {
	if cfg.SendRetries < 1 {
		cfg.SendRetries = 3
	}
	if cfg.SendBackoff <= 0 {
		cfg.SendBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, sender: sender, links: links, cloud: cloud, logger: logger}
}

// Deliver sends one artifact through the selected sink. Successful
// deliveries delete the local artifact unless the request keeps it as a
// cache target; chunk part files are always deleted.
func (d *Dispatcher) Deliver(ctx context.Context, req pipeline.DeliveryRequest) (pipeline.DeliveryReceipt, error) {
	info, err := os.Stat(req.Path)
	if err != nil {
		return pipeline.DeliveryReceipt{}, &pipeline.DeliveryError{Err: fmt.Errorf("stat artifact: %w", err)}
	}
	if d.cfg.MaxArtifactSize > 0 && info.Size() > d.cfg.MaxArtifactSize {
		return pipeline.DeliveryReceipt{}, &pipeline.CapacityError{Size: info.Size(), Limit: d.cfg.MaxArtifactSize}
	}

	var receipt pipeline.DeliveryReceipt
	switch req.Mode {
	case pipeline.DeliverShareLink:
		receipt, err = d.deliverLink(ctx, req, d.links)
	case pipeline.DeliverCloud:
		receipt, err = d.deliverLink(ctx, req, d.cloud)
	default:
		if info.Size() > d.cfg.SizeThreshold {
			err = d.deliverChunked(ctx, req, info.Size())
		} else {
			err = d.sendWithRetry(ctx, req.Dest, req.Path, req.AsDocument, req.Caption)
		}
	}
	if err != nil {
		return pipeline.DeliveryReceipt{}, err
	}

	if !req.KeepLocal {
		if rmErr := os.Remove(req.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			d.logger.Warn("post-delivery cleanup failed", zap.String("path", req.Path), zap.Error(rmErr))
		}
	}
	return receipt, nil
}

// deliverLink uploads the artifact to an external host and posts the
// returned reference. Upload failures are fatal for the attempt; whole
// pipeline replay is the coordinator's call.
func (d *Dispatcher) deliverLink(ctx context.Context, req pipeline.DeliveryRequest, up pipeline.LinkUploader) (pipeline.DeliveryReceipt, error) {
	if up == nil {
		return pipeline.DeliveryReceipt{}, &pipeline.DeliveryError{Err: fmt.Errorf("sink for mode %q is not configured", req.Mode)}
	}
	link, err := up.Upload(ctx, req.Path)
	if err != nil {
		return pipeline.DeliveryReceipt{}, &pipeline.DeliveryError{Err: err}
	}
	if err := d.sender.SendText(ctx, req.Dest, fmt.Sprintf("%s\n%s", req.Caption, link)); err != nil {
		return pipeline.DeliveryReceipt{}, &pipeline.DeliveryError{Err: err}
	}
	return pipeline.DeliveryReceipt{Link: link}, nil
}

// deliverChunked splits the artifact into fixed-size parts and sends each
// as an independent unit tagged with its ordinal. A part failure aborts
// the remainder and surfaces as a single delivery failure. Parts carry
// the run token: the artifact may be a cache target that another run is
// chunking at the same time.
func (d *Dispatcher) deliverChunked(ctx context.Context, req pipeline.DeliveryRequest, size int64) error {
	token := req.RunID
	if token == "" {
		token = uuid.NewString()
	}
	parts, err := Split(req.Path, token, d.cfg.ChunkSize)
	if err != nil {
		return &pipeline.DeliveryError{Err: fmt.Errorf("split artifact: %w", err)}
	}
	total := len(parts)
	d.logger.Info("sending artifact in chunks",
		zap.String("path", req.Path),
		zap.Int64("size", size),
		zap.Int("chunks", total))

	cleanup := func(from int) {
		for _, p := range parts[from:] {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				d.logger.Warn("chunk cleanup failed", zap.String("part", p), zap.Error(rmErr))
			}
		}
	}
	for i, part := range parts {
		caption := fmt.Sprintf("part %d/%d\n%s", i+1, total, req.Caption)
		if err := d.sendWithRetry(ctx, req.Dest, part, true, caption); err != nil {
			cleanup(i)
			return &pipeline.DeliveryError{Err: fmt.Errorf("chunk %d/%d: %w", i+1, total, err)}
		}
		if rmErr := os.Remove(part); rmErr != nil && !os.IsNotExist(rmErr) {
			d.logger.Warn("chunk cleanup failed", zap.String("part", part), zap.Error(rmErr))
		}
	}
	return nil
}

// sendWithRetry retries a single direct transfer with fixed backoff
// before reporting failure.
func (d *Dispatcher) sendWithRetry(ctx context.Context, dest, path string, asDocument bool, caption string) error {
	policy := pipeline.RetryPolicy{
		MaxAttempts: d.cfg.SendRetries,
		Delay:       d.cfg.SendBackoff,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		return d.sender.SendFile(ctx, dest, path, asDocument, caption)
	})
	if err != nil {
		return &pipeline.DeliveryError{Err: err}
	}
	return nil
}
