package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// CoordinatorConfig carries the fixed-at-startup pipeline knobs.
type CoordinatorConfig struct {
	// WorkDir is the artifact storage area. Each run writes into its own
	// subdirectory named by the run token; cache targets are promoted to
	// the top level before delivery.
	WorkDir string
}

// Coordinator sequences fetch → transform → delivery per request, owns
// per-requester task tracking and cancellation, and updates the cache and
// statistics.
type Coordinator struct {
	cfg         CoordinatorConfig
	cache       CacheStore
	limiter     *Limiter
	fetcher     Fetcher
	transformer Transformer
	deliverer   Deliverer
	sender      ChatSender
	notifier    Notifier
	hosts       HostLimiter
	tasks       *ActiveTasks
	moderation  *Moderation
	stats       *Stats
	clock       Clock
	ids         IDGenerator
	logger      *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(
	cache CacheStore,
	limiter *Limiter,
	fetcher Fetcher,
	transformer Transformer,
	deliverer Deliverer,
	sender ChatSender,
	notifier Notifier,
	hosts HostLimiter,
	moderation *Moderation,
	clock Clock,
	ids IDGenerator,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:         cfg,
		cache:       cache,
		limiter:     limiter,
		fetcher:     fetcher,
		transformer: transformer,
		deliverer:   deliverer,
		sender:      sender,
		notifier:    notifier,
		hosts:       hosts,
		tasks:       NewActiveTasks(),
		moderation:  moderation,
		stats:       NewStats(),
		clock:       clock,
		ids:         ids,
		logger:      logger,
	}
}

// Stats exposes the process-wide run counters.
func (c *Coordinator) Stats() *Stats { return c.stats }

// Moderation exposes the ban/mute sets.
func (c *Coordinator) Moderation() *Moderation { return c.moderation }

// Tasks exposes the active-task registry (path ownership for the sweeper).
func (c *Coordinator) Tasks() *ActiveTasks { return c.tasks }

// Cancel aborts the requester's in-flight run, if any.
func (c *Coordinator) Cancel(requester string) bool {
	return c.tasks.Cancel(requester)
}

// Run drives one request through admission and the staged pipeline,
// blocking until a terminal outcome. Callers typically invoke it on its
// own goroutine.
func (c *Coordinator) Run(ctx context.Context, req Request) error {
	logger := c.logger.With(
		zap.String("requester", req.Requester),
		zap.String("source_url", req.SourceURL),
	)

	if c.moderation.IsMuted(req.Requester) {
		logger.Debug("dropping request from muted requester")
		return nil
	}
	if c.moderation.IsBanned(req.Requester) {
		c.sendText(ctx, req.Destination, "You are banned from using this service.")
		return ErrBanned
	}
	if err := ValidateSource(req.SourceURL); err != nil {
		logger.Warn("request rejected by URL validation", zap.Error(err))
		c.sendText(ctx, req.Destination, "Invalid link. Send a valid http(s) URL.")
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.tasks.Register(req.Requester, cancel); err != nil {
		c.sendText(ctx, req.Destination, "You already have an active download. Wait for it to finish or cancel it.")
		return err
	}
	defer c.tasks.Release(req.Requester)

	release, err := c.limiter.Acquire(runCtx)
	if err != nil {
		logger.Info("run cancelled while waiting for a permit")
		return ErrCancelled
	}
	defer release()
	activeRuns.Inc()
	defer activeRuns.Dec()

	status, statusErr := c.sender.SendStatus(runCtx, req.Destination, "Starting download...")
	if statusErr != nil {
		logger.Warn("status message create failed", zap.Error(statusErr))
	}

	err = c.execute(runCtx, req, status, logger)
	switch {
	case err == nil:
		c.stats.RecordCompleted()
		runsTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
		if delErr := c.sender.DeleteStatus(ctx, status); delErr != nil {
			logger.Debug("status message delete failed", zap.Error(delErr))
		}
		logger.Info("run completed")
		return nil
	case errors.Is(err, ErrCancelled) || runCtx.Err() != nil:
		runsTotal.WithLabelValues(string(OutcomeCancelled)).Inc()
		c.editStatus(ctx, status, "Download cancelled.")
		logger.Info("run cancelled")
		return ErrCancelled
	default:
		c.stats.RecordFailed()
		runsTotal.WithLabelValues(string(OutcomeFailure)).Inc()
		c.editStatus(ctx, status, fmt.Sprintf("Failed: %s. Send the link again to retry.", shortCause(err)))
		c.notifyOperator(ctx, req, err)
		logger.Error("run failed", zap.Error(err))
		return err
	}
}

// execute runs CacheCheck → Fetching → Transforming → Delivering inside an
// admitted run. Cancellation is surfaced as ErrCancelled.
func (c *Coordinator) execute(ctx context.Context, req Request, status StatusMessage, logger *zap.Logger) error {
	runID, err := c.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate run token: %w", err)
	}
	runDir := filepath.Join(c.cfg.WorkDir, runID)
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	c.tasks.ClaimPath(req.Requester, runDir)
	defer func() {
		// Everything a successful run keeps has been promoted out of the
		// run directory by now; anything left is partial output.
		if rmErr := os.RemoveAll(runDir); rmErr != nil {
			logger.Warn("run directory cleanup failed", zap.Error(rmErr))
		}
	}()

	mode := req.Options.DeliveryMode()

	// Cache check. Collections always re-fetch.
	if !req.Options.Batch {
		key, err := CacheKey(req.SourceURL)
		if err != nil {
			return err
		}
		if path, ok := c.cachedArtifact(ctx, key, logger); ok {
			cacheLookups.WithLabelValues("hit").Inc()
			c.editStatus(ctx, status, "Sending cached copy...")
			// Claim the cached file so the sweeper leaves it alone while
			// the transfer is in flight.
			c.tasks.ClaimPath(req.Requester, path)
			return c.deliverOne(ctx, req, mode, runID, path, true)
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	// Fetching.
	c.editStatus(ctx, status, "Downloading (1/3)...")
	if c.hosts != nil {
		if err := c.hosts.Wait(ctx, req.SourceURL); err != nil {
			return c.asCancelled(ctx, err)
		}
	}
	fetchStart := c.clock.Now()
	format := req.Options.Quality.FormatExpr()
	result, err := c.fetcher.Fetch(ctx, FetchRequest{
		RunID:     runID,
		URL:       req.SourceURL,
		Format:    format,
		AudioOnly: req.Options.AudioOnly,
		Batch:     req.Options.Batch,
		OutputDir: runDir,
	})
	stageDuration.WithLabelValues(string(StateFetching)).Observe(c.clock.Now().Sub(fetchStart).Seconds())
	if err != nil {
		return c.asCancelled(ctx, err)
	}
	for _, p := range result.Paths {
		c.tasks.ClaimPath(req.Requester, p)
	}

	// Transforming.
	c.editStatus(ctx, status, "Processing (2/3)...")
	kind := req.Options.TransformKind()
	transformStart := c.clock.Now()
	processed := make([]string, 0, len(result.Paths))
	for _, in := range result.Paths {
		out, err := c.transformer.Transform(ctx, TransformRequest{InputPath: in, Kind: kind})
		if err != nil {
			stageDuration.WithLabelValues(string(StateTransforming)).Observe(c.clock.Now().Sub(transformStart).Seconds())
			return c.asCancelled(ctx, err)
		}
		c.tasks.ClaimPath(req.Requester, out)
		c.tasks.DisclaimPath(req.Requester, in)
		processed = append(processed, out)
	}
	stageDuration.WithLabelValues(string(StateTransforming)).Observe(c.clock.Now().Sub(transformStart).Seconds())

	// Delivering.
	c.editStatus(ctx, status, "Sending (3/3)...")
	if req.Options.Batch {
		for _, path := range processed {
			if err := c.deliverOne(ctx, req, mode, runID, path, false); err != nil {
				return err
			}
		}
		return nil
	}

	// Single item: promote the final artifact out of the run directory so
	// it can outlive the run as the cache target.
	final, err := c.promote(req.Requester, processed[0], runID)
	if err != nil {
		return err
	}
	if err := c.deliverOne(ctx, req, mode, runID, final, true); err != nil {
		if rmErr := os.Remove(final); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove undelivered artifact", zap.Error(rmErr))
		}
		return err
	}
	key, err := CacheKey(req.SourceURL)
	if err != nil {
		return err
	}
	entry := CacheEntry{Key: key, Path: final, Timestamp: c.clock.Now()}
	if err := c.cache.Put(ctx, entry); err != nil {
		// Delivery already succeeded; a failed cache write only costs a
		// future re-fetch.
		logger.Warn("cache update failed", zap.Error(err))
	}
	return nil
}

// cachedArtifact returns a valid cached path for the key. Entries whose
// backing file is missing or empty are treated as misses and evicted.
func (c *Coordinator) cachedArtifact(ctx context.Context, key string, logger *zap.Logger) (string, bool) {
	entry, ok, err := c.cache.Lookup(ctx, key)
	if err != nil {
		logger.Warn("cache lookup failed", zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	info, err := os.Stat(entry.Path)
	if err != nil || info.Size() == 0 {
		logger.Debug("evicting invalid cache entry", zap.String("path", entry.Path))
		if evictErr := c.cache.Evict(ctx, key); evictErr != nil {
			logger.Warn("cache evict failed", zap.Error(evictErr))
		}
		return "", false
	}
	return entry.Path, true
}

// deliverOne hands a single ready artifact to the delivery dispatcher and
// updates delivery accounting.
func (c *Coordinator) deliverOne(ctx context.Context, req Request, mode DeliveryMode, runID, path string, keep bool) error {
	size := artifactSize(path)
	start := c.clock.Now()
	receipt, err := c.deliverer.Deliver(ctx, DeliveryRequest{
		Path:       path,
		RunID:      runID,
		Mode:       mode,
		Dest:       req.Destination,
		AsDocument: req.Options.AsDocument,
		Caption:    captionFor(path, req.Options),
		KeepLocal:  keep,
	})
	stageDuration.WithLabelValues(string(StateDelivering)).Observe(c.clock.Now().Sub(start).Seconds())
	if err != nil {
		return c.asCancelled(ctx, err)
	}
	bytesDelivered.Add(float64(size))
	if receipt.Link != "" {
		c.logger.Info("artifact published",
			zap.String("requester", req.Requester),
			zap.String("link", receipt.Link))
	}
	if !keep {
		c.tasks.DisclaimPath(req.Requester, path)
	}
	return nil
}

// promote moves an artifact from the run directory to the top of the work
// area, where it can serve as a cache target after the run ends.
func (c *Coordinator) promote(requester, path, runID string) (string, error) {
	final := filepath.Join(c.cfg.WorkDir, runID+"_"+filepath.Base(path))
	if err := os.Rename(path, final); err != nil {
		return "", fmt.Errorf("promote artifact: %w", err)
	}
	c.tasks.DisclaimPath(requester, path)
	c.tasks.ClaimPath(requester, final)
	return final, nil
}

// asCancelled collapses stage errors caused by run cancellation into
// ErrCancelled so no cache mutation or operator notification follows.
func (c *Coordinator) asCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}

func (c *Coordinator) sendText(ctx context.Context, dest, text string) {
	if err := c.sender.SendText(ctx, dest, text); err != nil {
		c.logger.Warn("send text failed", zap.String("dest", dest), zap.Error(err))
	}
}

func (c *Coordinator) editStatus(ctx context.Context, msg StatusMessage, text string) {
	if msg.Dest == "" {
		return
	}
	if err := c.sender.EditStatus(ctx, msg, text); err != nil {
		c.logger.Debug("status edit failed", zap.Error(err))
	}
}

// notifyOperator forwards stage failures to the operator channel.
// Validation rejections never reach the operator.
func (c *Coordinator) notifyOperator(ctx context.Context, req Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return
	}
	event := OperatorEvent{
		Requester: req.Requester,
		SourceURL: req.SourceURL,
		Stage:     stageOf(err),
		Error:     err.Error(),
		At:        c.clock.Now(),
	}
	if nerr := c.notifier.NotifyOperator(ctx, event); nerr != nil {
		c.logger.Warn("operator notification failed", zap.Error(nerr))
	}
}

// stageOf maps the error taxonomy back to the stage that produced it.
func stageOf(err error) RunState {
	var (
		transient *TransientFetchError
		tool      *ToolError
		timeout   *TimeoutError
		integrity *IntegrityError
		delivery  *DeliveryError
		capacity  *CapacityError
	)
	switch {
	case errors.As(err, &transient), errors.As(err, &integrity):
		return StateFetching
	case errors.As(err, &timeout):
		return StateTransforming
	case errors.As(err, &delivery), errors.As(err, &capacity):
		return StateDelivering
	case errors.As(err, &tool):
		if tool.Stage != "" {
			return tool.Stage
		}
		return StateTransforming
	default:
		return StateDone
	}
}

// shortCause turns the error taxonomy into a one-line user-facing cause.
func shortCause(err error) string {
	var (
		verr      *ValidationError
		transient *TransientFetchError
		tool      *ToolError
		timeout   *TimeoutError
		integrity *IntegrityError
		delivery  *DeliveryError
		capacity  *CapacityError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid link"
	case errors.As(err, &transient):
		return "network trouble while downloading"
	case errors.As(err, &timeout):
		return "processing timed out"
	case errors.As(err, &integrity):
		return "downloaded file was empty"
	case errors.As(err, &capacity):
		return "file is too large to send"
	case errors.As(err, &delivery):
		return "sending failed"
	case errors.As(err, &tool):
		return "processing failed"
	default:
		return "unexpected error"
	}
}

func captionFor(path string, opts Options) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case opts.AudioOnly:
		return "audio: " + name
	case opts.ToGIF:
		return "gif: " + name
	default:
		return name
	}
}

func artifactSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
