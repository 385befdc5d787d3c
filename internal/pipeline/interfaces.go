package pipeline

import (
	"context"
	"time"
)

// CacheStore persists the source→artifact mapping that backs request
// deduplication. Implementations must be safe for concurrent use by the
// coordinator and the sweeper. A hit is only trusted after the caller
// re-validates the backing file.
type CacheStore interface {
	Lookup(ctx context.Context, key string) (CacheEntry, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
	Evict(ctx context.Context, key string) error
	// Stale returns entries whose timestamp is older than the cutoff.
	Stale(ctx context.Context, cutoff time.Time) ([]CacheEntry, error)
	Close() error
}

// Fetcher materializes raw artifacts from a source identifier by invoking
// an external retrieval tool.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Transformer converts a raw artifact into a delivery-ready one. On
// success the input artifact is consumed; on failure it is preserved.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (string, error)
}

// Deliverer dispatches a ready artifact to its sink, chunking oversized
// direct transfers.
type Deliverer interface {
	Deliver(ctx context.Context, req DeliveryRequest) (DeliveryReceipt, error)
}

// ChatSender is the chat transport used for file delivery and status
// reporting.
type ChatSender interface {
	SendFile(ctx context.Context, dest string, path string, asDocument bool, caption string) error
	SendText(ctx context.Context, dest string, text string) error
	SendStatus(ctx context.Context, dest string, text string) (StatusMessage, error)
	EditStatus(ctx context.Context, msg StatusMessage, text string) error
	DeleteStatus(ctx context.Context, msg StatusMessage) error
}

// LinkUploader pushes an artifact to a public link-sharing host.
type LinkUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// CloudUploader pushes an artifact to cloud storage and returns a
// shareable URL. Fails if unconfigured.
type CloudUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Notifier forwards terminal failures to the operator channel.
type Notifier interface {
	NotifyOperator(ctx context.Context, event OperatorEvent) error
}

// HostLimiter throttles fetch-tool invocations per source host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Clock returns the current time (swap-able in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run tokens that partition the artifact namespace.
type IDGenerator interface {
	NewID() (string, error)
}
