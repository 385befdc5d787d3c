package pipeline

import (
	"time"
)

// RunState represents the lifecycle state of a pipeline run.
type RunState string

// Run states, in transition order.
const (
	StateAdmitted     RunState = "admitted"
	StateCacheCheck   RunState = "cache_check"
	StateFetching     RunState = "fetching"
	StateTransforming RunState = "transforming"
	StateDelivering   RunState = "delivering"
	StateDone         RunState = "done"
)

// Outcome is the terminal result of a run.
type Outcome string

// Terminal outcomes recorded in statistics and metrics.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Quality selects the fetch format for video sources.
type Quality string

// Supported quality selectors.
const (
	Quality480  Quality = "480p"
	Quality720  Quality = "720p"
	Quality1080 Quality = "1080p"
	Quality4K   Quality = "4k"
	QualityBest Quality = "best"
)

// FormatExpr maps a quality selector to the fetch tool's format expression.
func (q Quality) FormatExpr() string {
	switch q {
	case Quality480:
		return "bestvideo[height<=480]+bestaudio/best[height<=480]"
	case Quality720:
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	case Quality1080:
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case Quality4K:
		return "bestvideo[height<=2160]+bestaudio/best[height<=2160]"
	case QualityBest:
		return "bestvideo+bestaudio/best"
	default:
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	}
}

// TransformKind names the post-processing applied to a fetched artifact.
type TransformKind string

// Transform kinds.
const (
	TransformCompress    TransformKind = "compress"
	TransformGIF         TransformKind = "gif"
	TransformAudio       TransformKind = "audio"
	TransformPassthrough TransformKind = "passthrough"
)

// DeliveryMode selects the sink for a ready artifact.
type DeliveryMode string

// Delivery modes. Direct transfers above the size threshold are chunked
// automatically by the delivery dispatcher.
const (
	DeliverDirect    DeliveryMode = "direct"
	DeliverShareLink DeliveryMode = "share_link"
	DeliverCloud     DeliveryMode = "cloud"
)

// Options captures the per-request knobs chosen by the requester.
type Options struct {
	Quality     Quality `json:"quality"`
	AudioOnly   bool    `json:"audio_only"`
	AsDocument  bool    `json:"as_document"`
	ToGIF       bool    `json:"to_gif"`
	ShareLink   bool    `json:"share_link"`
	CloudUpload bool    `json:"cloud_upload"`
	Batch       bool    `json:"batch"`
}

// TransformKind derives the transform stage behavior from the options.
// Audio-only runs map to passthrough because the fetch tool extracts the
// audio container itself (-x); TransformAudio exists for callers driving
// the transform stage directly on an already-materialized video artifact.
func (o Options) TransformKind() TransformKind {
	switch {
	case o.ToGIF:
		return TransformGIF
	case o.AudioOnly:
		return TransformPassthrough
	default:
		return TransformCompress
	}
}

// DeliveryMode derives the sink from the options.
func (o Options) DeliveryMode() DeliveryMode {
	switch {
	case o.ShareLink:
		return DeliverShareLink
	case o.CloudUpload:
		return DeliverCloud
	default:
		return DeliverDirect
	}
}

// Request is an admitted unit of work. Immutable once admitted.
type Request struct {
	SourceURL   string  `json:"source_url"`
	Requester   string  `json:"requester"`
	Destination string  `json:"destination"`
	Options     Options `json:"options"`
}

// CacheEntry maps a source identifier to a previously delivered artifact.
type CacheEntry struct {
	Key       string
	Path      string
	Timestamp time.Time
}

// FetchRequest carries everything the fetch stage needs for one source.
type FetchRequest struct {
	RunID     string
	URL       string
	Format    string
	AudioOnly bool
	Batch     bool
	OutputDir string
}

// FetchResult holds the materialized artifact paths, ordered as produced.
// Single mode yields exactly one path.
type FetchResult struct {
	Paths []string
}

// TransformRequest carries one artifact through the transform stage.
type TransformRequest struct {
	InputPath string
	Kind      TransformKind
}

// DeliveryRequest dispatches one ready artifact to a sink.
type DeliveryRequest struct {
	Path string
	// RunID partitions chunk part paths between concurrent runs; two
	// runs delivering the same cached artifact must never share parts.
	RunID      string
	Mode       DeliveryMode
	Dest       string
	AsDocument bool
	Caption    string
	// KeepLocal prevents post-delivery deletion when the artifact serves
	// as the cache target for future requests.
	KeepLocal bool
}

// DeliveryReceipt reports where the artifact ended up. Link is set for
// share-link and cloud uploads.
type DeliveryReceipt struct {
	Link string
}

// StatusMessage identifies an editable status message at a destination.
type StatusMessage struct {
	Dest string
	ID   int
}

// OperatorEvent is forwarded to the operator notification channel on
// stage failures.
type OperatorEvent struct {
	Requester string    `json:"requester"`
	SourceURL string    `json:"source_url"`
	Stage     RunState  `json:"stage"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}
