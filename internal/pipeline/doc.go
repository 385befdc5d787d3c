// Package pipeline implements the media acquisition engine: request
// admission, the bounded concurrency limiter, the per-requester active-task
// registry, and the coordinator that drives each request through the
// fetch, transform, and delivery stages.
package pipeline
