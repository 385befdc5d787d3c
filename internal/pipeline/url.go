package pipeline

import (
	"net/url"
	"strings"

	"github.com/rashadk/media-courier/internal/hash/sha256"
)

// ValidateSource performs the structural URL check applied at admission.
// Only absolute http(s) URLs with a host pass; everything else is a
// ValidationError, reported to the requester without touching any
// external tool.
func ValidateSource(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ValidationError{Reason: "empty source URL"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return &ValidationError{Reason: "unparseable source URL"}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &ValidationError{Reason: "source URL must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Reason: "source URL has no host"}
	}
	return nil
}

// NormalizeSource canonicalizes a source URL for use as a cache key:
// lowercased scheme/host, default ports stripped, fragment dropped,
// query parameters sorted.
func NormalizeSource(raw string) (string, error) {
	if err := ValidateSource(raw); err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Reason: "unparseable source URL"}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// CacheKey derives the dedup key for a source URL: the SHA-256 digest of
// its normalized form. Digests keep keys fixed-width regardless of URL
// length, which every store backend can index.
func CacheKey(raw string) (string, error) {
	norm, err := NormalizeSource(raw)
	if err != nil {
		return "", err
	}
	return sha256.Sum([]byte(norm)), nil
}
