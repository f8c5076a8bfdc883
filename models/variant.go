package models

import (
	"fmt"
	"time"
)

// QualityPolicy selects how a variant is recompressed.
// A zero MaxBytes means a single encode at Quality; otherwise the encoder
// searches down from Start in Step decrements until the output fits MaxBytes
// or the next step would reach Min. Min is an exclusive floor.
type QualityPolicy struct {
	Quality int // fixed quality, 1–100

	Start    int
	Min      int
	Step     int
	MaxBytes int
}

// FixedQuality returns a one-shot policy.
func FixedQuality(q int) QualityPolicy {
	return QualityPolicy{Quality: q}
}

// AdaptiveQuality returns a quality-search policy bounded by maxBytes.
func AdaptiveQuality(start, min, step, maxBytes int) QualityPolicy {
	return QualityPolicy{Start: start, Min: min, Step: step, MaxBytes: maxBytes}
}

// Adaptive reports whether the policy performs a quality search.
func (p QualityPolicy) Adaptive() bool {
	return p.MaxBytes > 0
}

// MaxIterations is the upper bound on encodes the policy may perform.
func (p QualityPolicy) MaxIterations() int {
	if !p.Adaptive() || p.Step <= 0 || p.Start <= p.Min {
		return 1
	}
	return (p.Start-p.Min)/p.Step + 1
}

// VariantSpec describes one derivative produced per source image.
// Specs come from a route profile and are never built from request input.
type VariantSpec struct {
	Name        string // "thumbnail", "main", "gallery"
	KeyPrefix   string // object key prefix, e.g. "thumb"
	Field       string // record field; empty means the request's targetField
	ResponseKey string // response attribute, e.g. "thumbnailUrl"; empty omits it
	MaxWidth    int
	Quality     QualityPolicy
	Sharpen     float64 // gaussian sigma, 0 disables
}

// Validate checks that the spec can be executed with a bounded amount of work.
func (s VariantSpec) Validate() error {
	if s.Name == "" || s.KeyPrefix == "" {
		return fmt.Errorf("variant spec requires name and key prefix")
	}
	if s.MaxWidth <= 0 {
		return fmt.Errorf("variant %s: max width must be positive", s.Name)
	}
	q := s.Quality
	if q.Adaptive() {
		if q.Step <= 0 {
			return fmt.Errorf("variant %s: quality step must be positive", s.Name)
		}
		if q.Min < 0 || q.Start < 1 || q.Start > 100 || q.Start < q.Min {
			return fmt.Errorf("variant %s: quality range %d..%d is invalid", s.Name, q.Start, q.Min)
		}
	} else if q.Quality < 1 || q.Quality > 100 {
		return fmt.Errorf("variant %s: quality %d out of range", s.Name, q.Quality)
	}
	if s.Sharpen < 0 {
		return fmt.Errorf("variant %s: sharpen must not be negative", s.Name)
	}
	return nil
}

// ObjectKey derives the storage key for the spec. Index is ignored when negative.
//
//	thumb-recABC.jpg
//	gallery-recABC-2.jpg
func (s VariantSpec) ObjectKey(recordID string, index int) string {
	if index < 0 {
		return fmt.Sprintf("%s-%s.jpg", s.KeyPrefix, recordID)
	}
	return fmt.Sprintf("%s-%s-%d.jpg", s.KeyPrefix, recordID, index)
}

// VariantResult is a stored and signed derivative.
type VariantResult struct {
	Name        string    `json:"name"`
	Field       string    `json:"field"`
	ResponseKey string    `json:"-"`
	Index       int       `json:"index"`
	ObjectKey   string    `json:"objectKey"`
	SignedURL   string    `json:"url"`
	Expiry      time.Time `json:"expiry"`
	Quality     int       `json:"quality"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int       `json:"size"`

	Bytes []byte `json:"-"`
}
