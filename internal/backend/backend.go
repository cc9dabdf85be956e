// Package backend defines the contract between the transcription pipeline
// and the hosted models that turn audio into text and text into summaries.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fmueller/voxnote/internal/retry"
)

var (
	// ErrEmptyResponse is returned when a model answers without text. It is
	// retried.
	ErrEmptyResponse = fmt.Errorf("%w: empty response", retry.ErrTransient)

	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("service unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrBlocked      = errors.New("response blocked by safety filters")
	ErrNoAPIKey     = errors.New("api key is required")
)

// Audio is one piece of a recording sent for transcription.
type Audio struct {
	Name     string
	Data     []byte
	MIMEType string

	// Index and Total place the piece in its recording; Total is 1 when the
	// recording was not split.
	Index int
	Total int
	Start time.Duration
	End   time.Duration
}

func (a Audio) Segmented() bool {
	return a.Total > 1
}

type SummaryRequest struct {
	Transcript string
	Context    string
}

type Backend interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (string, error)
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// UploadLimiter is implemented by backends that reject audio larger than
// UploadLimit bytes.
type UploadLimiter interface {
	UploadLimit() int64
}

// UploadLimit returns the largest audio payload b accepts, or 0 when it
// has no limit.
func UploadLimit(b Backend) int64 {
	if l, ok := b.(UploadLimiter); ok {
		return l.UploadLimit()
	}
	return 0
}

// StatusError is an HTTP-level failure reported by a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed when repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrUnavailable
	case e.StatusCode >= 400:
		return ErrInvalidInput
	default:
		return nil
	}
}
