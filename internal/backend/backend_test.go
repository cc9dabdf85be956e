package backend

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/voxnote/internal/retry"
)

func TestStatusErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code  int
		class retry.Class
		is    error
	}{
		{code: 408, class: retry.Transient, is: ErrInvalidInput},
		{code: 429, class: retry.Transient, is: ErrRateLimited},
		{code: 500, class: retry.Transient, is: ErrUnavailable},
		{code: 503, class: retry.Transient, is: ErrUnavailable},
		{code: 400, class: retry.Terminal, is: ErrInvalidInput},
		{code: 401, class: retry.Terminal, is: ErrUnauthorized},
		{code: 403, class: retry.Terminal, is: ErrUnauthorized},
	}

	for _, tc := range tests {
		err := &StatusError{Provider: "test", StatusCode: tc.code}
		require.Equal(t, tc.class, retry.Classify(err), "status %d", tc.code)
		require.ErrorIs(t, err, tc.is, "status %d", tc.code)
	}
}

func TestErrEmptyResponseIsTransient(t *testing.T) {
	t.Parallel()

	require.Equal(t, retry.Transient, retry.Classify(ErrEmptyResponse))
	require.Equal(t, retry.Terminal, retry.Classify(ErrBlocked))
}

func TestTranscriptionPrompt(t *testing.T) {
	t.Parallel()

	whole := TranscriptionPrompt(Audio{Total: 1})
	require.NotContains(t, whole, "part")
	require.Contains(t, whole, "filler words")

	part := TranscriptionPrompt(Audio{Index: 1, Total: 3, Start: 500 * time.Second, End: 1000 * time.Second})
	require.Contains(t, part, "part 2 of 3")
	require.Contains(t, part, "500.0s to 1000.0s")
}

func TestSummaryPrompt(t *testing.T) {
	t.Parallel()

	prompt := SummaryPrompt(SummaryRequest{Transcript: "hello", Context: "weekly sync"})
	require.Contains(t, prompt, "Context: weekly sync")
	require.Contains(t, prompt, "---\nhello\n---")
	require.Contains(t, prompt, "**Keywords**")

	require.NotContains(t, SummaryPrompt(SummaryRequest{Transcript: "hello"}), "Context:")
}

func TestTruncateTranscript(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", TruncateTranscript("short", 10))

	long := strings.Repeat("ä", 20)
	got := TruncateTranscript(long, 10)
	require.True(t, strings.HasPrefix(got, strings.Repeat("ä", 10)))
	require.Contains(t, got, "truncated")
	require.NotContains(t, strings.TrimPrefix(got, strings.Repeat("ä", 10)), "ä")
}
