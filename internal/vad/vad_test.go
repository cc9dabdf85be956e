package vad

import (
	"testing"
	"time"

	"github.com/fmueller/voxnote/internal/audio/audiotest"
	"github.com/fmueller/voxnote/internal/segment"
	"github.com/stretchr/testify/require"
)

func requireNear(t *testing.T, want, got time.Duration) {
	t.Helper()
	require.InDelta(t, want.Seconds(), got.Seconds(), 0.1, "want %s, got %s", want, got)
}

func TestDetectFindsSpeechRuns(t *testing.T) {
	t.Parallel()

	samples := audiotest.Float(audiotest.Speech(16000, 5, 2, 5))

	intervals, err := NewEnergy(DefaultOptions()).Detect(samples, 16000)
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	requireNear(t, 0, intervals[0].Start)
	requireNear(t, 5*time.Second, intervals[0].End)
	requireNear(t, 7*time.Second, intervals[1].Start)
	requireNear(t, 12*time.Second, intervals[1].End)
}

func TestDetectMergesShortPauses(t *testing.T) {
	t.Parallel()

	samples := audiotest.Float(audiotest.Speech(16000, 2, 0.2, 2))

	intervals, err := NewEnergy(DefaultOptions()).Detect(samples, 16000)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	requireNear(t, 4200*time.Millisecond, intervals[0].End)
}

func TestDetectDropsClicks(t *testing.T) {
	t.Parallel()

	samples := audiotest.Float(audiotest.Speech(16000, 0.05, 3, 2))

	intervals, err := NewEnergy(DefaultOptions()).Detect(samples, 16000)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	requireNear(t, 3*time.Second, intervals[0].Start)
}

func TestDetectSilenceAndEmptyInput(t *testing.T) {
	t.Parallel()

	e := NewEnergy(Options{})

	intervals, err := e.Detect(make([]float32, 16000), 16000)
	require.NoError(t, err)
	require.Empty(t, intervals)

	intervals, err = e.Detect(nil, 16000)
	require.NoError(t, err)
	require.Empty(t, intervals)
}

func TestDetectRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := NewEnergy(Options{Threshold: 1.5}).Detect([]float32{0.1}, 16000)
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestDetectOutputFeedsSegmenter(t *testing.T) {
	t.Parallel()

	// 20 minutes of one-minute utterances separated by short pauses.
	var spans []float64
	for i := 0; i < 20; i++ {
		spans = append(spans, 59, 1)
	}
	const rate = 1000
	samples := audiotest.Float(audiotest.Speech(rate, spans...))

	intervals, err := NewEnergy(Options{SampleRate: rate}).Detect(samples, rate)
	require.NoError(t, err)

	total := 20 * time.Minute
	segments, err := segment.Plan(total, intervals, segment.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, segment.Validate(segments, total))
	require.Len(t, segments, 3)
	requireNear(t, 599500*time.Millisecond, segments[0].End)
	requireNear(t, 1139500*time.Millisecond, segments[1].End)
}

func TestPadSplitsNarrowGaps(t *testing.T) {
	t.Parallel()

	runs := []segment.Interval{
		{Start: time.Second, End: 2 * time.Second},
		{Start: 2*time.Second + 20*time.Millisecond, End: 3 * time.Second},
	}
	got := pad(runs, 30*time.Millisecond, 3*time.Second)
	require.Equal(t, 2*time.Second+10*time.Millisecond, got[0].End)
	require.Equal(t, got[0].End, got[1].Start)
	require.Equal(t, 970*time.Millisecond, got[0].Start)
	require.Equal(t, 3*time.Second, got[1].End)
}
