// Package segment plans how a long recording is cut into pieces that a
// transcription backend accepts, preferring cuts inside silence.
package segment

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

const (
	DefaultMaxSegment   = 600 * time.Second
	DefaultSearchWindow = 180 * time.Second
	DefaultMinTail      = 10 * time.Second
)

var (
	ErrZeroDuration    = errors.New("audio duration must be positive")
	ErrInvalidInterval = errors.New("invalid speech interval")
	ErrInvalidOptions  = errors.New("invalid segmentation options")
)

// Interval is a span of detected speech.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// Segment is one contiguous piece of the recording, identified by its
// position in the plan.
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration
}

func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("#%d [%s-%s]", s.Index, s.Start, s.End)
}

// Options tune Plan. Zero fields take the package defaults.
type Options struct {
	MaxSegment   time.Duration
	SearchWindow time.Duration
	MinTail      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxSegment:   DefaultMaxSegment,
		SearchWindow: DefaultSearchWindow,
		MinTail:      DefaultMinTail,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSegment == 0 {
		o.MaxSegment = DefaultMaxSegment
	}
	if o.SearchWindow == 0 {
		o.SearchWindow = DefaultSearchWindow
	}
	if o.MinTail == 0 {
		o.MinTail = DefaultMinTail
	}
	return o
}

func (o Options) validate() error {
	if o.MaxSegment <= 0 {
		return fmt.Errorf("%w: max segment %s", ErrInvalidOptions, o.MaxSegment)
	}
	if o.SearchWindow < 0 {
		return fmt.Errorf("%w: search window %s", ErrInvalidOptions, o.SearchWindow)
	}
	if o.MinTail < 0 || o.MinTail >= o.MaxSegment {
		return fmt.Errorf("%w: min tail %s", ErrInvalidOptions, o.MinTail)
	}
	return nil
}

// Stats reports how a plan was produced.
type Stats struct {
	SilenceCuts int
	HardCuts    int
	Oversized   int
}

// Single returns the one-segment plan covering the whole recording.
func Single(duration time.Duration) ([]Segment, error) {
	if duration <= 0 {
		return nil, ErrZeroDuration
	}
	return []Segment{{Index: 0, Start: 0, End: duration}}, nil
}

// Plan cuts [0, duration] into contiguous segments no longer than
// opts.MaxSegment, placing each cut in the silence gap nearest to the ideal
// boundary. Zero option fields take the package defaults.
func Plan(duration time.Duration, intervals []Interval, opts Options) ([]Segment, error) {
	segments, _, err := PlanWithStats(duration, intervals, opts)
	return segments, err
}

func PlanWithStats(duration time.Duration, intervals []Interval, opts Options) ([]Segment, Stats, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, Stats{}, err
	}
	if duration <= 0 {
		return nil, Stats{}, ErrZeroDuration
	}
	if duration <= opts.MaxSegment {
		segments, err := Single(duration)
		return segments, Stats{}, err
	}

	speech, err := sanitize(intervals, duration)
	if err != nil {
		return nil, Stats{}, err
	}
	gaps := gapMidpoints(speech)

	var (
		stats    Stats
		segments []Segment
		start    time.Duration
	)
	for duration-start > opts.MaxSegment {
		ideal := start + opts.MaxSegment
		cut, kind := chooseCut(gaps, start, ideal, opts)
		switch kind {
		case cutSilence:
			stats.SilenceCuts++
		case cutSilenceLate:
			stats.SilenceCuts++
			stats.Oversized++
		default:
			stats.HardCuts++
		}

		if duration-cut < opts.MinTail {
			break
		}
		segments = append(segments, Segment{Index: len(segments), Start: start, End: cut})
		start = cut
	}
	segments = append(segments, Segment{Index: len(segments), Start: start, End: duration})

	return segments, stats, nil
}

type cutKind int

const (
	cutHard cutKind = iota
	cutSilence
	cutSilenceLate
)

// chooseCut prefers the gap closest to ideal at or before it, then the
// closest gap after it, and finally a hard cut at ideal.
func chooseCut(gaps []time.Duration, start, ideal time.Duration, opts Options) (time.Duration, cutKind) {
	floor := start + opts.MinTail

	best, found := time.Duration(0), false
	for _, g := range gaps {
		if g <= floor || g < ideal-opts.SearchWindow {
			continue
		}
		if g > ideal {
			break
		}
		best, found = g, true
	}
	if found {
		return best, cutSilence
	}

	for _, g := range gaps {
		if g <= ideal || g <= floor {
			continue
		}
		if g > ideal+opts.SearchWindow {
			break
		}
		return g, cutSilenceLate
	}

	return ideal, cutHard
}

// sanitize sorts, clamps and merges intervals. Values that cannot describe
// a span of time are rejected.
func sanitize(intervals []Interval, duration time.Duration) ([]Interval, error) {
	out := make([]Interval, 0, len(intervals))
	for i, iv := range intervals {
		if iv.Start < 0 || iv.End < 0 || iv.Start > iv.End {
			return nil, fmt.Errorf("%w: #%d [%s, %s]", ErrInvalidInterval, i, iv.Start, iv.End)
		}
		if iv.Start >= duration {
			continue
		}
		iv.End = min(iv.End, duration)
		out = append(out, iv)
	}

	slices.SortFunc(out, func(a, b Interval) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})

	merged := out[:0]
	for _, iv := range out {
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, iv.End)
			continue
		}
		merged = append(merged, iv)
	}
	return merged, nil
}

func gapMidpoints(speech []Interval) []time.Duration {
	if len(speech) < 2 {
		return nil
	}
	gaps := make([]time.Duration, 0, len(speech)-1)
	for i := 0; i+1 < len(speech); i++ {
		gaps = append(gaps, speech[i].End+(speech[i+1].Start-speech[i].End)/2)
	}
	return gaps
}

// Validate reports whether segments are indexed in order and cover
// [0, duration] without gaps or overlap.
func Validate(segments []Segment, duration time.Duration) error {
	if len(segments) == 0 {
		return errors.New("empty segment plan")
	}
	var cursor time.Duration
	for i, s := range segments {
		if s.Index != i {
			return fmt.Errorf("segment %d has index %d", i, s.Index)
		}
		if s.Start != cursor {
			return fmt.Errorf("segment %d starts at %s, want %s", i, s.Start, cursor)
		}
		if s.End <= s.Start {
			return fmt.Errorf("segment %d is empty", i)
		}
		cursor = s.End
	}
	if cursor != duration {
		return fmt.Errorf("plan ends at %s, want %s", cursor, duration)
	}
	return nil
}

// Seconds converts a float seconds value, as reported by media probes, to a
// duration.
func Seconds(v float64) time.Duration {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(math.Round(v * float64(time.Second)))
}
