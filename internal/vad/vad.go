// Package vad finds speech in mono PCM using frame energy.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/fmueller/voxnote/internal/audio"
	"github.com/fmueller/voxnote/internal/segment"
)

const (
	DefaultThreshold  = 0.5
	DefaultSampleRate = 16000
	DefaultMinSilence = 500 * time.Millisecond
	DefaultSpeechPad  = 30 * time.Millisecond
	DefaultMinSpeech  = 250 * time.Millisecond
	DefaultFrame      = 30 * time.Millisecond
	DefaultFloorDBFS  = -60.0
)

var ErrInvalidOptions = errors.New("invalid vad options")

type Options struct {
	// Threshold is the normalised frame level, 0..1 between FloorDBFS and
	// full scale, at which a frame counts as speech.
	Threshold  float64
	SampleRate int
	MinSilence time.Duration
	SpeechPad  time.Duration
	MinSpeech  time.Duration
	Frame      time.Duration
	FloorDBFS  float64
}

func DefaultOptions() Options {
	return Options{
		Threshold:  DefaultThreshold,
		SampleRate: DefaultSampleRate,
		MinSilence: DefaultMinSilence,
		SpeechPad:  DefaultSpeechPad,
		MinSpeech:  DefaultMinSpeech,
		Frame:      DefaultFrame,
		FloorDBFS:  DefaultFloorDBFS,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold == 0 {
		o.Threshold = d.Threshold
	}
	if o.SampleRate == 0 {
		o.SampleRate = d.SampleRate
	}
	if o.MinSilence == 0 {
		o.MinSilence = d.MinSilence
	}
	if o.SpeechPad == 0 {
		o.SpeechPad = d.SpeechPad
	}
	if o.MinSpeech == 0 {
		o.MinSpeech = d.MinSpeech
	}
	if o.Frame == 0 {
		o.Frame = d.Frame
	}
	if o.FloorDBFS == 0 {
		o.FloorDBFS = d.FloorDBFS
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.Threshold <= 0 || o.Threshold > 1:
		return fmt.Errorf("%w: threshold %v", ErrInvalidOptions, o.Threshold)
	case o.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidOptions, o.SampleRate)
	case o.FloorDBFS >= 0:
		return fmt.Errorf("%w: floor %v dBFS", ErrInvalidOptions, o.FloorDBFS)
	case o.MinSilence < 0 || o.SpeechPad < 0 || o.MinSpeech < 0 || o.Frame <= 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidOptions)
	}
	return nil
}

// Energy is a voice activity detector that scores fixed-size frames by
// their RMS level.
type Energy struct {
	Options Options
}

func NewEnergy(opts Options) *Energy {
	return &Energy{Options: opts}
}

// Detect returns speech intervals in ascending order. Runs separated by less
// than MinSilence are merged and each run is padded by SpeechPad without
// overlapping its neighbours.
func (e *Energy) Detect(samples []float32, sampleRate int) ([]segment.Interval, error) {
	opts := e.Options.withDefaults()
	if sampleRate > 0 {
		opts.SampleRate = sampleRate
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	frameLen := max(1, int(opts.Frame.Seconds()*float64(opts.SampleRate)))
	toTime := func(sample int) time.Duration {
		return time.Duration(float64(sample) / float64(opts.SampleRate) * float64(time.Second))
	}
	total := toTime(len(samples))

	var runs []segment.Interval
	inSpeech := false
	var runStart int
	for off := 0; off < len(samples); off += frameLen {
		end := min(off+frameLen, len(samples))
		speech := e.score(samples[off:end], opts) >= opts.Threshold
		switch {
		case speech && !inSpeech:
			inSpeech, runStart = true, off
		case !speech && inSpeech:
			inSpeech = false
			runs = append(runs, segment.Interval{Start: toTime(runStart), End: toTime(off)})
		}
	}
	if inSpeech {
		runs = append(runs, segment.Interval{Start: toTime(runStart), End: total})
	}

	runs = mergeClose(runs, opts.MinSilence)
	runs = dropShort(runs, opts.MinSpeech)
	return pad(runs, opts.SpeechPad, total), nil
}

func (e *Energy) score(frame []float32, opts Options) float64 {
	level := audio.DBFS(audio.RMS(frame))
	v := (level - opts.FloorDBFS) / -opts.FloorDBFS
	return min(1, max(0, v))
}

func mergeClose(runs []segment.Interval, minSilence time.Duration) []segment.Interval {
	if len(runs) == 0 {
		return runs
	}
	out := []segment.Interval{runs[0]}
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if r.Start-last.End < minSilence {
			last.End = r.End
			continue
		}
		out = append(out, r)
	}
	return out
}

func dropShort(runs []segment.Interval, minSpeech time.Duration) []segment.Interval {
	out := runs[:0]
	for _, r := range runs {
		if r.End-r.Start >= minSpeech {
			out = append(out, r)
		}
	}
	return out
}

// pad widens each run by speechPad, splitting a gap that is too small for
// two pads evenly between its neighbours.
func pad(runs []segment.Interval, speechPad, total time.Duration) []segment.Interval {
	for i := range runs {
		if i == 0 {
			runs[i].Start = max(0, runs[i].Start-speechPad)
		}
		if i == len(runs)-1 {
			runs[i].End = min(total, runs[i].End+speechPad)
			continue
		}
		gap := runs[i+1].Start - runs[i].End
		if gap < 2*speechPad {
			half := gap / 2
			runs[i].End += half
			runs[i+1].Start -= gap - half
			continue
		}
		runs[i].End += speechPad
		runs[i+1].Start -= speechPad
	}
	return runs
}
