package cli

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	_, stop := spin(enabled, description)
	return stop
}

// startSegmentProgress shows a spinner whose description tracks finished
// segments. The returned callback fits transcribe.Options.OnSegment.
func startSegmentProgress(enabled bool, description string) (func(done, total int), stopFunc) {
	bar, stop := spin(enabled, description)
	if bar == nil {
		return func(int, int) {}, stop
	}
	return func(done, total int) {
		if total > 1 {
			bar.Describe(fmt.Sprintf("%s (%d/%d segments)", description, done, total))
		}
	}, stop
}

func spin(enabled bool, description string) (*progressbar.ProgressBar, stopFunc) {
	if !enabled {
		return nil, func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return bar, func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}
