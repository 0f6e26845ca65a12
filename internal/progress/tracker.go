package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks download progress. A disabled tracker counts bytes but
// renders nothing, which keeps tests and scripted runs quiet.
type Tracker struct {
	bar       *progressbar.ProgressBar
	enabled   bool
	current   atomic.Int64
	startTime time.Time
}

// New creates a new progress tracker.
func New(enabled bool) *Tracker {
	return &Tracker{
		enabled:   enabled,
		startTime: time.Now(),
	}
}

// Start initializes the bar. total may be -1 when the server did not
// report a Content-Length; the bar then renders as a spinner.
func (t *Tracker) Start(description string, total int64) {
	t.startTime = time.Now()
	if !t.enabled {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Write implements io.Writer so the tracker can sit in an io.MultiWriter
// alongside the destination file.
func (t *Tracker) Write(p []byte) (int, error) {
	t.current.Add(int64(len(p)))
	if t.bar != nil {
		t.bar.Add(len(p))
	}
	return len(p), nil
}

// Current returns the byte count so far.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish completes the bar and prints a summary line.
func (t *Tracker) Finish() {
	if t.bar == nil {
		return
	}
	t.bar.Finish()

	elapsed := time.Since(t.startTime)
	fmt.Println()
	fmt.Printf("Downloaded %d bytes in %s\n", t.current.Load(), elapsed.Round(time.Millisecond))
}
