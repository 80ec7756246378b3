package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	units "github.com/docker/go-units"
	"github.com/pterm/pterm"
)

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
	UpdateText(string)
}

type progressSpinnerFactory func(string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithRemoveWhenDone(false).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// spinnerFactory is swapped out in tests.
var spinnerFactory = defaultSpinnerFactory

const progressUpdateInterval = 100 * time.Millisecond

// downloadProgress reports download progress on a spinner. It implements go-getter's
// ProgressTracker.
type downloadProgress struct {
	spinner progressSpinner
	text    string
	clock   clock.Clock
}

// TrackProgress wraps the download stream so reads update the spinner at most every
// progressUpdateInterval, and always on the last one.
func (p *downloadProgress) TrackProgress(src string, currentSize, totalSize int64, stream io.ReadCloser) io.ReadCloser {
	clk := p.clock
	if clk == nil {
		clk = clock.New()
	}
	return &progressReader{ReadCloser: stream, progress: p, clock: clk, read: currentSize, total: totalSize}
}

type progressReader struct {
	io.ReadCloser
	progress *downloadProgress
	clock    clock.Clock

	mu      sync.Mutex
	read    int64
	total   int64
	updated time.Time
}

func (r *progressReader) Read(b []byte) (int, error) {
	n, err := r.ReadCloser.Read(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.read += int64(n)
	if now := r.clock.Now(); err != nil || now.Sub(r.updated) >= progressUpdateInterval {
		r.updated = now
		r.progress.spinner.UpdateText(r.progress.text + " " + formatProgress(r.read, r.total))
	}
	return n, err
}

// formatProgress formats read bytes, out of total when the total is known.
func formatProgress(read, total int64) string {
	if total <= 0 {
		return units.HumanSize(float64(read))
	}
	return fmt.Sprintf("%s / %s (%d%%)",
		units.HumanSize(float64(read)),
		units.HumanSize(float64(total)),
		read*100/total)
}
