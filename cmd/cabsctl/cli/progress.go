package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/cabshq/cabs/cmd/cabsctl/client"
)

// progressMode returns the configured progress mode: "auto", "tty", or "plain".
func progressMode() string {
	mode := viper.GetString("progress")
	switch mode {
	case "auto", "tty", "plain":
		return mode
	default:
		return "auto"
	}
}

// shouldShowProgress returns true if progress bars should be displayed.
func shouldShowProgress() bool {
	switch progressMode() {
	case "plain":
		return false
	case "tty":
		return true
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// charmProgress wraps the charmbracelet progress bar for byte-based operations.
type charmProgress struct {
	bar         progress.Model
	description string
	total       int64
}

func newCharmProgress(total int64, description string) *charmProgress {
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	return &charmProgress{bar: bar, description: description, total: total}
}

func (p *charmProgress) render(transferred int64) {
	var percent float64
	if p.total > 0 {
		percent = float64(transferred) / float64(p.total)
	}
	fmt.Fprintf(os.Stderr, "\r\033[K%s %s %s/%s",
		p.description,
		p.bar.ViewAs(percent),
		formatBytes(transferred),
		formatBytes(p.total),
	)
}

func (p *charmProgress) finish() {
	fmt.Fprintln(os.Stderr)
}

// formatBytes formats bytes in a human-readable format.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// newPutProgress creates a progress callback for put operations. Returns a
// nil callback if progress should not be shown.
func newPutProgress() (callback client.ProgressCallback, finish func()) {
	return newProgress("Uploading")
}

// newGetProgress creates a progress callback for get operations. Returns a
// nil callback if progress should not be shown.
func newGetProgress() (callback client.ProgressCallback, finish func()) {
	return newProgress("Downloading")
}

func newProgress(description string) (callback client.ProgressCallback, finish func()) {
	if !shouldShowProgress() {
		return nil, func() {}
	}

	var bar *charmProgress
	var once sync.Once

	callback = func(event client.ProgressEvent) {
		once.Do(func() {
			bar = newCharmProgress(event.TotalBytes, description)
		})
		if bar != nil {
			bar.render(event.BytesTransferred)
		}
	}
	finish = func() {
		if bar != nil {
			bar.finish()
		}
	}
	return callback, finish
}
