package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

// etaDescription renders "<label> ETA: 3s" from progress since start.
func etaDescription(label string, start time.Time, done, total int) string {
	if done == 0 {
		return "[cyan]" + label + "[reset]"
	}
	rate := float64(done) / time.Since(start).Seconds()
	if rate <= 0 {
		return "[cyan]" + label + "[reset]"
	}
	eta := time.Duration(float64(total-done)/rate) * time.Second
	return fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
