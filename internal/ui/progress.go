package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"avatx/internal/domain"
)

// ProgressBar creates and manages progress bars
type ProgressBar struct {
	bar *progressbar.ProgressBar

	mu                      sync.Mutex
	passed, failed, skipped int
}

// NewProgressBar creates a new progress bar over count tests, drawn on w.
func NewProgressBar(w io.Writer, count int) *ProgressBar {
	p := &ProgressBar{}
	p.bar = progressbar.NewOptions(count,
		progressbar.OptionSetDescription(p.describe()),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return p
}

// Record counts a final state and advances the bar. Other states are ignored.
func (p *ProgressBar) Record(state domain.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch state {
	case domain.StatePassed:
		p.passed++
	case domain.StateFailed, domain.StateErrored:
		p.failed++
	case domain.StateSkipped:
		p.skipped++
	default:
		return
	}
	p.render()
}

// Update updates the progress bar with the outcome counts
func (p *ProgressBar) Update(passed, failed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passed, p.failed, p.skipped = passed, failed, skipped
	p.render()
}

// Counts returns the outcomes recorded so far.
func (p *ProgressBar) Counts() (passed, failed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passed, p.failed, p.skipped
}

func (p *ProgressBar) render() {
	_ = p.bar.Set(p.passed + p.failed + p.skipped)
	p.bar.Describe(p.describe())
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

func (p *ProgressBar) describe() string {
	return color.CyanString("Running tests: ") +
		color.GreenString("[passed: %d", p.passed) +
		" | " +
		color.RedString("failed: %d", p.failed) +
		" | " +
		color.YellowString("skipped: %d]", p.skipped)
}
