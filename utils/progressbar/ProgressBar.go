// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uilive"
)

// ProgressBar implements a progress bar that must be manually managed.
// That is, Display must be called whenever an updated progress bar
// should be printed. Each Display overwrites the previous one in the
// terminal.
//
// ProgressBar does not use concurrency.
type ProgressBar struct {
	width           float64
	maxProgress     float64
	currentProgress float64
	description     string

	bar       strings.Builder
	writer    *uilive.Writer
	startTime time.Time
}

// New returns a new ProgressBar that is width characters wide and
// reaches 100% after max calls to Increment. If out is nil, the
// progress bar is written to standard output.
func New(width, max int, out io.Writer) *ProgressBar {
	writer := uilive.New()
	if out != nil {
		writer.Out = out
	}
	if max < 1 {
		max = 1
	}

	return &ProgressBar{
		width:       float64(width),
		maxProgress: float64(max),
		writer:      writer,
		startTime:   time.Now(),
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Describe sets the text displayed after the progress bar
func (p *ProgressBar) Describe(description string) {
	p.description = description
}

// Progress returns the fraction of progress made, in [0, 1]
func (p *ProgressBar) Progress() float64 {
	return p.currentProgress / p.maxProgress
}

// String returns the current progress bar
func (p *ProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	currentProg := p.Progress() * p.width
	for i := 0.0; i < currentProg; i++ {
		p.bar.WriteString("█")
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.WriteString(" ")
	}
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", p.Progress()*100,
		time.Since(p.startTime).Truncate(time.Second))

	if p.description != "" {
		p.bar.WriteString(" ")
		p.bar.WriteString(p.description)
	}
	return p.bar.String()
}

// Display displays the progress bar, replacing the last one displayed
func (p *ProgressBar) Display() error {
	if _, err := fmt.Fprintln(p.writer, p.String()); err != nil {
		return err
	}
	return p.writer.Flush()
}
