package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jacklau/icedb/internal/pipeline"
	"github.com/jacklau/icedb/internal/pubsub"
)

// progressBar is a simple terminal progress bar that writes to stderr.
type progressBar struct {
	total       int
	current     int
	width       int
	description string
	writer      io.Writer
}

// newProgressBar creates a new progress bar.
func newProgressBar(total int, description string, writer io.Writer) *progressBar {
	return &progressBar{
		total:       total,
		width:       30,
		description: description,
		writer:      writer,
	}
}

// Add increments the progress bar by n.
func (p *progressBar) Add(n int) {
	p.current += n
	if p.current > p.total {
		p.current = p.total
	}
	p.render()
}

// Describe replaces the label shown before the bar.
func (p *progressBar) Describe(description string) {
	p.description = description
	p.render()
}

// Finish completes the progress bar and prints a newline.
func (p *progressBar) Finish() {
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// render draws the progress bar to the writer using carriage return.
func (p *progressBar) render() {
	if p.total <= 0 {
		return
	}

	pct := float64(p.current) / float64(p.total)
	filled := int(pct * float64(p.width))
	if filled > p.width {
		filled = p.width
	}

	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	// Pad so a shorter description fully overwrites a longer one.
	fmt.Fprintf(p.writer, "\r%-12s [%s] %d/%d", p.description, bar, p.current, p.total)
}

// trackStages draws bar from pipeline progress events until the broker is
// closed or ctx ends. The returned channel is closed once drawing stops.
func trackStages(ctx context.Context, broker *pubsub.Broker[pipeline.Progress], bar *progressBar) <-chan struct{} {
	events := broker.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			switch evt.Type {
			case pubsub.Started:
				bar.Describe(string(evt.Payload.Stage))
			case pubsub.Finished:
				bar.Add(1)
			case pubsub.Failed:
				bar.Describe(string(evt.Payload.Stage) + " failed")
			}
		}
		fmt.Fprintln(bar.writer)
	}()
	return done
}
