package events

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
)

// ConsoleSink renders bus events as human console lines. It runs on its
// own goroutine via Run and stops when its subscription closes.
type ConsoleSink struct {
	out io.Writer
	sub *Subscription
}

// NewConsoleSink subscribes to bus and writes to out.
func NewConsoleSink(bus *Bus, out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out, sub: bus.Subscribe()}
}

// Run drains the subscription until Close. Call on a dedicated goroutine.
func (c *ConsoleSink) Run() {
	for {
		ev, ok := c.sub.Next()
		if !ok {
			return
		}
		fmt.Fprintln(c.out, FormatEvent(ev))
	}
}

// Close detaches the sink; Run returns after draining.
func (c *ConsoleSink) Close() { c.sub.Close() }

// FormatEvent renders one event as a console line.
func FormatEvent(ev Event) string {
	painter := infoColor
	switch ev.Level {
	case LevelWarn:
		painter = warnColor
	case LevelError:
		painter = errorColor
	case LevelSuccess:
		painter = successColor
	}

	prefix := ev.Stage
	if prefix == "" {
		prefix = "pipeline"
	}
	line := painter.Sprintf("[%s]", prefix)
	if ev.Total > 0 {
		line += fmt.Sprintf(" %d/%d (%.0f%%)", ev.Current, ev.Total, ev.Percent)
	}
	if ev.CurrentItem != "" {
		line += " " + ev.CurrentItem
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	if size, ok := ev.Metadata["size"].(int64); ok {
		line += " (" + humanize.Bytes(uint64(size)) + ")"
	}
	return line
}
