package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown line while a bounded operation runs.
// It prints nothing unless out is a terminal.
//
//	p := NewProgressPrinter(cmd.OutOrStdout(), "Scanning", 5*time.Second)
//	p.Start()
//	defer p.Stop()
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	enabled  bool

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func NewProgressPrinter(out io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		enabled:  isTerminal(out),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins updating the line in a background goroutine.
func (p *ProgressPrinter) Start() {
	if !p.enabled {
		close(p.done)
		return
	}

	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.print(p.duration)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print(p.duration - time.Since(start))
			}
		}
	}()
}

func (p *ProgressPrinter) print(remaining time.Duration) {
	if p.duration <= 0 {
		fmt.Fprintf(p.out, "\r%s...   ", p.prefix)
		return
	}
	// Round to the nearest second, never below zero.
	seconds := max(int(remaining.Seconds()+0.5), 0)
	fmt.Fprintf(p.out, "\r%s (%ds)   ", p.prefix, seconds)
}

// Stop clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.once.Do(func() {
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}
