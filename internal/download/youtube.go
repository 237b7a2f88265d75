package download

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Internal stream markers the worker enqueues before closing its channel.
// They never reach clients: the translator consumes them.
const (
	markerCancelled = "__CANCELLED__"
	markerException = "__EXCEPTION__: "
)

// lineQueueSize bounds the worker's output queue. A producer that outruns
// the consumer blocks instead of growing memory.
const lineQueueSize = 2000

// errRunCancelled is the worker's internal signal that the cancel flag
// stopped the run between items.
var errRunCancelled = errors.New("run cancelled")

// youTubeProvider runs the embedded engine on a worker goroutine and
// bridges it to the Provider contract with a bounded line queue and a
// cooperative cancel flag checked between items.
type youTubeProvider struct {
	url string
	cfg JobConfig

	lines  chan string
	done   chan struct{}
	cancel atomic.Bool
}

func newYouTubeProvider(url string, cfg JobConfig) *youTubeProvider {
	return &youTubeProvider{
		url:   url,
		cfg:   cfg,
		lines: make(chan string, lineQueueSize),
		done:  make(chan struct{}),
	}
}

// Start spawns the worker goroutine. The embedded engine cannot fail to
// launch; all errors surface as stream markers.
func (p *youTubeProvider) Start(ctx context.Context) error {
	eng := &engine{
		outputDir: p.cfg.OutputDir(),
		emit: func(line string) {
			p.lines <- line
		},
		cancelled: p.cancel.Load,
	}

	go func() {
		defer close(p.done)
		defer close(p.lines)

		err := eng.run(ctx, p.url)
		switch {
		case errors.Is(err, errRunCancelled):
			p.lines <- markerCancelled
		case err != nil:
			p.lines <- fmt.Sprintf("%s%v", markerException, err)
		}
	}()
	return nil
}

func (p *youTubeProvider) Lines() <-chan string {
	return p.lines
}

// Terminate sets the cancel flag; the worker honours it at the next item
// boundary.
func (p *youTubeProvider) Terminate() error {
	p.cancel.Store(true)
	return nil
}

// Kill has no stronger lever than Terminate for an in-process worker.
func (p *youTubeProvider) Kill() error {
	p.cancel.Store(true)
	return nil
}

// Wait blocks until the worker goroutine finishes or ctx expires. An
// abandoned worker past the deadline is left to finish on its own.
func (p *youTubeProvider) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *youTubeProvider) ExitCode() int {
	return -1
}
