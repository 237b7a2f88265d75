package download

import (
	"context"
	"fmt"
)

// Provider is a single cancellable engine run producing raw output lines.
// Implementations close Lines when the engine is finished, after which Wait
// returns promptly.
type Provider interface {
	// Start launches the engine. A Start error means nothing is running
	// and Lines will never yield.
	Start(ctx context.Context) error

	// Lines is the engine's merged output, one line per element. The
	// channel is closed when the engine exits.
	Lines() <-chan string

	// Terminate requests a graceful stop.
	Terminate() error

	// Kill stops the engine forcefully. Safe after Terminate.
	Kill() error

	// Wait blocks until the engine has fully released its resources or
	// ctx expires, whichever comes first.
	Wait(ctx context.Context) error

	// ExitCode returns the engine's exit code once Lines is closed.
	// Engines without a process exit status return -1.
	ExitCode() int
}

// NewProvider builds the engine for a provider tag. The tag set is closed;
// unknown tags are a client error.
func NewProvider(tag, url string, cfg JobConfig) (Provider, error) {
	switch tag {
	case ProviderYtMusic:
		return newYtMusicProvider(url, cfg), nil
	case ProviderYouTube:
		return newYouTubeProvider(url, cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", tag)
	}
}
