package download

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned for job ids the registry does not know.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when a job id is registered twice.
	ErrDuplicateJob = errors.New("job already registered")
)

// terminateGrace is how long Cancel waits after a graceful stop request
// before escalating to a forceful kill.
const terminateGrace = 5 * time.Second

// Job is a live registry entry for one running download.
type Job struct {
	ID          string
	ProviderTag string
	LibraryPath string
	StartedAt   time.Time

	handle    Provider
	cancelled atomic.Bool
}

// Cancelled reports whether Cancel was requested for this job.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Registry tracks running jobs by id. The streaming session registers a job
// after its engine launches and unregisters it when the stream finishes;
// Cancel is the only other party that mutates entries.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	log  zerolog.Logger
}

// NewRegistry creates an empty job registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		log:  log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a running job. Registering an id that is already present
// fails without touching the existing entry.
func (r *Registry) Register(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return ErrDuplicateJob
	}
	r.jobs[job.ID] = job
	return nil
}

// Lookup returns the job for an id, or ErrNotFound.
func (r *Registry) Lookup(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Unregister removes a job. Removing an absent id is a no-op so that the
// session's deferred cleanup and an explicit Cancel can both run.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Count returns the number of live jobs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Cancel stops a running job: graceful stop first, forceful kill if the
// engine is still alive after the grace period. For process-backed jobs the
// library path is swept for engine temp files afterwards; the count of
// removed files is returned. Unknown ids return ErrNotFound.
func (r *Registry) Cancel(ctx context.Context, id string) (int, error) {
	job, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}

	job.cancelled.Store(true)
	r.log.Info().Str("job_id", id).Str("provider", job.ProviderTag).Msg("Cancelling job")

	if err := job.handle.Terminate(); err != nil {
		r.log.Debug().Err(err).Str("job_id", id).Msg("Graceful stop request failed")
	}

	waitCtx, cancel := context.WithTimeout(ctx, terminateGrace)
	err = job.handle.Wait(waitCtx)
	cancel()
	if err != nil {
		r.log.Warn().Str("job_id", id).Msg("Engine ignored graceful stop, killing")
		if killErr := job.handle.Kill(); killErr != nil {
			r.log.Debug().Err(killErr).Str("job_id", id).Msg("Kill failed")
		}
	}

	r.Unregister(id)

	removed := 0
	if job.ProviderTag == ProviderYtMusic && job.LibraryPath != "" {
		removed = r.sweepPartialFiles(job.LibraryPath)
	}
	return removed, nil
}

// sweepPartialFiles removes engine temp files (*.part, *.ytdl) left under
// the library path by an interrupted run. Filesystem errors are logged and
// swallowed: cancellation must succeed even if cleanup cannot.
func (r *Registry) sweepPartialFiles(root string) int {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".part") && !strings.HasSuffix(path, ".ytdl") {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			r.log.Debug().Err(rmErr).Str("path", path).Msg("Failed to remove partial file")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		r.log.Debug().Err(err).Str("root", root).Msg("Partial file sweep aborted")
	}
	if removed > 0 {
		r.log.Info().Int("removed", removed).Str("root", root).Msg("Removed partial files")
	}
	return removed
}
