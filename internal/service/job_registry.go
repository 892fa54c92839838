package service

import (
	"context"
	"strconv"
	"sync"
)

// jobTracker is the live, in-memory side of a running import job. The
// progress log is appended by the job's own task and read by status queries.
type jobTracker struct {
	jobID     string
	cancelled bool
	sealed    bool
	cancel    context.CancelFunc

	mu       sync.RWMutex
	progress []string
	limit    int
	dropped  int
}

// RequestCancel flags the job for cancellation. It returns false once the
// job has committed to completing.
func (t *jobTracker) RequestCancel() bool {
	t.mu.Lock()
	if t.sealed {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (t *jobTracker) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// seal refuses later cancel requests and reports whether one came first.
func (t *jobTracker) seal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
	return t.cancelled
}

func (t *jobTracker) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	cancelled := t.cancelled
	t.mu.Unlock()
	if cancelled {
		cancel()
	}
}

func (t *jobTracker) Log(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit > 0 && len(t.progress) >= t.limit {
		t.progress = t.progress[1:]
		t.dropped++
	}
	t.progress = append(t.progress, msg)
}

// Progress returns a copy of the log; when older entries were trimmed the
// first line says how many.
func (t *jobTracker) Progress() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.progress)+1)
	if t.dropped > 0 {
		out = append(out, formatDropped(t.dropped))
	}
	return append(out, t.progress...)
}

// JobRegistry holds the trackers of jobs that are queued or running in this
// process. It is owned by the ImportService instance.
type JobRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*jobTracker
	limit    int
}

func NewJobRegistry(progressLimit int) *JobRegistry {
	return &JobRegistry{
		trackers: make(map[string]*jobTracker),
		limit:    progressLimit,
	}
}

func (r *JobRegistry) add(jobID string) *jobTracker {
	t := &jobTracker{jobID: jobID, limit: r.limit}

	r.mu.Lock()
	r.trackers[jobID] = t
	r.mu.Unlock()

	return t
}

func (r *JobRegistry) get(jobID string) (*jobTracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[jobID]
	return t, ok
}

func (r *JobRegistry) remove(jobID string) {
	r.mu.Lock()
	delete(r.trackers, jobID)
	r.mu.Unlock()
}

func (r *JobRegistry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}

func formatDropped(n int) string {
	return "... " + strconv.Itoa(n) + " earlier messages omitted"
}
