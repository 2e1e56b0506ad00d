package utils

import (
	"sync"
	"time"
)

// JobState guards a top-level job so that only one run is active at a time.
// A second TryStart while running returns false instead of queueing.
type JobState struct {
	mu      sync.Mutex
	running bool
	started time.Time
}

// TryStart marks the job as running and reports whether the caller acquired it
func (j *JobState) TryStart() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return false
	}
	j.running = true
	j.started = time.Now()
	return true
}

// Finish marks the job idle again
func (j *JobState) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.running = false
	j.started = time.Time{}
}

// Running returns whether the job is active and when it started
func (j *JobState) Running() (bool, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.running, j.started
}
