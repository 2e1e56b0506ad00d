package handlers

import (
	"net/http"
	"time"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/sirupsen/logrus"
)

// ReleaseCounter counts stored releases per status
type ReleaseCounter interface {
	CountReleasesByStatus() (map[models.ReleaseStatus]int, error)
}

// Job is a background job that can report whether it is running
type Job interface {
	Running() (bool, time.Time)
}

// StatusHandler handles status requests
type StatusHandler struct {
	store   ReleaseCounter
	renamer Job
	tracker Job
	logger  *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store ReleaseCounter, renamer, tracker Job, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		store:   store,
		renamer: renamer,
		tracker: tracker,
		logger:  logger,
	}
}

// JobStatus describes one background job
type JobStatus struct {
	Running bool       `json:"running"`
	Since   *time.Time `json:"since,omitempty"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalReleases int            `json:"total_releases"`
	Releases      map[string]int `json:"releases"`
	Renamer       JobStatus      `json:"renamer"`
	Tracker       JobStatus      `json:"tracker"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.store.CountReleasesByStatus()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count releases")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Releases: make(map[string]int, len(counts)),
		Renamer:  jobStatus(h.renamer),
		Tracker:  jobStatus(h.tracker),
	}
	for status, n := range counts {
		response.Releases[string(status)] = n
		response.TotalReleases += n
	}

	writeJSON(w, http.StatusOK, response)
}

func jobStatus(job Job) JobStatus {
	if job == nil {
		return JobStatus{}
	}
	running, since := job.Running()
	if !running {
		return JobStatus{}
	}
	return JobStatus{Running: true, Since: &since}
}
