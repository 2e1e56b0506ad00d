package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/sirupsen/logrus"
)

// Scanner starts renamer scans in the background
type Scanner interface {
	ScanAsync(ctx context.Context, req renamer.Request) bool
}

// SnatchedChecker starts a snatched check in the background
type SnatchedChecker interface {
	CheckSnatchedAsync(ctx context.Context) bool
}

// ScanRequest is the optional body of POST /scan. An empty body scans the
// whole from folder.
type ScanRequest struct {
	Folder      string   `json:"folder"`
	MediaFolder string   `json:"media_folder"`
	Files       []string `json:"files"`
	Downloader  string   `json:"downloader"`
	DownloadID  string   `json:"download_id"`
	Status      string   `json:"status"`
}

// TriggerResponse tells whether a background job was started
type TriggerResponse struct {
	Triggered bool `json:"triggered"`
}

// ScanHandler triggers renamer scans
type ScanHandler struct {
	scanner Scanner
	logger  *logrus.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(scanner Scanner, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{scanner: scanner, logger: logger}
}

// ServeHTTP handles the scan endpoint
func (h *ScanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WithError(err).Error("Failed to decode scan request")
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	req := renamer.Request{
		BaseFolder:  body.Folder,
		MediaFolder: body.MediaFolder,
		Files:       body.Files,
	}
	if body.Downloader != "" && body.DownloadID != "" {
		req.Download = &models.DownloadReport{
			ID:         body.DownloadID,
			Downloader: body.Downloader,
			Status:     models.DownloadStatus(body.Status),
			Folder:     body.MediaFolder,
			Files:      body.Files,
		}
	}

	triggered := h.scanner.ScanAsync(context.WithoutCancel(r.Context()), req)
	h.logger.WithFields(logrus.Fields{
		"folder":    body.Folder,
		"triggered": triggered,
	}).Info("Scan requested")

	writeJSON(w, http.StatusAccepted, TriggerResponse{Triggered: triggered})
}

// CheckSnatchedHandler triggers a snatched check
type CheckSnatchedHandler struct {
	tracker SnatchedChecker
	logger  *logrus.Logger
}

// NewCheckSnatchedHandler creates a new check snatched handler
func NewCheckSnatchedHandler(tracker SnatchedChecker, logger *logrus.Logger) *CheckSnatchedHandler {
	return &CheckSnatchedHandler{tracker: tracker, logger: logger}
}

// ServeHTTP handles the check snatched endpoint
func (h *CheckSnatchedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	triggered := h.tracker.CheckSnatchedAsync(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, TriggerResponse{Triggered: triggered})
}
