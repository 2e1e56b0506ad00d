package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/amaumene/gomovarr/internal/services/torbox"
	"github.com/sirupsen/logrus"
)

// WebhookHandler handles TorBox webhook callbacks
type WebhookHandler struct {
	tracker SnatchedChecker
	logger  *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(tracker SnatchedChecker, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// ServeHTTP handles the webhook endpoint. A finished or failed download
// starts a snatched check; other notifications are acknowledged and dropped.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload torbox.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WithError(err).Error("Failed to decode webhook payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	status := payload.Status()
	log := h.logger.WithFields(logrus.Fields{
		"type":   payload.Type,
		"title":  payload.Data.Title,
		"status": status,
	})
	if name, err := payload.ExtractDownloadName(); err == nil {
		log = log.WithField("download_name", name)
	} else if hash, err := payload.ExtractHash(); err == nil {
		log = log.WithField("hash", hash)
	}

	if status == "" {
		log.Debug("Ignoring TorBox notification")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	triggered := h.tracker.CheckSnatchedAsync(context.WithoutCancel(r.Context()))
	log.WithField("triggered", triggered).Info("Received TorBox webhook")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
