package torbox

import (
	"fmt"
	"regexp"
	"time"

	"github.com/amaumene/gomovarr/internal/models"
)

var (
	// "download Movie.2020.1080p has completed"
	downloadNameRegex = regexp.MustCompile(`download (.+?) has`)
	// "The NZB with hash 5048ac7b66712696b0c2d06b3e14066a failed to download"
	hashRegex = regexp.MustCompile(`hash ([a-f0-9]{32})`)
)

// WebhookPayload represents the webhook payload from TorBox
type WebhookPayload struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      NotificationData `json:"data"`
}

// NotificationData contains the notification details
type NotificationData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ExtractDownloadName extracts the download name from the notification message
func (p *WebhookPayload) ExtractDownloadName() (string, error) {
	match := downloadNameRegex.FindStringSubmatch(p.Data.Message)
	if len(match) < 2 {
		return "", fmt.Errorf("failed to extract download name from message: %s", p.Data.Message)
	}
	return match[1], nil
}

// ExtractHash extracts the hash from the notification message
func (p *WebhookPayload) ExtractHash() (string, error) {
	match := hashRegex.FindStringSubmatch(p.Data.Message)
	if len(match) < 2 {
		return "", fmt.Errorf("failed to extract hash from message: %s", p.Data.Message)
	}
	return match[1], nil
}

// Status returns the download status announced by the title, or "" for
// notifications that are not about a finished download
func (p *WebhookPayload) Status() models.DownloadStatus {
	switch p.Data.Title {
	case "Usenet Download Completed":
		return models.DownloadStatusCompleted
	case "Usenet Download Failed":
		return models.DownloadStatusFailed
	default:
		return ""
	}
}
