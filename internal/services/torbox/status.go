package torbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/models"
)

// Name identifies TorBox in stored releases
const Name = "torbox"

// Name implements downloader.Client
func (c *Client) Name() string {
	return Name
}

// StatusSupport implements downloader.Client
func (c *Client) StatusSupport() bool {
	return true
}

// Status reports on the usenet downloads behind ids. TorBox does not know
// where the files end up locally, so reports carry no folder.
func (c *Client) Status(ctx context.Context, ids []models.DownloadInfo) ([]*models.DownloadReport, error) {
	downloads, err := c.ListUsenetDownloads(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id.ID == "" {
			wanted = nil
			break
		}
		wanted[id.ID] = true
	}

	var reports []*models.DownloadReport
	for _, d := range downloads {
		id := strconv.Itoa(d.ID)
		if wanted != nil && !wanted[id] {
			continue
		}
		reports = append(reports, &models.DownloadReport{
			ID:         id,
			Downloader: Name,
			Name:       d.Name,
			Status:     statusOf(d),
			TimeLeft:   time.Duration(d.ETA) * time.Second,
		})
	}
	c.logger.WithField("downloads", len(reports)).Debug("Checked TorBox status")
	return reports, nil
}

// RemoveFailed deletes a failed usenet download
func (c *Client) RemoveFailed(ctx context.Context, report *models.DownloadReport) error {
	c.logger.WithFields(logrus.Fields{"job_id": report.ID, "name": report.Name}).Info("Removing failed usenet download")
	return c.DeleteJob(ctx, report.ID)
}

// Pause pauses or resumes a usenet download
func (c *Client) Pause(ctx context.Context, report *models.DownloadReport, pause bool) error {
	usenetID, err := strconv.Atoi(report.ID)
	if err != nil {
		return fmt.Errorf("invalid job ID: %w", err)
	}
	operation := "resume"
	if pause {
		operation = "pause"
	}
	return c.ControlUsenetDownload(ctx, usenetID, operation)
}

// ProcessComplete drops a renamed download from the TorBox list
func (c *Client) ProcessComplete(ctx context.Context, report *models.DownloadReport) error {
	return c.DeleteJob(ctx, report.ID)
}

func statusOf(d UsenetDownload) models.DownloadStatus {
	state := strings.ToLower(d.DownloadState)
	switch {
	case strings.Contains(state, "fail"), strings.Contains(state, "error"):
		return models.DownloadStatusFailed
	case d.DownloadFinished && d.DownloadPresent:
		return models.DownloadStatusCompleted
	default:
		return models.DownloadStatusBusy
	}
}
