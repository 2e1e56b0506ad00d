package qbittorrent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/models"
)

// Name identifies qBittorrent in stored releases
const Name = "qbittorrent"

// qBittorrent reports this ETA for torrents that will never finish
const infiniteETA = 8640000

// api is the part of the qBittorrent Web API the client uses
type api interface {
	LoginCtx(ctx context.Context) error
	GetTorrentsCtx(ctx context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error)
	DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error
	PauseCtx(ctx context.Context, hashes []string) error
	ResumeCtx(ctx context.Context, hashes []string) error
}

// Settings configures the qBittorrent connection
type Settings struct {
	Host           string
	Username       string
	Password       string
	RemoveComplete bool
	DeleteFiles    bool
}

// Client reports torrent status to the release tracker
type Client struct {
	api        api
	settings   Settings
	loggedIn   atomic.Bool
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a qBittorrent client. It logs in lazily on first use.
func NewClient(settings Settings, logger *logrus.Logger) *Client {
	return newClient(qbt.NewClient(qbt.Config{
		Host:     settings.Host,
		Username: settings.Username,
		Password: settings.Password,
		Timeout:  30,
	}), settings, logger)
}

func newClient(a api, settings Settings, logger *logrus.Logger) *Client {
	return &Client{
		api:      a,
		settings: settings,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		logger: logger,
	}
}

// Name implements downloader.Client
func (c *Client) Name() string {
	return Name
}

// StatusSupport implements downloader.Client
func (c *Client) StatusSupport() bool {
	return true
}

// Status reports on the torrents behind ids. Ids without a hash widen the
// request to every torrent so they can be matched by name.
func (c *Client) Status(ctx context.Context, ids []models.DownloadInfo) ([]*models.DownloadReport, error) {
	var hashes []string
	all := false
	for _, id := range ids {
		if id.ID == "" {
			all = true
			break
		}
		hashes = append(hashes, strings.ToLower(id.ID))
	}
	if all {
		hashes = nil
	}

	var torrents []qbt.Torrent
	err := c.do(ctx, func() error {
		var err error
		torrents, err = c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: hashes})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get torrents: %w", err)
	}

	reports := make([]*models.DownloadReport, 0, len(torrents))
	for _, t := range torrents {
		reports = append(reports, c.report(t))
	}
	c.logger.WithField("torrents", len(reports)).Debug("Checked qBittorrent status")
	return reports, nil
}

// RemoveFailed deletes a failed torrent and its data
func (c *Client) RemoveFailed(ctx context.Context, report *models.DownloadReport) error {
	c.logger.WithFields(logrus.Fields{"hash": report.ID, "name": report.Name}).Info("Removing failed torrent")
	return c.do(ctx, func() error {
		return c.api.DeleteTorrentsCtx(ctx, []string{report.ID}, true)
	})
}

// Pause pauses or resumes a torrent
func (c *Client) Pause(ctx context.Context, report *models.DownloadReport, pause bool) error {
	return c.do(ctx, func() error {
		if pause {
			return c.api.PauseCtx(ctx, []string{report.ID})
		}
		return c.api.ResumeCtx(ctx, []string{report.ID})
	})
}

// ProcessComplete removes a renamed torrent when configured to, deleting
// its data too with DeleteFiles
func (c *Client) ProcessComplete(ctx context.Context, report *models.DownloadReport) error {
	if !c.settings.RemoveComplete {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"hash":         report.ID,
		"delete_files": c.settings.DeleteFiles,
	}).Info("Removing completed torrent")
	return c.do(ctx, func() error {
		return c.api.DeleteTorrentsCtx(ctx, []string{report.ID}, c.settings.DeleteFiles)
	})
}

// do runs op, logging in first and again after any failure
func (c *Client) do(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		if !c.loggedIn.Load() {
			if err := c.api.LoginCtx(ctx); err != nil {
				return fmt.Errorf("failed to log in to qBittorrent: %w", err)
			}
			c.loggedIn.Store(true)
		}
		if err := op(); err != nil {
			c.loggedIn.Store(false)
			return err
		}
		return nil
	}, b)
}

func (c *Client) report(t qbt.Torrent) *models.DownloadReport {
	timeLeft := time.Duration(t.ETA) * time.Second
	if t.ETA < 0 || t.ETA >= infiniteETA {
		timeLeft = -1
	}

	report := &models.DownloadReport{
		ID:         strings.ToLower(t.Hash),
		Downloader: Name,
		Name:       t.Name,
		Status:     statusOf(t.State),
		Folder:     t.ContentPath,
		TimeLeft:   timeLeft,
		SeedRatio:  t.Ratio,
	}
	if info, err := os.Stat(t.ContentPath); err == nil && !info.IsDir() {
		report.Folder = filepath.Dir(t.ContentPath)
		report.Files = []string{t.ContentPath}
	}
	return report
}

func statusOf(state qbt.TorrentState) models.DownloadStatus {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return models.DownloadStatusFailed
	case qbt.TorrentStatePausedUp, qbt.TorrentStateStoppedUp:
		return models.DownloadStatusCompleted
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateQueuedUp,
		qbt.TorrentStateForcedUp, qbt.TorrentStateCheckingUp:
		return models.DownloadStatusSeeding
	default:
		return models.DownloadStatusBusy
	}
}
