package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnknownDownloader is returned when a report names a back-end that is not configured
var ErrUnknownDownloader = errors.New("unknown downloader")

// Client is a download back-end the status tracker can poll
type Client interface {
	// Name is stored with every release sent to this back-end
	Name() string
	// StatusSupport reports whether Status can report on items
	StatusSupport() bool
	// Status reports on the given items; ids of other back-ends are ignored
	Status(ctx context.Context, ids []models.DownloadInfo) ([]*models.DownloadReport, error)
	RemoveFailed(ctx context.Context, report *models.DownloadReport) error
	Pause(ctx context.Context, report *models.DownloadReport, pause bool) error
	// ProcessComplete lets the back-end clean up after a release was renamed
	ProcessComplete(ctx context.Context, report *models.DownloadReport) error
}

// Multi fans calls out to every configured back-end
type Multi struct {
	clients []Client
	logger  *logrus.Logger
}

// NewMulti creates a client over clients; nil entries are skipped
func NewMulti(logger *logrus.Logger, clients ...Client) *Multi {
	m := &Multi{logger: logger}
	for _, c := range clients {
		if c != nil {
			m.clients = append(m.clients, c)
		}
	}
	return m
}

// Name implements Client
func (m *Multi) Name() string {
	return "multi"
}

// Enabled reports whether any back-end is configured
func (m *Multi) Enabled() bool {
	return len(m.clients) > 0
}

// StatusSupport reports whether any back-end can report status
func (m *Multi) StatusSupport() bool {
	for _, c := range m.clients {
		if c.StatusSupport() {
			return true
		}
	}
	return false
}

// Supports reports whether the back-end called name can report status
func (m *Multi) Supports(name string) bool {
	c, err := m.client(name)
	return err == nil && c.StatusSupport()
}

// Status collects reports from every back-end. A failing back-end is logged
// and skipped; an error is returned only when all of them fail.
func (m *Multi) Status(ctx context.Context, ids []models.DownloadInfo) ([]*models.DownloadReport, error) {
	var reports []*models.DownloadReport
	var errs []error
	polled := 0

	for _, c := range m.clients {
		if !c.StatusSupport() {
			continue
		}
		var mine []models.DownloadInfo
		for _, id := range ids {
			if id.Downloader == c.Name() {
				mine = append(mine, id)
			}
		}

		polled++
		found, err := c.Status(ctx, mine)
		if err != nil {
			m.logger.WithError(err).WithField("downloader", c.Name()).Error("Failed getting download status")
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		reports = append(reports, found...)
	}

	if polled > 0 && len(errs) == polled {
		return nil, errors.Join(errs...)
	}
	return reports, nil
}

// RemoveFailed implements Client
func (m *Multi) RemoveFailed(ctx context.Context, report *models.DownloadReport) error {
	c, err := m.client(report.Downloader)
	if err != nil {
		return err
	}
	return c.RemoveFailed(ctx, report)
}

// Pause implements Client
func (m *Multi) Pause(ctx context.Context, report *models.DownloadReport, pause bool) error {
	c, err := m.client(report.Downloader)
	if err != nil {
		return err
	}
	return c.Pause(ctx, report, pause)
}

// ProcessComplete implements Client
func (m *Multi) ProcessComplete(ctx context.Context, report *models.DownloadReport) error {
	c, err := m.client(report.Downloader)
	if err != nil {
		return err
	}
	return c.ProcessComplete(ctx, report)
}

func (m *Multi) client(name string) (Client, error) {
	for _, c := range m.clients {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDownloader, name)
}
