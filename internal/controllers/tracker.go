package controllers

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/amaumene/gomovarr/internal/utils"
)

// Scanner runs the renamer, for one download or the whole from folder
type Scanner interface {
	Scan(ctx context.Context, req renamer.Request) bool
}

// ReleaseStore is the release bookkeeping the tracker reads and updates
type ReleaseStore interface {
	GetReleasesWithStatus(statuses ...models.ReleaseStatus) ([]*models.Release, error)
	UpdateReleaseStatus(id uint64, status models.ReleaseStatus) error
	MarkProcessComplete(downloader, id string) error
	GetMovieByID(id uint64) (*models.Movie, error)
}

// Downloader reports on and controls downloads across back-ends
type Downloader interface {
	Status(ctx context.Context, ids []models.DownloadInfo) ([]*models.DownloadReport, error)
	RemoveFailed(ctx context.Context, report *models.DownloadReport) error
	Pause(ctx context.Context, report *models.DownloadReport, pause bool) error
	ProcessComplete(ctx context.Context, report *models.DownloadReport) error
}

// NextReleaser snatches another release of a movie after a failure
type NextReleaser interface {
	TryNextRelease(ctx context.Context, movieID uint64) error
}

// TrackerSettings configures the release status tracker
type TrackerSettings struct {
	FromFolder string
	// FileAction is the action used for torrents; anything but move leaves seed data alone
	FileAction   renamer.Action
	NextOnFailed bool
	MissingGrace time.Duration
}

// queuedScan is a download to scan and/or finish after all releases were checked
type queuedScan struct {
	report          *models.DownloadReport
	pause           bool
	scan            bool
	processComplete bool
}

// ReleaseStatusTracker follows snatched releases through their downloaders
// and hands finished downloads to the renamer
type ReleaseStatusTracker struct {
	settings   TrackerSettings
	store      ReleaseStore
	downloader Downloader
	scanner    Scanner
	tagger     *renamer.Tagger
	next       NextReleaser
	metrics    *metrics.Metrics
	state      utils.JobState
	now        func() time.Time
	logger     *logrus.Logger
}

// NewReleaseStatusTracker creates a tracker. next may be nil.
func NewReleaseStatusTracker(settings TrackerSettings, store ReleaseStore, downloader Downloader, scanner Scanner, tagger *renamer.Tagger, next NextReleaser, m *metrics.Metrics, logger *logrus.Logger) *ReleaseStatusTracker {
	if settings.MissingGrace <= 0 {
		settings.MissingGrace = 7 * 24 * time.Hour
	}
	return &ReleaseStatusTracker{
		settings:   settings,
		store:      store,
		downloader: downloader,
		scanner:    scanner,
		tagger:     tagger,
		next:       next,
		metrics:    m,
		now:        time.Now,
		logger:     logger,
	}
}

// Running reports whether a check is in progress and since when
func (t *ReleaseStatusTracker) Running() (bool, time.Time) {
	return t.state.Running()
}

// CheckSnatched checks every snatched release once. It returns false
// without doing anything when a check is already in progress.
func (t *ReleaseStatusTracker) CheckSnatched(ctx context.Context) bool {
	if !t.state.TryStart() {
		t.logger.Debug("Already checking snatched")
		return false
	}
	defer t.state.Finish()

	t.checkSnatched(ctx)
	return true
}

// CheckSnatchedAsync starts a check in the background and reports whether it was started
func (t *ReleaseStatusTracker) CheckSnatchedAsync(ctx context.Context) bool {
	if !t.state.TryStart() {
		t.logger.Debug("Already checking snatched")
		return false
	}

	go func() {
		defer t.state.Finish()
		t.checkSnatched(ctx)
	}()
	return true
}

func (t *ReleaseStatusTracker) checkSnatched(ctx context.Context) {
	releases, err := t.store.GetReleasesWithStatus(
		models.ReleaseStatusSnatched,
		models.ReleaseStatusSeeding,
		models.ReleaseStatusMissing,
	)
	if err != nil {
		t.logger.WithError(err).Error("Failed getting snatched releases")
		return
	}
	if len(releases) == 0 {
		return
	}

	var ids []models.DownloadInfo
	noStatusSupport := make(map[string]bool)
	for _, rel := range releases {
		if rel.DownloadInfo == nil || rel.DownloadInfo.Downloader == "" {
			continue
		}
		ids = append(ids, *rel.DownloadInfo)
		if !rel.DownloadInfo.StatusSupport {
			noStatusSupport[rel.DownloadInfo.Downloader] = true
		}
	}
	if len(noStatusSupport) > 0 {
		t.logger.WithField("downloaders", sortedNames(noStatusSupport)).Debug("Download status functionality is not implemented for one of the active downloaders")
	}

	var reports []*models.DownloadReport
	if len(ids) > 0 {
		reports, err = t.downloader.Status(ctx, ids)
		if err != nil {
			t.logger.WithError(err).Error("Failed getting download status")
		}
	}
	if len(reports) == 0 {
		t.scanner.Scan(ctx, renamer.Request{})
		return
	}

	t.logger.WithField("releases", len(releases)).Debug("Checking status snatched releases...")

	var queue []queuedScan
	scanRequired := false
	keepSeedData := t.settings.FileAction != renamer.ActionMove

	for _, rel := range releases {
		if ctx.Err() != nil {
			return
		}
		log := t.logger.WithFields(logrus.Fields{
			"release_id": rel.ID,
			"name":       rel.Name,
		})

		if rel.DownloadInfo == nil || rel.DownloadInfo.Downloader == "" {
			log.Error("Faulty release found without any info, ignoring")
			t.transition(rel, models.ReleaseStatusIgnored)
			continue
		}

		var imdbID string
		if movie, err := t.store.GetMovieByID(rel.MovieID); err == nil {
			imdbID = movie.IMDBId
		}

		report := matchReport(rel, imdbID, reports)
		if report == nil {
			if rel.Status == models.ReleaseStatusMissing {
				if t.now().Sub(rel.UpdatedAt) > t.settings.MissingGrace {
					log.WithField("grace", t.settings.MissingGrace).Info("Release not found in downloaders for too long, setting status to ignored")
					t.transition(rel, models.ReleaseStatusIgnored)
				}
			} else {
				log.Info("Release not found in downloaders, setting status to missing")
				t.transition(rel, models.ReleaseStatusMissing)
			}
			scanRequired = true
			continue
		}

		log = log.WithFields(logrus.Fields{
			"download": report.Name,
			"status":   report.Status,
		})
		if report.TimeLeft >= 0 {
			log = log.WithField("time_left", report.TimeLeft)
		}
		log.Debug("Found download")

		switch report.Status {
		case models.DownloadStatusBusy:
			t.transition(rel, models.ReleaseStatusSnatched)
			if report.Folder != "" && utils.IsSubFolder(report.Folder, t.settings.FromFolder) {
				if err := t.tagger.Tag(renamer.DownloadTarget(report), renamer.TagDownloading); err != nil {
					log.WithError(err).Warn("Failed tagging download")
				}
			}

		case models.DownloadStatusSeeding:
			if keepSeedData && rel.Status != models.ReleaseStatusSeeding && report.StatusInfoComplete() {
				log.WithField("ratio", report.SeedRatio).Info("Download completed! It is now being processed while leaving the original files alone for seeding")
				t.tagger.Untag(renamer.DownloadTarget(report), renamer.TagDownloading)
				queue = append(queue, queuedScan{report: report, pause: true, scan: true})
			} else {
				log.WithField("ratio", report.SeedRatio).Debug("Download is seeding")
				t.transition(rel, models.ReleaseStatusSeeding)
			}

		case models.DownloadStatusFailed:
			t.transition(rel, models.ReleaseStatusFailed)
			if err := t.downloader.RemoveFailed(ctx, report); err != nil {
				log.WithError(err).Error("Failed removing failed download")
			}
			if t.settings.NextOnFailed && t.next != nil {
				if err := t.next.TryNextRelease(ctx, rel.MovieID); err != nil {
					log.WithError(err).Warn("Failed trying next release")
				}
			}

		case models.DownloadStatusCompleted:
			log.Info("Download completed!")
			if !report.StatusInfoComplete() {
				scanRequired = true
				continue
			}
			if rel.Status == models.ReleaseStatusSeeding {
				if keepSeedData {
					t.transition(rel, models.ReleaseStatusDownloaded)
					queue = append(queue, queuedScan{report: report, processComplete: true})
				} else {
					queue = append(queue, queuedScan{report: report, scan: true, processComplete: true})
				}
			} else {
				t.transition(rel, models.ReleaseStatusSnatched)
				t.tagger.Untag(renamer.DownloadTarget(report), renamer.TagDownloading)
				queue = append(queue, queuedScan{report: report, scan: true, processComplete: true})
			}
		}
	}

	for _, item := range queue {
		if ctx.Err() != nil {
			return
		}
		t.runQueued(ctx, item)
	}

	if scanRequired || len(noStatusSupport) > 0 {
		t.scanner.Scan(ctx, renamer.Request{})
	}
}

func (t *ReleaseStatusTracker) runQueued(ctx context.Context, item queuedScan) {
	report := item.report
	log := t.logger.WithFields(logrus.Fields{
		"download":   report.Name,
		"downloader": report.Downloader,
	})

	if item.scan {
		pause := item.pause && (t.settings.FileAction == renamer.ActionLink || t.settings.FileAction == renamer.ActionSymlinkReversed)
		if pause {
			if err := t.downloader.Pause(ctx, report, true); err != nil {
				log.WithError(err).Warn("Failed pausing download")
			}
		}
		ran := t.scanner.Scan(ctx, renamer.Request{
			MediaFolder: report.Folder,
			Files:       report.Files,
			Download:    report,
		})
		if pause {
			if err := t.downloader.Pause(ctx, report, false); err != nil {
				log.WithError(err).Warn("Failed resuming download")
			}
		}
		if !ran {
			return
		}
	}

	if !item.processComplete {
		return
	}
	target := renamer.DownloadTarget(report)
	if t.tagger.HasTag(target, renamer.TagFailedRename) {
		log.Warn("Download failed to rename, leaving it for manual inspection")
		return
	}
	t.tagger.Untag(target, renamer.TagRenamedAlready)
	if err := t.downloader.ProcessComplete(ctx, report); err != nil {
		log.WithError(err).Error("Failed finishing download")
	}
	if err := t.store.MarkProcessComplete(report.Downloader, report.ID); err != nil {
		log.WithError(err).Debug("Failed marking download processed")
	}
}

// transition updates the status of rel when it changes
func (t *ReleaseStatusTracker) transition(rel *models.Release, status models.ReleaseStatus) {
	if rel.Status == status {
		return
	}
	if err := t.store.UpdateReleaseStatus(rel.ID, status); err != nil {
		t.logger.WithError(err).WithField("release_id", rel.ID).Error("Failed updating release status")
		return
	}
	t.logger.WithFields(logrus.Fields{
		"release_id": rel.ID,
		"from":       rel.Status,
		"to":         status,
	}).Debug("Release status changed")
	rel.Status = status
	t.metrics.Transition(string(status))
}

// matchReport finds the download of rel: by downloader id when known,
// otherwise by name or by the IMDb id in the download name
func matchReport(rel *models.Release, imdbID string, reports []*models.DownloadReport) *models.DownloadReport {
	info := rel.DownloadInfo
	if rel.HasDownloadID() {
		for _, r := range reports {
			if r.ID == info.ID && r.Downloader == info.Downloader {
				return r
			}
		}
		return nil
	}

	nzbName := utils.NZBName(rel.Name, imdbID)
	for _, r := range reports {
		if r.Downloader != info.Downloader {
			continue
		}
		if r.Name == nzbName || sameRelease(rel.Name, r.Name) {
			return r
		}
		if imdbID != "" && utils.GetIMDBID(r.Name) == imdbID {
			return r
		}
	}
	return nil
}

// sameRelease reports whether downloadName is name as the downloader shows
// it: name inside it once punctuation is ignored, or a fuzzy match of about
// the same length
func sameRelease(name, downloadName string) bool {
	simple := utils.SimplifyString(name)
	if simple == "" {
		return false
	}
	if strings.Contains(utils.SimplifyString(downloadName), simple) {
		return true
	}
	extra := utf8.RuneCountInString(downloadName) - utf8.RuneCountInString(name)
	return extra >= 0 && extra <= utf8.RuneCountInString(name)/10 &&
		fuzzy.MatchNormalizedFold(name, downloadName)
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
