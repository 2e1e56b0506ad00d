package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Options controls one scan
type Options struct {
	Folder string
	// Files restricts the scan to these paths and disables the change window check
	Files    []string
	Download *models.ReleaseDownload
	// Simple skips subtitle language detection
	Simple bool
	// NewerThan drops groups without a file modified after it
	NewerThan time.Time
	// ReturnIgnored keeps groups carrying an .ignore marker
	ReturnIgnored bool
	// CheckFileDate drops groups with files changed inside the change window
	CheckFileDate bool
}

// Settings tunes the scanner
type Settings struct {
	FileChangeWindow time.Duration
	MaxWorkers       int
	WorkerPoll       time.Duration
}

// FolderScanner groups the files of a folder into releases and identifies them
type FolderScanner struct {
	settings   Settings
	classifier *Classifier
	ids        *IdentifierBuilder
	qualities  QualityOracle
	extractor  *MetadataExtractor
	resolver   *MediaResolver
	now        func() time.Time
	logger     *logrus.Logger
}

// NewFolderScanner creates a folder scanner
func NewFolderScanner(settings Settings, classifier *Classifier, ids *IdentifierBuilder, qualities QualityOracle, extractor *MetadataExtractor, resolver *MediaResolver, logger *logrus.Logger) *FolderScanner {
	if settings.MaxWorkers <= 0 {
		settings.MaxWorkers = 100
	}
	if settings.WorkerPoll <= 0 {
		settings.WorkerPoll = 10 * time.Second
	}
	return &FolderScanner{
		settings:   settings,
		classifier: classifier,
		ids:        ids,
		qualities:  qualities,
		extractor:  extractor,
		resolver:   resolver,
		now:        time.Now,
		logger:     logger,
	}
}

// Scan walks opts.Folder and returns its release groups sorted by identifier.
// Groups without media are returned with a nil Media. A cancelled context
// abandons the scan and returns what was processed so far with ctx.Err().
func (s *FolderScanner) Scan(ctx context.Context, opts Options) ([]*Group, error) {
	folder := filepath.Clean(opts.Folder)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("folder doesn't exist: %s", opts.Folder)
	}

	files := opts.Files
	checkFileDate := opts.CheckFileDate
	if len(files) == 0 {
		var err error
		files, err = walk(ctx, folder)
		if err != nil {
			s.logger.WithError(err).WithField("folder", folder).Error("Failed getting files")
		}
		s.logger.WithFields(logrus.Fields{
			"folder": folder,
			"files":  len(files),
		}).Debug("Found files to scan and group")
	} else {
		checkFileDate = false
	}

	// Pass 1: movie and DVD files start groups, everything else is a leftover
	var order []*Group
	index := make(map[string]*Group)
	leftovers := make(map[string]bool)

	for _, path := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if s.classifier.IsSample(path) {
			leftovers[path] = true
			continue
		}
		if !s.classifier.Keep(path) {
			continue
		}

		isDVD := s.classifier.IsDVD(path)
		if !isDVD && !movieBand.between(s.classifier.Size(path)) {
			leftovers[path] = true
			continue
		}

		identifier := s.ids.Build(path, folder, isDVD)
		identifiers := []string{identifier}
		qualityID := ""
		if isDVD {
			qualityID = "dvdr"
		} else if q := s.qualities.Guess([]string{path}, s.classifier.Size(path), quality.Hints{}); q != nil {
			qualityID = q.Identifier
		}
		if qualityID != "" {
			identifiers = []string{identifier + " " + qualityID, identifier}
		}

		group := findGroup(index, identifiers)
		if group == nil {
			group = newGroup(identifiers[0], identifiers, isDVD, folder)
			order = append(order, group)
			for _, id := range identifiers {
				if _, ok := index[id]; !ok && id != "" {
					index[id] = group
				}
			}
		}
		group.addUnsorted(path)
	}

	// Pass 2: files sharing a movie file's stem
	for _, group := range order {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.WithField("identifier", group.Identifier).Debug("Grouping files")

		for _, path := range append([]string(nil), group.unsorted...) {
			stem := strings.TrimSuffix(path, filepath.Ext(path))
			for _, leftover := range sortedKeys(leftovers) {
				if strings.Contains(leftover, stem) {
					group.addUnsorted(leftover)
					delete(leftovers, leftover)
				}
			}
		}
		for _, path := range group.unsorted {
			if isIgnoredExt(path) {
				group.Ignored = true
				break
			}
		}
	}

	// Pass 3: leftovers whose own identifier names a group
	pathIdentifiers := make(map[string][]string)
	for _, path := range sortedKeys(leftovers) {
		id := s.ids.Build(path, folder, false)
		pathIdentifiers[id] = append(pathIdentifiers[id], path)
	}
	for _, id := range sortedKeys(pathIdentifiers) {
		if group, ok := index[id]; ok {
			s.logger.WithField("identifier", id).Debug("Grouping files on identifier")
			group.addUnsorted(pathIdentifiers[id]...)
			for _, path := range pathIdentifiers[id] {
				delete(leftovers, path)
			}
			delete(pathIdentifiers, id)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Pass 4: leftovers whose folder names a group
	for _, id := range sortedKeys(pathIdentifiers) {
		for _, path := range pathIdentifiers[id] {
			folderID := s.ids.Build(filepath.Dir(path), folder, false)
			if group, ok := index[folderID]; ok {
				group.addUnsorted(path)
				delete(leftovers, path)
			}
		}
	}
	if len(leftovers) > 0 {
		s.logger.WithField("files", sortedKeys(leftovers)).Debug("Some files are still left over")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Filter out groups still being written or unchanged since NewerThan
	var valid []*Group
	for _, group := range order {
		if checkFileDate {
			if changed, at := s.filesChanged(group.unsorted); changed {
				s.logger.WithFields(logrus.Fields{
					"identifier": group.Identifier,
					"changed_at": at.Format(time.RFC3339),
				}).Info("Files seem to be still unpacking or just unpacked, ignoring for now")
				continue
			}
		}
		if !opts.NewerThan.IsZero() && !modifiedAfter(group.unsorted, opts.NewerThan) {
			s.logger.WithFields(logrus.Fields{
				"identifier": group.Identifier,
				"since":      opts.NewerThan.Format(time.RFC3339),
			}).Debug("None of the files have changed, skipping")
			continue
		}
		valid = append(valid, group)
	}

	download := opts.Download
	if download != nil {
		switch {
		case len(valid) == 0:
			s.logger.WithField("imdb_id", download.IMDBId).Info("Download ID provided, but no groups found! Make sure the download contains valid media files (fully extracted)")
		case len(valid) > 1:
			s.logger.WithFields(logrus.Fields{
				"imdb_id": download.IMDBId,
				"groups":  len(valid),
			}).Info("Download ID provided, but more than one group found. Ignoring Download ID")
			download = nil
		}
	}

	var processed []*Group
	for _, group := range valid {
		if err := ctx.Err(); err != nil {
			return sortGroups(processed), err
		}

		if group.Ignored && !opts.ReturnIgnored {
			s.logger.WithField("identifier", group.Identifier).Debug("Ignore file found, ignoring release")
			continue
		}

		group.partition(s.classifier)
		if len(group.Files[CategoryMovie]) == 0 {
			s.logger.WithField("identifier", group.Identifier).Error("Couldn't find any movie files")
			continue
		}

		s.logger.WithField("identifier", group.Identifier).Debug("Getting metadata")
		group.Meta = s.extractor.Extract(ctx, group, download)
		if !opts.Simple {
			group.SubtitleLanguages = s.extractor.SubtitleLanguages(ctx, group)
		}

		first := group.MovieFiles()[0]
		if group.IsDVD {
			first = filepath.Join(DiscRoot(first), filepath.Base(first))
		}
		group.ParentDir, group.DirName = dirNames(first, folder)

		if err := s.resolver.Resolve(ctx, group, download); err != nil {
			if !errors.Is(err, ErrNoMedia) {
				s.logger.WithError(err).WithField("identifiers", group.Identifiers).Error("Unable to determine media")
			}
		}

		processed = append(processed, group)

		if err := s.waitForWorkers(ctx); err != nil {
			return sortGroups(processed), err
		}
	}

	if len(processed) > 0 {
		s.logger.WithFields(logrus.Fields{
			"folder": folder,
			"movies": len(processed),
		}).Info("Found movies in the folder")
	} else {
		s.logger.WithField("folder", folder).Debug("Found no movies in the folder")
	}
	return sortGroups(processed), nil
}

// waitForWorkers blocks while too many background workers are running
func (s *FolderScanner) waitForWorkers(ctx context.Context) error {
	for s.extractor.ActiveWorkers() > int64(s.settings.MaxWorkers) {
		s.logger.Debug("Too many workers active, waiting a few seconds")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.settings.WorkerPoll):
		}
	}
	return nil
}

// filesChanged reports whether a file vanished or was modified or had its
// inode changed inside the change window
func (s *FolderScanner) filesChanged(files []string) (bool, time.Time) {
	now := s.now()
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.IsDir() {
			return true, now
		}
		if at := utils.ChangedAt(info); at.After(now.Add(-s.settings.FileChangeWindow)) {
			return true, at
		}
	}
	return false, time.Time{}
}

func modifiedAfter(files []string, since time.Time) bool {
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.ModTime().After(since) {
			return true
		}
	}
	return false
}

// dirNames returns the folder of file and the deepest folder name below
// root that is meaningful enough to name a release
func dirNames(file, root string) (string, string) {
	parent := filepath.Dir(file)
	names := strings.Split(strings.Replace(parent, root, "", 1), string(filepath.Separator))
	for i := len(names) - 1; i >= 0; i-- {
		if !isIgnoreName(names[i]) && len(names[i]) > 2 {
			return parent, names[i]
		}
	}
	return parent, ""
}

func findGroup(index map[string]*Group, identifiers []string) *Group {
	for _, id := range identifiers {
		if group, ok := index[id]; ok {
			return group
		}
	}
	return nil
}

func walk(ctx context.Context, folder string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortGroups(groups []*Group) []*Group {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Identifier < groups[j].Identifier
	})
	return groups
}
