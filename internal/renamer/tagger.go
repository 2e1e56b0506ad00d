package renamer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/scanner"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Marker tags
const (
	TagDownloading    = "downloading"
	TagExtracted      = "extracted"
	TagRenamedAlready = "renamed_already"
	TagFailedRename   = "failed_rename"
)

const markerExt = ".ignore"

const markerText = `This file is from gomovarr
It has marked this release as "%s"
This file hides the release from the renamer
Remove it if you want it to be renamed (again, or at least let it try again)
`

// Target is the set of files a marker applies to
type Target struct {
	Folder string
	Files  []string
	// requireDir skips untagging when Folder is gone
	requireDir bool
}

// GroupTarget marks a scanned group through its first movie file
func GroupTarget(g *scanner.Group) Target {
	var files []string
	if movies := g.MovieFiles(); len(movies) > 0 {
		files = movies[:1]
	}
	folder := g.ParentDir
	if g.DirName == "" {
		folder = ""
	}
	return Target{Folder: folder, Files: files, requireDir: true}
}

// DownloadTarget marks every file of a download, or its whole folder
func DownloadTarget(d *models.DownloadReport) Target {
	return Target{Folder: d.Folder, Files: d.Files, requireDir: true}
}

// FileTarget marks a single file
func FileTarget(path string) Target {
	return Target{Folder: filepath.Dir(path), Files: []string{path}}
}

// Tagger writes and removes <stem>.<tag>.ignore markers
type Tagger struct {
	logger *logrus.Logger
}

// NewTagger creates a tagger
func NewTagger(logger *logrus.Logger) *Tagger {
	return &Tagger{logger: logger}
}

// MarkerPath returns the marker of file for tag
func MarkerPath(file, tag string) string {
	return utils.TrimExt(file) + "." + tag + markerExt
}

// Tag writes a marker next to every file of target. Existing markers are kept.
func (t *Tagger) Tag(target Target, tag string) error {
	if tag == "" {
		return nil
	}

	files := existing(target.Files)
	if len(files) == 0 && target.Folder != "" {
		files = walkFiles(target.Folder)
	}

	for _, f := range files {
		if strings.HasSuffix(f, markerExt) {
			continue
		}
		marker := MarkerPath(f, tag)
		if _, err := os.Stat(marker); err == nil {
			continue
		}
		if err := os.WriteFile(marker, []byte(fmt.Sprintf(markerText, tag)), 0o644); err != nil {
			return fmt.Errorf("failed to tag %s: %w", f, err)
		}
		t.logger.WithFields(logrus.Fields{"file": f, "tag": tag}).Debug("Tagged release")
	}
	return nil
}

// Untag removes the markers of target for tag, or all of them when tag is empty
func (t *Tagger) Untag(target Target, tag string) {
	for _, marker := range t.markers(target, tag) {
		if err := os.Remove(marker); err != nil {
			t.logger.WithError(err).WithField("file", marker).Debug("Unable to remove ignore file")
		}
	}
}

// HasTag reports whether target carries a marker for tag, or any marker when tag is empty
func (t *Tagger) HasTag(target Target, tag string) bool {
	return len(t.markers(target, tag)) > 0
}

func (t *Tagger) markers(target Target, tag string) []string {
	folder := target.Folder
	if folder == "" && len(target.Files) > 0 && !target.requireDir {
		folder = filepath.Dir(target.Files[0])
	}
	if info, err := os.Stat(folder); folder == "" || err != nil || !info.IsDir() {
		return nil
	}

	var ignoreFiles, files []string
	for _, f := range walkFiles(folder) {
		if strings.HasSuffix(f, markerExt) {
			ignoreFiles = append(ignoreFiles, f)
		} else if len(target.Files) == 0 {
			files = append(files, f)
		}
	}
	if len(target.Files) > 0 {
		files = target.Files
	}

	var found []string
	for _, f := range files {
		stem := utils.TrimExt(f) + "."
		for _, marker := range ignoreFiles {
			if tag != "" && marker == stem+tag+markerExt {
				found = append(found, marker)
			} else if tag == "" && strings.HasPrefix(marker, stem) {
				found = append(found, marker)
			}
		}
	}
	return utils.RemoveDuplicates(found)
}

// DeleteFolder removes folder. With checkEmpty it must hold nothing but
// samples, NFOs, text, images and markers.
func (t *Tagger) DeleteFolder(folder string, checkEmpty bool) bool {
	if info, err := os.Stat(folder); folder == "" || err != nil || !info.IsDir() {
		return false
	}

	remaining := walkFiles(folder)
	if checkEmpty {
		for _, f := range remaining {
			if !isCleanupLeftover(filepath.Base(f)) {
				t.logger.WithField("folder", folder).Debug("Folder still has files, not deleting")
				return false
			}
		}
	}

	t.logger.WithField("folder", folder).Info("Cleaning up folder")
	if err := os.RemoveAll(folder); err != nil {
		t.logger.WithError(err).WithField("folder", folder).Error("Failed to delete folder")
		return false
	}
	return true
}

func isCleanupLeftover(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range []string{"sample", ".nfo", ".txt", ".jpg", ".png", markerExt} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func existing(files []string) []string {
	var out []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func walkFiles(folder string) []string {
	var files []string
	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}
