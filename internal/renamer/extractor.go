package renamer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

var (
	rarRegex      = regexp.MustCompile(`(?i)^(.*?)(?:\.part(\d+))?\.rar$`)
	rarPartRegex  = regexp.MustCompile(`(?i)\.part(\d+)\.rar$`)
	oldVolumeExts = regexp.MustCompile(`(?i)^\.[rstuvw]\d+$`)
)

// archive is the first volume of a RAR set
type archive struct {
	file string
	base string
}

// firstVolume reports whether name opens an archive: name.rar or name.part01.rar
func firstVolume(name string) (archive, bool) {
	m := rarRegex.FindStringSubmatch(name)
	if m == nil {
		return archive{}, false
	}
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err != nil || n != 1 {
			return archive{}, false
		}
	}
	return archive{file: name, base: m[1]}, true
}

// isContinuation reports whether name is a later volume of base
func isContinuation(name, base string) bool {
	if !strings.HasPrefix(name, base+".") {
		return false
	}
	rest := name[len(base):]
	if m := rarPartRegex.FindStringSubmatch(rest); m != nil && m[0] == rest {
		n, err := strconv.Atoi(m[1])
		return err == nil && n != 1
	}
	return oldVolumeExts.MatchString(rest)
}

// ExtractRequest describes one extraction pass
type ExtractRequest struct {
	Folder      string
	MediaFolder string
	Files       []string
	Cleanup     bool
	// LeftoverAction moves files left next to extracted archives
	LeftoverAction Action
}

// ExtractResult is the file set after extraction
type ExtractResult struct {
	Folder      string
	MediaFolder string
	Files       []string
	Extracted   []string
}

// ExtractorSettings configures archive handling
type ExtractorSettings struct {
	FromFolder       string
	ModifyDate       bool
	FileChangeWindow time.Duration
}

// Extractor unpacks archives found in a scan folder into the from folder
type Extractor struct {
	settings ExtractorSettings
	unpacker Unpacker
	tagger   *Tagger
	mover    *Mover
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *logrus.Logger
}

// NewExtractor creates an extractor
func NewExtractor(settings ExtractorSettings, unpacker Unpacker, tagger *Tagger, mover *Mover, m *metrics.Metrics, logger *logrus.Logger) *Extractor {
	return &Extractor{
		settings: settings,
		unpacker: unpacker,
		tagger:   tagger,
		mover:    mover,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// Extract unpacks every archive of req. Archives already tagged or still
// changing are skipped; a failing archive leaves its volumes in place.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) ExtractResult {
	from := e.settings.FromFolder
	folder := req.Folder
	if folder == "" {
		folder = from
	}
	mediaFolder := req.MediaFolder
	checkFileDate := mediaFolder == ""

	files := append([]string(nil), req.Files...)
	if len(files) == 0 {
		files = walkFiles(folder)
	}

	var extracted []string
	for _, name := range append([]string(nil), files...) {
		if ctx.Err() != nil {
			break
		}
		arc, ok := firstVolume(name)
		if !ok {
			continue
		}
		if e.tagger.HasTag(FileTarget(arc.file), "") {
			continue
		}

		volumes := []string{}
		for _, f := range files {
			if isContinuation(f, arc.base) {
				volumes = append(volumes, f)
			}
		}
		volumes = append(volumes, arc.file)

		if checkFileDate && e.changed(volumes) {
			e.logger.WithField("archive", filepath.Base(arc.file)).Info("Archive seems to be still copying/moving/downloading or just copied/moved/downloaded, ignoring for now")
			continue
		}

		e.logger.WithField("archive", filepath.Base(arc.file)).Info("Archive found. Extracting...")
		dest := filepath.Join(from, relative(filepath.Dir(arc.file), folder))
		if err := e.mover.MakeDir(dest); err != nil {
			e.logger.WithError(err).WithField("archive", arc.file).Error("Failed to extract")
			e.metrics.Extraction(err)
			continue
		}

		members, err := e.unpacker.Unpack(ctx, arc.file, dest)
		e.metrics.Extraction(err)
		if err != nil {
			e.logger.WithError(err).WithField("archive", arc.file).Error("Failed to extract")
			for _, m := range members {
				os.Remove(m)
			}
			continue
		}

		if e.settings.ModifyDate {
			if info, err := os.Stat(arc.file); err == nil {
				for _, m := range members {
					if err := os.Chtimes(m, info.ModTime(), info.ModTime()); err != nil {
						e.logger.WithError(err).WithField("file", m).Error("Rar modify date enabled, but failed")
					}
				}
			}
		}
		extracted = append(extracted, members...)

		if !req.Cleanup {
			if err := e.tagger.Tag(FileTarget(arc.file), TagExtracted); err != nil {
				e.logger.WithError(err).WithField("archive", arc.file).Warn("Failed to tag archive")
			}
		}

		for _, volume := range volumes {
			if req.Cleanup {
				if err := os.Remove(volume); err != nil {
					e.logger.WithError(err).WithField("file", volume).Error("Failed to remove archive volume")
					continue
				}
			}
			files = without(files, volume)
		}
	}

	if len(extracted) > 0 && filepath.Clean(folder) != filepath.Clean(from) {
		for _, leftover := range append([]string(nil), files...) {
			moveTo := filepath.Join(from, relative(leftover, folder))
			err := e.mover.MakeDir(filepath.Dir(moveTo))
			if err == nil {
				err = e.mover.Move(leftover, moveTo, req.LeftoverAction)
			}
			if err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"file": leftover,
					"to":   moveTo,
				}).Error("Failed moving left over file")
				if !sameSize(leftover, moveTo) {
					continue
				}
				if req.Cleanup {
					e.logger.WithField("file", leftover).Info("Deleting left over file instead")
					os.Remove(leftover)
				}
			}
			files = without(files, leftover)
			extracted = append(extracted, moveTo)
		}

		if req.Cleanup && mediaFolder != "" {
			e.tagger.DeleteFolder(mediaFolder, true)
		}
		if mediaFolder != "" {
			mediaFolder = filepath.Join(from, relative(mediaFolder, folder))
		}
		folder = from
	}

	files = append(files, extracted...)
	if mediaFolder == "" {
		files = nil
		folder = ""
	}

	return ExtractResult{
		Folder:      folder,
		MediaFolder: mediaFolder,
		Files:       files,
		Extracted:   extracted,
	}
}

func (e *Extractor) changed(files []string) bool {
	cutoff := e.now().Add(-e.settings.FileChangeWindow)
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || utils.ChangedAt(info).After(cutoff) {
			return true
		}
	}
	return false
}

func relative(path, base string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}

func sameSize(a, b string) bool {
	ai, errA := os.Stat(a)
	bi, errB := os.Stat(b)
	return errA == nil && errB == nil && ai.Size() == bi.Size()
}

func without(files []string, drop string) []string {
	out := files[:0]
	for _, f := range files {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}
