package renamer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/scanner"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Request is one renamer run. Empty fields fall back to the configured from folder.
type Request struct {
	BaseFolder  string
	MediaFolder string
	Files       []string
	Download    *models.DownloadReport
}

// GroupScanner turns a folder into identified release groups
type GroupScanner interface {
	Scan(ctx context.Context, opts scanner.Options) ([]*scanner.Group, error)
}

// Store is the release and movie bookkeeping the renamer updates
type Store interface {
	GetReleaseByDownload(downloader, id string) (*models.Release, error)
	GetReleasesByMovieID(movieID uint64) ([]*models.Release, error)
	GetMovieByID(id uint64) (*models.Movie, error)
	UpdateReleaseStatus(id uint64, status models.ReleaseStatus) error
	MarkMovieDone(id uint64) error
}

// Settings are the renamer options
type Settings struct {
	FromFolder        string
	ToFolder          string
	FolderName        string
	FileName          string
	NFOName           string
	TrailerName       string
	DefaultFileAction Action
	FileAction        Action
	Unrar             bool
	UnrarCleanup      bool
	Cleanup           bool
}

// Renamer moves identified groups into the library
type Renamer struct {
	settings   Settings
	scanner    GroupScanner
	classifier *scanner.Classifier
	namer      *Namer
	mover      *Mover
	tagger     *Tagger
	extractor  *Extractor
	store      Store
	metrics    *metrics.Metrics
	ids        *scanner.IdentifierBuilder
	state      utils.JobState
	logger     *logrus.Logger
}

// NewRenamer creates a renamer. extractor may be nil when unrar is disabled.
func NewRenamer(settings Settings, groups GroupScanner, classifier *scanner.Classifier, namer *Namer, mover *Mover, tagger *Tagger, extractor *Extractor, store Store, m *metrics.Metrics, logger *logrus.Logger) *Renamer {
	return &Renamer{
		settings:   settings,
		scanner:    groups,
		classifier: classifier,
		namer:      namer,
		mover:      mover,
		tagger:     tagger,
		extractor:  extractor,
		store:      store,
		metrics:    m,
		ids:        scanner.NewIdentifierBuilder(),
		logger:     logger,
	}
}

// Running reports whether a scan is in progress and since when
func (r *Renamer) Running() (bool, time.Time) {
	return r.state.Running()
}

// Scan runs the renamer once. It returns false without doing anything
// when another scan is already in progress.
func (r *Renamer) Scan(ctx context.Context, req Request) bool {
	if !r.state.TryStart() {
		r.logger.Info("Renamer is already running, if you see this often, check the logs above for errors")
		return false
	}
	defer r.state.Finish()

	r.run(ctx, req)
	return true
}

// ScanAsync starts a scan in the background and reports whether it was started
func (r *Renamer) ScanAsync(ctx context.Context, req Request) bool {
	if !r.state.TryStart() {
		r.logger.Info("Renamer is already running, if you see this often, check the logs above for errors")
		return false
	}

	go func() {
		defer r.state.Finish()
		r.run(ctx, req)
	}()
	return true
}

func (r *Renamer) run(ctx context.Context, req Request) {
	started := time.Now()
	err := r.scan(ctx, req)
	r.metrics.ObserveScan(started, err)
	if err != nil {
		r.logger.WithError(err).Error("Renamer failed")
		return
	}
	r.logger.WithField("duration", time.Since(started).Round(time.Millisecond)).Debug("Renamer finished")
}

func (r *Renamer) scan(ctx context.Context, req Request) error {
	from := r.settings.FromFolder
	to := r.settings.ToFolder
	if from == "" || to == "" {
		return errors.New("\"To\" and \"From\" folders are required")
	}

	folder := req.BaseFolder
	if folder == "" {
		folder = from
	}
	if utils.IsSubFolder(to, folder) {
		return fmt.Errorf("the \"to\" folder %s can't be inside of the \"from\" folder %s", to, folder)
	}

	download := r.extendReleaseDownload(req.Download)
	action := r.settings.DefaultFileAction
	if download.IsTorrent() {
		action = r.settings.FileAction
	}

	mediaFolder := req.MediaFolder
	files := req.Files
	if mediaFolder != "" {
		info, err := os.Stat(mediaFolder)
		if err != nil {
			return fmt.Errorf("media folder doesn't exist: %s", mediaFolder)
		}
		if len(files) == 0 {
			if info.IsDir() {
				files = walkFiles(mediaFolder)
			} else {
				files = []string{mediaFolder}
			}
		}
		files = r.keptFiles(files)
		if len(files) == 0 {
			r.logger.WithField("folder", mediaFolder).Info("No files left to rename after ignoring")
			return nil
		}
	}

	if r.settings.Unrar && r.extractor != nil {
		result := r.extractor.Extract(ctx, ExtractRequest{
			Folder:         folder,
			MediaFolder:    mediaFolder,
			Files:          files,
			Cleanup:        r.settings.UnrarCleanup && !(action.KeepsSource() && download.IsTorrent()),
			LeftoverAction: action,
		})
		if result.Folder != "" {
			folder = result.Folder
		}
		mediaFolder = result.MediaFolder
		files = result.Files
	}

	groups, err := r.scanner.Scan(ctx, scanner.Options{
		Folder:        folder,
		Files:         files,
		Download:      download,
		CheckFileDate: true,
	})
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		r.logger.WithField("folder", folder).Debug("No movies found to rename")
		return nil
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := r.logger.WithField("identifier", group.Identifier)
		if !group.HasMedia() {
			log.WithField("identifiers", group.Identifiers).Info("Could not identify movie, skipping")
			r.metrics.Group("skipped")
			continue
		}

		if err := r.processGroup(group, action, download); err != nil {
			log.WithError(err).Warn("Failed renaming group")
			r.metrics.Group("failed")
			if tagErr := r.tagger.Tag(GroupTarget(group), TagFailedRename); tagErr != nil {
				log.WithError(tagErr).Error("Failed tagging group")
			}
			continue
		}
		r.metrics.Group("renamed")
	}

	if mediaFolder != "" && r.settings.Cleanup && action == ActionMove &&
		filepath.Clean(mediaFolder) != filepath.Clean(from) {
		r.tagger.DeleteFolder(mediaFolder, true)
	}
	return nil
}

// extendReleaseDownload adds what the store knows about the release behind d
func (r *Renamer) extendReleaseDownload(d *models.DownloadReport) *models.ReleaseDownload {
	if d == nil {
		return nil
	}
	download := &models.ReleaseDownload{DownloadReport: *d}
	if d.ID == "" {
		return download
	}

	release, err := r.store.GetReleaseByDownload(d.Downloader, d.ID)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"id":         d.ID,
			"downloader": d.Downloader,
		}).Error("Download ID not found in releases")
		return download
	}

	download.Quality = release.Quality
	download.Is3D = release.Is3D
	download.Protocol = release.Protocol
	download.ReleaseID = release.ID
	if movie, err := r.store.GetMovieByID(release.MovieID); err == nil {
		download.IMDBId = movie.IMDBId
	}
	return download
}

func (r *Renamer) keptFiles(files []string) []string {
	var kept []string
	for _, f := range files {
		if r.classifier.Keep(f) {
			kept = append(kept, f)
		} else {
			r.logger.WithField("file", f).Debug("Ignored during renaming")
		}
	}
	return kept
}

// processGroup renders the destination of every file of group and moves them
func (r *Renamer) processGroup(group *scanner.Group, action Action, download *models.ReleaseDownload) error {
	movie := group.Media
	if movie == nil || strings.TrimSpace(movie.Title) == "" {
		return fmt.Errorf("no title known for %s", group.IMDBId)
	}
	log := r.logger.WithFields(logrus.Fields{
		"identifier": group.Identifier,
		"title":      movie.Title,
	})

	tokens := r.tokens(group)
	folderName := r.namer.Render(r.settings.FolderName, tokens, true, true)
	if strings.TrimSpace(folderName) == "" {
		return errors.New("folder name template rendered empty")
	}
	destination := filepath.Join(r.settings.ToFolder, folderName)

	renames, err := r.destinations(group, tokens, destination)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"destination": destination,
		"files":       len(renames),
	}).Info("Renaming movie")

	if err := r.mover.MakeDir(destination); err != nil {
		return err
	}

	for _, src := range sortedKeys(renames) {
		dst := renames[src]
		if src == dst {
			continue
		}
		if err := r.mover.MakeDir(filepath.Dir(dst)); err != nil {
			return err
		}
		err := r.mover.Move(src, dst, action)
		r.metrics.FileMoved(string(action), err)
		if err != nil {
			return err
		}
	}

	if action.KeepsSource() {
		if err := r.tagger.Tag(GroupTarget(group), TagRenamedAlready); err != nil {
			log.WithError(err).Error("Failed tagging renamed group")
		}
	} else if r.settings.Cleanup && group.DirName != "" &&
		filepath.Clean(group.ParentDir) != filepath.Clean(group.Root) &&
		filepath.Clean(group.ParentDir) != filepath.Clean(r.settings.FromFolder) {
		r.tagger.DeleteFolder(group.ParentDir, true)
	}

	r.markDone(group, download)
	return nil
}

// destinations maps every file of group to its library path
func (r *Renamer) destinations(group *scanner.Group, tokens map[string]string, destination string) (map[string]string, error) {
	movies := group.MovieFiles()
	if len(movies) == 0 {
		return nil, errors.New("group has no movie files")
	}
	renames := make(map[string]string)

	if group.IsDVD {
		for _, f := range group.AllFiles() {
			if contains(group.Files[scanner.CategoryLeftover], f) {
				continue
			}
			rel, err := filepath.Rel(scanner.DiscRoot(f), f)
			if err != nil {
				return nil, err
			}
			renames[f] = filepath.Join(destination, rel)
		}
		return renames, nil
	}

	multiple := len(movies) > 1
	sidecars := r.sidecarsByMovie(group, movies)
	parts := r.partNumbers(movies)
	for _, src := range movies {
		fileTokens := cloneTokens(tokens)
		fileTokens["ext"] = utils.Ext(src)
		fileTokens["original"] = utils.TrimExt(filepath.Base(src))
		if multiple {
			nr := parts[src]
			fileTokens["cd"] = " cd" + nr
			fileTokens["cd_nr"] = nr
		}

		fileName := r.namer.Render(r.settings.FileName, fileTokens, false, !multiple)
		if utils.TrimExt(fileName) == "" {
			return nil, fmt.Errorf("file name template rendered empty for %s", src)
		}
		renames[src] = filepath.Join(destination, fileName)

		fileTokens["filename"] = utils.TrimExt(fileName)
		for _, side := range sidecars[src] {
			name := r.sidecarName(group, side, fileTokens, !multiple)
			if name == "" {
				continue
			}
			renames[side.path] = filepath.Join(destination, name)
		}
	}
	return renames, nil
}

// partNumbers numbers the movie files of a multi part release by the cd or
// part token of their names. When the tokens are missing or clash the files
// are numbered by position instead.
func (r *Renamer) partNumbers(movies []string) map[string]string {
	parts := make(map[string]string, len(movies))
	seen := make(map[string]bool, len(movies))
	for _, src := range movies {
		nr := r.ids.PartNumber(filepath.Base(src))
		if n, err := strconv.Atoi(nr); err == nil {
			nr = strconv.Itoa(n)
		} else if len(nr) == 1 && nr[0] >= 'a' && nr[0] <= 'd' {
			nr = strconv.Itoa(int(nr[0]-'a') + 1)
		}
		if seen[nr] {
			parts = make(map[string]string, len(movies))
			for i, m := range movies {
				parts[m] = strconv.Itoa(i + 1)
			}
			return parts
		}
		seen[nr] = true
		parts[src] = nr
	}
	return parts
}

type sidecar struct {
	path     string
	category scanner.Category
}

var sidecarCategories = []scanner.Category{
	scanner.CategorySubtitle,
	scanner.CategorySubtitleExtra,
	scanner.CategoryNFO,
	scanner.CategoryTrailer,
	scanner.CategoryMovieExtra,
}

// sidecarsByMovie attaches every sidecar to the movie file whose stem it
// starts with, or to the first movie file
func (r *Renamer) sidecarsByMovie(group *scanner.Group, movies []string) map[string][]sidecar {
	attached := make(map[string][]sidecar, len(movies))
	for _, category := range sidecarCategories {
		for _, f := range group.Files[category] {
			owner := movies[0]
			for _, movie := range movies {
				if strings.HasPrefix(f, utils.TrimExt(movie)) {
					owner = movie
					break
				}
			}
			attached[owner] = append(attached[owner], sidecar{path: f, category: category})
		}
	}
	return attached
}

func (r *Renamer) sidecarName(group *scanner.Group, side sidecar, tokens map[string]string, removeMultiple bool) string {
	sideTokens := cloneTokens(tokens)
	sideTokens["ext"] = utils.Ext(side.path)

	pattern := r.settings.FileName
	switch side.category {
	case scanner.CategorySubtitle:
		if langs := group.SubtitleLanguages[side.path]; len(langs) > 0 {
			sideTokens["ext"] = langs[0] + "." + sideTokens["ext"]
		}
	case scanner.CategoryNFO:
		pattern = r.settings.NFOName
	case scanner.CategoryTrailer:
		pattern = r.settings.TrailerName
	}
	if pattern == "" {
		return ""
	}
	return r.namer.Render(pattern, sideTokens, false, removeMultiple)
}

// tokens builds the template values shared by every file of group
func (r *Renamer) tokens(group *scanner.Group) map[string]string {
	movie := group.Media
	meta := group.Meta

	tokens := map[string]string{
		"thename":         movie.Title,
		"namethe":         movie.NameTheTitle(),
		"first":           firstLetter(movie.NameTheTitle()),
		"imdb_id":         movie.IMDBId,
		"video":           meta.VideoCodec,
		"audio":           meta.AudioCodec,
		"group":           meta.Group,
		"source":          meta.Source,
		"quality_type":    meta.QualityType,
		"3d_type":         meta.ThreeDType,
		"original_folder": group.DirName,
	}
	if movie.IMDBId == "" {
		tokens["imdb_id"] = group.IMDBId
	}
	if movie.Year > 0 {
		tokens["year"] = strconv.Itoa(movie.Year)
	}
	if meta.Quality != nil {
		tokens["quality"] = meta.Quality.Label
	}
	if meta.Is3D() {
		tokens["3d"] = "3D"
	}
	if meta.AudioChannels > 0 {
		tokens["audio_channels"] = strconv.FormatFloat(meta.AudioChannels, 'f', 1, 64)
	}
	if meta.Width > 0 && meta.Height > 0 {
		tokens["resolution_width"] = strconv.Itoa(meta.Width)
		tokens["resolution_height"] = strconv.Itoa(meta.Height)
	}
	return tokens
}

// markDone finishes the bookkeeping of a renamed group
func (r *Renamer) markDone(group *scanner.Group, download *models.ReleaseDownload) {
	movie := group.Media
	log := r.logger.WithField("identifier", group.Identifier)

	if download != nil && download.ReleaseID != 0 {
		status := models.ReleaseStatusDone
		if download.Status == models.DownloadStatusSeeding {
			status = models.ReleaseStatusSeeding
		}
		if err := r.store.UpdateReleaseStatus(download.ReleaseID, status); err != nil {
			log.WithError(err).Error("Failed updating release status")
		} else {
			r.metrics.Transition(string(status))
		}
	} else if movie.ID != 0 {
		releases, err := r.store.GetReleasesByMovieID(movie.ID)
		if err != nil {
			log.WithError(err).Error("Failed getting releases of movie")
		}
		for _, release := range releases {
			switch release.Status {
			case models.ReleaseStatusSnatched, models.ReleaseStatusDownloaded, models.ReleaseStatusMissing:
			default:
				continue
			}
			if group.Meta.Quality != nil && release.Quality != "" && release.Quality != group.Meta.Quality.Identifier {
				continue
			}
			if err := r.store.UpdateReleaseStatus(release.ID, models.ReleaseStatusDone); err != nil {
				log.WithError(err).Error("Failed updating release status")
				continue
			}
			r.metrics.Transition(string(models.ReleaseStatusDone))
		}
	}

	if movie.ID != 0 {
		if err := r.store.MarkMovieDone(movie.ID); err != nil {
			log.WithError(err).Error("Failed marking movie done")
		}
	}
}

func firstLetter(title string) string {
	for _, c := range title {
		if unicode.IsLetter(c) {
			return strings.ToUpper(string(c))
		}
		if unicode.IsDigit(c) {
			return "#"
		}
	}
	return ""
}

func cloneTokens(tokens map[string]string) map[string]string {
	out := make(map[string]string, len(tokens)+4)
	for k, v := range tokens {
		out[k] = v
	}
	return out
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
