package renamer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
	"github.com/amaumene/gomovarr/internal/scanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeCatalog resolves catalog ids against the release store only
type storeCatalog struct {
	db *models.Database
}

func (c *storeCatalog) LookupByID(ctx context.Context, imdbID string) (*models.Movie, error) {
	return c.db.GetMovieByIMDBID(imdbID)
}

func (c *storeCatalog) CreateStub(ctx context.Context, imdbID string) (*models.Movie, error) {
	movie := &models.Movie{IMDBId: imdbID}
	return movie, c.db.CreateMovie(movie)
}

func (c *storeCatalog) Search(ctx context.Context, query string, limit int) ([]*models.Movie, error) {
	return nil, nil
}

type renamerFixture struct {
	from    string
	to      string
	db      *models.Database
	metrics *metrics.Metrics
	renamer *Renamer
}

func newRenamerFixture(t *testing.T, settings Settings) *renamerFixture {
	t.Helper()
	logger := newTestLogger()

	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "renamer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &renamerFixture{
		from:    t.TempDir(),
		to:      t.TempDir(),
		db:      db,
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}

	classifier := scanner.NewClassifier(nil, logger)
	ids := scanner.NewIdentifierBuilder()
	scorer := quality.NewScorer(quality.DefaultDefinitions(), logger)
	groups := scanner.NewFolderScanner(
		scanner.Settings{},
		classifier,
		ids,
		scorer,
		scanner.NewMetadataExtractor(classifier, nil, scorer, logger),
		scanner.NewMediaResolver(&storeCatalog{db: db}, ids, logger),
		logger,
	)

	settings.FromFolder = f.from
	settings.ToFolder = f.to
	if settings.FolderName == "" {
		settings.FolderName = "<namethe> (<year>)"
	}
	if settings.FileName == "" {
		settings.FileName = "<thename><cd>.<ext>"
	}
	settings.NFOName = "<filename>.orig.<ext>"
	settings.TrailerName = "<filename>-trailer.<ext>"
	if settings.DefaultFileAction == "" {
		settings.DefaultFileAction = ActionMove
	}
	if settings.FileAction == "" {
		settings.FileAction = ActionLink
	}

	f.renamer = NewRenamer(settings, groups, classifier, NewNamer("", "", true), newTestMover(),
		NewTagger(logger), nil, db, f.metrics, logger)
	return f
}

func (f *renamerFixture) addMovie(t *testing.T, imdbID, title string, year int) *models.Movie {
	t.Helper()
	movie := &models.Movie{IMDBId: imdbID, Title: title, Year: year}
	require.NoError(t, f.db.CreateMovie(movie))
	return movie
}

// addRelease writes a sparse movie file and an NFO naming imdbID into the from folder
func (f *renamerFixture) addRelease(t *testing.T, name, imdbID string) (string, string) {
	t.Helper()
	dir := filepath.Join(f.from, name)
	movie := filepath.Join(dir, name+".mkv")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(movie, nil, 0o644))
	require.NoError(t, os.Truncate(movie, 700<<20))

	nfo := movie[:len(movie)-len(".mkv")] + ".nfo"
	content := "no id here"
	if imdbID != "" {
		content = "https://www.imdb.com/title/" + imdbID + "/"
	}
	writeFile(t, nfo, content)
	age(t, movie, nfo)
	return movie, nfo
}

func (f *renamerFixture) groups(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.GroupsTotal.WithLabelValues(outcome))
}

func TestRenamerMovesIdentifiedGroup(t *testing.T) {
	f := newRenamerFixture(t, Settings{Cleanup: true})
	matrix := f.addMovie(t, "tt0133093", "The Matrix", 1999)
	movie, nfo := f.addRelease(t, "The.Matrix.1999.720p.BluRay.x264-GRP", "tt0133093")

	require.True(t, f.renamer.Scan(context.Background(), Request{}))

	dest := filepath.Join(f.to, "Matrix, The (1999)")
	assert.FileExists(t, filepath.Join(dest, "The Matrix.mkv"))
	assert.FileExists(t, filepath.Join(dest, "The Matrix.orig.nfo"))
	assert.NoFileExists(t, movie)
	assert.NoFileExists(t, nfo)
	assert.NoDirExists(t, filepath.Dir(movie))
	assert.Equal(t, 1.0, f.groups("renamed"))

	done, err := f.db.GetMovieByID(matrix.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MovieStatusDone, done.Status)

	// a second run finds nothing left to do
	require.True(t, f.renamer.Scan(context.Background(), Request{}))
	assert.Equal(t, 1.0, f.groups("renamed"))
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRenamerSkipsUnidentifiedGroups(t *testing.T) {
	f := newRenamerFixture(t, Settings{Cleanup: true})
	movie, _ := f.addRelease(t, "Some.Home.Video.720p", "")

	require.True(t, f.renamer.Scan(context.Background(), Request{}))

	assert.FileExists(t, movie)
	assert.NoFileExists(t, MarkerPath(movie, TagFailedRename))
	assert.Equal(t, 1.0, f.groups("skipped"))
	entries, err := os.ReadDir(f.to)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenamerIsolatesGroupFailures(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	f.addMovie(t, "tt0133093", "The Matrix", 1999)
	f.addMovie(t, "tt0078748", "Alien", 1979)
	matrix, _ := f.addRelease(t, "The.Matrix.1999.720p.BluRay.x264-GRP", "tt0133093")
	alien, _ := f.addRelease(t, "Alien.1979.1080p.BluRay.x264-GRP", "tt0078748")
	writeFile(t, filepath.Join(f.to, "Matrix, The (1999)", "The Matrix.mkv"), "already there")

	require.True(t, f.renamer.Scan(context.Background(), Request{}))

	assert.FileExists(t, matrix)
	assert.FileExists(t, MarkerPath(matrix, TagFailedRename))
	assert.NoFileExists(t, alien)
	assert.FileExists(t, filepath.Join(f.to, "Alien (1979)", "Alien.mkv"))
	assert.Equal(t, 1.0, f.groups("failed"))
	assert.Equal(t, 1.0, f.groups("renamed"))

	// the failed group stays hidden until its marker is removed
	require.True(t, f.renamer.Scan(context.Background(), Request{}))
	assert.Equal(t, 1.0, f.groups("failed"))
}

func TestRenamerTorrentDownloadKeepsSource(t *testing.T) {
	f := newRenamerFixture(t, Settings{FileAction: ActionCopy})
	matrix := f.addMovie(t, "tt0133093", "The Matrix", 1999)
	movie, _ := f.addRelease(t, "The.Matrix.1999.720p.BluRay.x264-GRP", "")

	release := &models.Release{
		MovieID:      matrix.ID,
		Name:         "The.Matrix.1999.720p.BluRay.x264-GRP",
		Protocol:     models.ProtocolTorrent,
		Status:       models.ReleaseStatusSnatched,
		DownloadInfo: &models.DownloadInfo{Downloader: "qbittorrent", ID: "abc", StatusSupport: true},
	}
	require.NoError(t, f.db.CreateRelease(release))

	req := Request{
		MediaFolder: filepath.Dir(movie),
		Download: &models.DownloadReport{
			ID:         "abc",
			Downloader: "qbittorrent",
			Status:     models.DownloadStatusCompleted,
			Folder:     filepath.Dir(movie),
		},
	}
	require.True(t, f.renamer.Scan(context.Background(), req))

	assert.FileExists(t, movie)
	assert.FileExists(t, filepath.Join(f.to, "Matrix, The (1999)", "The Matrix.mkv"))
	assert.FileExists(t, MarkerPath(movie, TagRenamedAlready))

	updated, err := f.db.GetReleaseByID(release.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusDone, updated.Status)

	require.True(t, f.renamer.Scan(context.Background(), req))
	assert.Equal(t, 1.0, f.groups("renamed"))
}

func TestRenamerMultipartNames(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	f.addMovie(t, "tt0133093", "The Matrix", 1999)
	dir := filepath.Join(f.from, "The.Matrix.1999.720p.BluRay.x264-GRP")
	var parts []string
	for _, name := range []string{"the.matrix.1999.cd1.mkv", "the.matrix.1999.cd2.mkv"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		require.NoError(t, os.Truncate(p, 700<<20))
		parts = append(parts, p)
	}
	nfo := writeFile(t, filepath.Join(dir, "the.matrix.1999.nfo"), "tt0133093")
	age(t, append(parts, nfo)...)

	require.True(t, f.renamer.Scan(context.Background(), Request{}))

	dest := filepath.Join(f.to, "Matrix, The (1999)")
	assert.FileExists(t, filepath.Join(dest, "The Matrix cd1.mkv"))
	assert.FileExists(t, filepath.Join(dest, "The Matrix cd2.mkv"))
}

// head returns the first n bytes of path
func head(t *testing.T, path string, n int) string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	buf := make([]byte, n)
	_, err = io.ReadFull(fh, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestRenamerMultipartKeepsPartNumbers(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	f.addMovie(t, "tt0133093", "The Matrix", 1999)
	dir := filepath.Join(f.from, "The.Matrix.1999.720p.BluRay.x264-GRP")
	for i := 1; i <= 11; i++ {
		p := writeFile(t, filepath.Join(dir, fmt.Sprintf("the.matrix.1999.cd%d.mkv", i)), fmt.Sprintf("part%02d", i))
		require.NoError(t, os.Truncate(p, 700<<20))
	}
	writeFile(t, filepath.Join(dir, "the.matrix.1999.nfo"), "tt0133093")

	require.True(t, f.renamer.Scan(context.Background(), Request{}))

	dest := filepath.Join(f.to, "Matrix, The (1999)")
	for i := 1; i <= 11; i++ {
		got := filepath.Join(dest, fmt.Sprintf("The Matrix cd%d.mkv", i))
		require.FileExists(t, got)
		assert.Equal(t, fmt.Sprintf("part%02d", i), head(t, got, 6))
	}
}

func TestPartNumbers(t *testing.T) {
	r := newRenamerFixture(t, Settings{}).renamer

	tests := []struct {
		name   string
		movies []string
		want   []string
	}{
		{"part tokens", []string{"/dl/movie.part2.mkv", "/dl/movie.part3.mkv"}, []string{"2", "3"}},
		{"two digit cds", []string{"/dl/movie.cd1.mkv", "/dl/movie.cd10.mkv", "/dl/movie.cd2.mkv"}, []string{"1", "10", "2"}},
		{"zero padded", []string{"/dl/movie.disc01.mkv", "/dl/movie.disc02.mkv"}, []string{"1", "2"}},
		{"letters", []string{"/dl/movie.a.avi", "/dl/movie.b.avi"}, []string{"1", "2"}},
		{"no tokens", []string{"/dl/movie.mkv", "/dl/movie.extended.mkv"}, []string{"1", "2"}},
		{"clashing tokens", []string{"/dl/a/movie.cd1.mkv", "/dl/b/movie.cd1.mkv"}, []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := r.partNumbers(tt.movies)
			for i, m := range tt.movies {
				assert.Equal(t, tt.want[i], parts[m], m)
			}
		})
	}
}

func TestRenamerKeepsDiscStructure(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	f.addMovie(t, "tt0133093", "The Matrix", 1999)
	f.addMovie(t, "tt0078748", "Alien", 1979)

	dvd := filepath.Join(f.from, "The Matrix 1999")
	writeFile(t, filepath.Join(dvd, "VIDEO_TS", "VIDEO_TS.IFO"), "ifo")
	writeFile(t, filepath.Join(dvd, "VIDEO_TS", "VTS_01_1.VOB"), "vob")
	writeFile(t, filepath.Join(dvd, "the.matrix.nfo"), "tt0133093")

	bluray := filepath.Join(f.from, "Alien 1979")
	writeFile(t, filepath.Join(bluray, "BDMV", "index.bdmv"), "index")
	writeFile(t, filepath.Join(bluray, "BDMV", "BACKUP", "index.bdmv"), "backup")
	writeFile(t, filepath.Join(bluray, "BDMV", "STREAM", "00000.m2ts"), "stream")
	writeFile(t, filepath.Join(bluray, "CERTIFICATE", "id.bdmv"), "id")
	writeFile(t, filepath.Join(bluray, "alien.nfo"), "tt0078748")

	require.True(t, f.renamer.Scan(context.Background(), Request{}))
	assert.Equal(t, 2.0, f.groups("renamed"))
	assert.Zero(t, f.groups("failed"))

	matrix := filepath.Join(f.to, "Matrix, The (1999)")
	assert.FileExists(t, filepath.Join(matrix, "VIDEO_TS", "VIDEO_TS.IFO"))
	assert.FileExists(t, filepath.Join(matrix, "VIDEO_TS", "VTS_01_1.VOB"))
	assert.FileExists(t, filepath.Join(matrix, "the.matrix.nfo"))

	alien := filepath.Join(f.to, "Alien (1979)")
	index, err := os.ReadFile(filepath.Join(alien, "BDMV", "index.bdmv"))
	require.NoError(t, err)
	assert.Equal(t, "index", string(index))
	backup, err := os.ReadFile(filepath.Join(alien, "BDMV", "BACKUP", "index.bdmv"))
	require.NoError(t, err)
	assert.Equal(t, "backup", string(backup))
	assert.FileExists(t, filepath.Join(alien, "BDMV", "STREAM", "00000.m2ts"))
	assert.FileExists(t, filepath.Join(alien, "CERTIFICATE", "id.bdmv"))
	assert.FileExists(t, filepath.Join(alien, "alien.nfo"))
	assert.NoFileExists(t, filepath.Join(bluray, "BDMV", "BACKUP", "index.bdmv"))
}

func TestRenamerRejectsConcurrentRuns(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	require.True(t, f.renamer.state.TryStart())

	assert.False(t, f.renamer.Scan(context.Background(), Request{}))
	assert.False(t, f.renamer.ScanAsync(context.Background(), Request{}))
	running, _ := f.renamer.Running()
	assert.True(t, running)

	f.renamer.state.Finish()
	assert.True(t, f.renamer.Scan(context.Background(), Request{}))
}

func TestRenamerRejectsLibraryInsideFromFolder(t *testing.T) {
	f := newRenamerFixture(t, Settings{})
	inside := filepath.Join(f.from, "library")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	f.renamer.settings.ToFolder = inside

	require.True(t, f.renamer.Scan(context.Background(), Request{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScansTotal.WithLabelValues("error")))
}
