package scanner

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// writeSized creates path with a sparse size of sizeMB megabytes
func writeSized(t *testing.T, path string, sizeMB int64) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, os.Truncate(path, sizeMB<<20))
	return path
}

func TestClassify(t *testing.T) {
	c := NewClassifier(nil, newTestLogger())

	tests := []struct {
		path string
		size float64
		want Category
	}{
		{"/dl/Movie.Name.2020.1080p.BluRay.x264-GROUP.mkv", 700, CategoryMovie},
		{"/dl/Movie.Name.2020.1080p.BluRay.x264-GROUP.mkv", 50, CategoryLeftover},
		{"/dl/Movie.Name.2020.1080p.BluRay.x264-GROUP.mkv", -1, CategoryLeftover},
		{"/dl/sample.mkv", 5, CategorySample},
		{"/dl/movie-sample.mkv", 400, CategorySample},
		{"/dl/Movie.Name-trailer.mp4", 50, CategoryTrailer},
		{"/dl/Movie.Name-trailer.mkv", 700, CategoryMovie},
		{"/dl/Movie.Name/VIDEO_TS/VTS_01_1.VOB", -1, CategoryDVD},
		{"/dl/Movie.Name/BDMV/index.bdmv", 1, CategoryDVD},
		{"/dl/movie.srt", 0.1, CategorySubtitle},
		{"/dl/movie.idx", 0.1, CategorySubtitleExtra},
		{"/dl/movie.nfo", 0.1, CategoryNFO},
		{"/dl/movie.mds", 0.1, CategoryMovieExtra},
		{"/dl/fanart.jpg", 1, CategoryBackdrop},
		{"/dl/fanart.jpg", 10, CategoryImage},
		{"/dl/poster.jpg", 1, CategoryImage},
		{"/dl/.DS_Store", 0, CategoryIgnored},
		{"/dl/extracted/movie.mkv", 700, CategoryIgnored},
		{"/dl/movie_unpack/movie.mkv", 700, CategoryIgnored},
		{"/dl/readme.exe", 1, CategoryLeftover},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.path, tt.size))
		})
	}
}

func TestClassifierUserIgnoreList(t *testing.T) {
	c := NewClassifier(utils.NewIgnoreList("Kids Movies"), newTestLogger())

	assert.False(t, c.Keep("/dl/kids movies/Movie.2020.mkv"))
	assert.True(t, c.Keep("/dl/movies/Movie.2020.mkv"))
	assert.Equal(t, CategoryIgnored, c.Classify("/dl/Kids Movies/Movie.2020.mkv", 700))
}

func TestClassifierFilesOf(t *testing.T) {
	dir := t.TempDir()
	movie := writeSized(t, filepath.Join(dir, "Movie.2020.mkv"), 300)
	trailer := writeSized(t, filepath.Join(dir, "Movie.2020-trailer.mkv"), 20)
	sub := writeSized(t, filepath.Join(dir, "Movie.2020.srt"), 0)

	c := NewClassifier(nil, newTestLogger())
	files := []string{movie, trailer, sub}

	assert.Equal(t, []string{movie}, c.FilesOf(CategoryMovie, files))
	assert.Equal(t, []string{trailer}, c.FilesOf(CategoryTrailer, files))
	assert.Equal(t, []string{sub}, c.FilesOf(CategorySubtitle, files))
	assert.Empty(t, c.FilesOf(CategoryNFO, files))
}

func TestClassifierSize(t *testing.T) {
	dir := t.TempDir()
	path := writeSized(t, filepath.Join(dir, "movie.mkv"), 3)

	c := NewClassifier(nil, newTestLogger())
	assert.InDelta(t, 3.0, c.Size(path), 0.001)
	assert.Equal(t, -1.0, c.Size(filepath.Join(dir, "missing.mkv")))
}

func TestSizeBandExclusive(t *testing.T) {
	assert.False(t, trailerBand.between(2))
	assert.True(t, trailerBand.between(2.5))
	assert.False(t, trailerBand.between(199))
	assert.False(t, movieBand.between(-1))
}
