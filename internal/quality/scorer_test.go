package quality

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer() *Scorer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewScorer(DefaultDefinitions(), logger)
}

func TestGuessReleaseNames(t *testing.T) {
	scorer := newTestScorer()

	tests := []struct {
		name string
		want string
	}{
		{"Avatar.Fire.and.Ash.2025.2160p.BluRay.x265.HEVC-GROUP", "2160p"},
		{"Movie.Name.2025.2160p.AMZN.WEB-DL.DDP5.1.Atmos.H.265", "2160p"},
		{"Movie.2025.UHD.2160p.HDR.DV.BluRay", "2160p"},
		{"Movie.Name.2025.1080p.BluRay.x264-GROUP", "1080p"},
		{"Movie.Name.2025.1080p.WEB-DL.DD5.1.H.264", "1080p"},
		{"Anaconda.2025.1080p.AMZN.WEB-DL.DDP5.1.Atmos.H.264-FLUX", "1080p"},
		{"Movie.Name.2025.720p.BluRay.x264-GROUP", "720p"},
		{"Movie.Name.2025.720p.HDTV.x264", "720p"},
		{"Movie.2025.720p.BRRip.XviD.AC3", "720p"},
		{"Movie.2025.720p.BluRay", "720p"},
		{"Movie.Name.2025.BRRip.XviD-GROUP", "brrip"},
		{"Movie.Name.2025.BDRip.x264.AAC", "brrip"},
		{"Movie.2025.HDTV.x264.AAC", "brrip"},
		{"Movie.2025.WEB-DL.XviD", "brrip"},
		{"Movie.Name.2025.DVDRip.XviD-GROUP", "dvdrip"},
		{"Movie.Name.2025.DVD.Rip.x264", "dvdrip"},
		{"Movie.Name.2025.DVDScr.XviD-GROUP", "scr"},
		{"Movie.Name.2025.SCREENER.XviD", "scr"},
		{"Movie.2025.WEBRip.x264", "scr"},
		{"Movie.Name.2025.CAM.XviD-GROUP", "cam"},
		{"Movie.Name.2025.HDCAM.x264", "cam"},
		{"Movie.Name.2025.TS.XviD", "ts"},
		{"Movie.Name.2025.TELESYNC.XviD", "ts"},
		{"Movie.Name.2025.TC.XviD", "tc"},
		{"Movie.Name.2025.1080p.BluRay.AVC.DTS-HD.MA.BDMV", "bd50"},
		{"Movie.2025.Complete.BluRay.AVC", "bd50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Guess([]string{tt.name}, 0, Hints{})
			require.NotNil(t, result)
			assert.Equal(t, tt.want, result.Identifier)
		})
	}
}

func TestGuessIsCaseInsensitive(t *testing.T) {
	scorer := newTestScorer()

	upper := scorer.Guess([]string{"MOVIE.2025.1080P.BLURAY"}, 0, Hints{})
	lower := scorer.Guess([]string{"movie.2025.1080p.bluray"}, 0, Hints{})
	require.NotNil(t, upper)
	require.NotNil(t, lower)
	assert.Equal(t, lower.Identifier, upper.Identifier)
}

func TestGuessEmptyInput(t *testing.T) {
	scorer := newTestScorer()
	assert.Nil(t, scorer.Guess(nil, 0, Hints{}))
	assert.Nil(t, scorer.Guess([]string{"some_random_file.txt"}, 0, Hints{}))
}

func TestGuessMultipleFiles(t *testing.T) {
	scorer := newTestScorer()
	files := []string{
		"Movie.2025.1080p.BluRay.x264-GROUP/movie.mkv",
		"Movie.2025.1080p.BluRay.x264-GROUP/sample.mkv",
		"Movie.2025.1080p.BluRay.x264-GROUP",
	}
	result := scorer.Guess(files, 0, Hints{})
	require.NotNil(t, result)
	assert.Equal(t, "1080p", result.Identifier)
}

func TestGuess3D(t *testing.T) {
	scorer := newTestScorer()

	tests := []struct {
		name   string
		is3D   bool
		layout string
	}{
		{"Movie.Name.2025.1080p.BluRay.3D.HSBS", true, "sbs"},
		{"Movie.Name.2025.1080p.3D.Half-SBS.BluRay", true, "sbs"},
		{"Movie.2025.1080p.BluRay.HOU.x264", true, "ou"},
		{"Movie.2025.1080p.BluRay.x264", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Guess([]string{tt.name}, 0, Hints{})
			require.NotNil(t, result)
			assert.Equal(t, tt.is3D, result.Is3D)
			assert.Equal(t, tt.layout, result.ThreeDAs)
		})
	}
}

func TestGuessRoundTrip(t *testing.T) {
	scorer := newTestScorer()

	for _, def := range scorer.All() {
		t.Run(def.Identifier, func(t *testing.T) {
			result := scorer.Guess([]string{"Some.Film.2020." + def.Identifier + ".group"}, 0, Hints{})
			require.NotNil(t, result)
			assert.Equal(t, def.Identifier, result.Identifier)
		})
	}
}

func TestGuessUsesSizeAndResolution(t *testing.T) {
	scorer := newTestScorer()

	// No vocabulary at all: size and resolution decide
	result := scorer.Guess([]string{"movie.group"}, 10000, Hints{Width: 1920, Height: 1080})
	require.NotNil(t, result)
	assert.Equal(t, "1080p", result.Identifier)

	result = scorer.Guess([]string{"movie.group"}, 1500, Hints{Width: 720, Height: 404})
	require.NotNil(t, result)
	assert.Equal(t, "dvdrip", result.Identifier)
}

func TestSizeScore(t *testing.T) {
	def := Definition{SizeMin: 0, SizeMax: 100, MedianSize: 50}
	assert.Equal(t, float64(8), sizeScore(def, 50))
	assert.Equal(t, float64(4), sizeScore(def, 100))
	assert.Equal(t, float64(-5), sizeScore(def, 101))
}

func TestSingle(t *testing.T) {
	scorer := newTestScorer()

	def, err := scorer.Single("dvdr")
	require.NoError(t, err)
	assert.Equal(t, "DVD-R", def.Label)

	_, err = scorer.Single("nope")
	assert.ErrorIs(t, err, ErrUnknownQuality)

	assert.Less(t, scorer.Order("1080p"), scorer.Order("720p"))
	assert.Equal(t, len(scorer.All()), scorer.Order("nope"))
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()

	defs, err := LoadDefinitions(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, len(DefaultDefinitions()), len(defs))

	path := filepath.Join(dir, "qualities.yaml")
	content := `qualities:
  - identifier: 1080p
    label: 1080p
    hd: true
    size_min: 4000
    size_max: 20000
    median_size: 10000
    tags:
      - x264
      - [complete, bluray]
      - web dl
    ext: [mkv]
  - identifier: cam
    label: Cam
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	defs, err = LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, []Tag{{"x264"}, {"complete", "bluray"}, {"web", "dl"}}, defs[0].Tags)

	require.NoError(t, os.WriteFile(path, []byte("qualities:\n  - label: nameless\n"), 0644))
	_, err = LoadDefinitions(path)
	assert.Error(t, err)
}
