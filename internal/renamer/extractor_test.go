package renamer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnpacker struct {
	mu      sync.Mutex
	members map[string][]string
	fail    map[string]bool
	calls   []string
}

func (u *fakeUnpacker) Unpack(ctx context.Context, archive, dest string) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, filepath.Base(archive))
	if u.fail[filepath.Base(archive)] {
		return nil, errors.New("crc mismatch")
	}

	var out []string
	for _, name := range u.members[filepath.Base(archive)] {
		p := filepath.Join(dest, name)
		if err := os.WriteFile(p, []byte("member"), 0o644); err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newTestExtractor(from string, unpacker Unpacker, m *metrics.Metrics) *Extractor {
	logger := newTestLogger()
	return NewExtractor(
		ExtractorSettings{FromFolder: from, FileChangeWindow: time.Minute},
		unpacker,
		NewTagger(logger),
		newTestMover(),
		m,
		logger,
	)
}

func age(t *testing.T, paths ...string) {
	t.Helper()
	when := time.Now().Add(-time.Hour)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, when, when))
	}
}

func TestFirstVolume(t *testing.T) {
	tests := []struct {
		name  string
		first bool
		base  string
	}{
		{"dl/Movie.rar", true, "dl/Movie"},
		{"dl/Movie.RAR", true, "dl/Movie"},
		{"dl/Movie.part1.rar", true, "dl/Movie"},
		{"dl/Movie.part01.rar", true, "dl/Movie"},
		{"dl/Movie.part001.rar", true, "dl/Movie"},
		{"dl/Movie.part02.rar", false, ""},
		{"dl/Movie.part10.rar", false, ""},
		{"dl/Movie.r00", false, ""},
		{"dl/Movie.mkv", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arc, ok := firstVolume(tt.name)
			assert.Equal(t, tt.first, ok)
			assert.Equal(t, tt.base, arc.base)
		})
	}
}

func TestIsContinuation(t *testing.T) {
	assert.True(t, isContinuation("dl/Movie.part02.rar", "dl/Movie"))
	assert.True(t, isContinuation("dl/Movie.r00", "dl/Movie"))
	assert.True(t, isContinuation("dl/Movie.s01", "dl/Movie"))
	assert.False(t, isContinuation("dl/Movie.part01.rar", "dl/Movie"))
	assert.False(t, isContinuation("dl/Movie.nfo", "dl/Movie"))
	assert.False(t, isContinuation("dl/Other.r00", "dl/Movie"))
	assert.False(t, isContinuation("dl/Movie.Extended.r00", "dl/Movie"))
}

func TestExtractTagsArchives(t *testing.T) {
	from := t.TempDir()
	first := writeFile(t, filepath.Join(from, "Movie", "movie.part1.rar"), "rar")
	second := writeFile(t, filepath.Join(from, "Movie", "movie.part2.rar"), "rar")
	broken := writeFile(t, filepath.Join(from, "Broken", "broken.rar"), "rar")
	age(t, first, second, broken)

	unpacker := &fakeUnpacker{
		members: map[string][]string{"movie.part1.rar": {"movie.mkv"}},
		fail:    map[string]bool{"broken.rar": true},
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	e := newTestExtractor(from, unpacker, m)
	e.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	result := e.Extract(context.Background(), ExtractRequest{})

	assert.Equal(t, []string{filepath.Join(from, "Movie", "movie.mkv")}, result.Extracted)
	assert.Empty(t, result.Files)
	assert.Empty(t, result.Folder)
	assert.FileExists(t, MarkerPath(first, TagExtracted))
	assert.FileExists(t, second)
	assert.NoFileExists(t, MarkerPath(broken, TagExtracted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("error")))

	// tagged archives are skipped, failed ones retried
	e.Extract(context.Background(), ExtractRequest{})
	assert.ElementsMatch(t, []string{"movie.part1.rar", "broken.rar", "broken.rar"}, unpacker.calls)
}

func TestExtractSkipsChangingArchives(t *testing.T) {
	from := t.TempDir()
	archive := writeFile(t, filepath.Join(from, "Movie", "movie.rar"), "rar")

	unpacker := &fakeUnpacker{members: map[string][]string{"movie.rar": {"movie.mkv"}}}
	e := newTestExtractor(from, unpacker, nil)
	result := e.Extract(context.Background(), ExtractRequest{})

	assert.Empty(t, result.Extracted)
	assert.Empty(t, unpacker.calls)

	if runtime.GOOS == "linux" {
		// an old mtime alone does not hide a freshly written archive
		age(t, archive)
		result = e.Extract(context.Background(), ExtractRequest{})
		assert.Empty(t, result.Extracted)
		assert.Empty(t, unpacker.calls)
	}

	e.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	result = e.Extract(context.Background(), ExtractRequest{})
	assert.Len(t, result.Extracted, 1)
}

func TestExtractCleanupRemovesVolumes(t *testing.T) {
	from := t.TempDir()
	first := writeFile(t, filepath.Join(from, "Movie", "movie.rar"), "rar")
	rest := writeFile(t, filepath.Join(from, "Movie", "movie.r00"), "rar")
	nfo := writeFile(t, filepath.Join(from, "Movie", "movie.nfo"), "nfo")
	age(t, first, rest, nfo)

	unpacker := &fakeUnpacker{members: map[string][]string{"movie.rar": {"movie.mkv"}}}
	mediaFolder := filepath.Join(from, "Movie")
	result := newTestExtractor(from, unpacker, nil).Extract(context.Background(), ExtractRequest{
		Folder:      from,
		MediaFolder: mediaFolder,
		Files:       []string{first, rest, nfo},
		Cleanup:     true,
	})

	assert.NoFileExists(t, first)
	assert.NoFileExists(t, rest)
	assert.NoFileExists(t, MarkerPath(first, TagExtracted))
	assert.Equal(t, mediaFolder, result.MediaFolder)
	assert.Equal(t, from, result.Folder)
	assert.ElementsMatch(t, []string{nfo, filepath.Join(mediaFolder, "movie.mkv")}, result.Files)
}

func TestExtractRelocatesLeftovers(t *testing.T) {
	from := t.TempDir()
	outside := t.TempDir()
	mediaFolder := filepath.Join(outside, "Movie")
	archive := writeFile(t, filepath.Join(mediaFolder, "movie.rar"), "rar")
	nfo := writeFile(t, filepath.Join(mediaFolder, "movie.nfo"), "nfo")

	unpacker := &fakeUnpacker{members: map[string][]string{"movie.rar": {"movie.mkv"}}}
	result := newTestExtractor(from, unpacker, nil).Extract(context.Background(), ExtractRequest{
		Folder:         outside,
		MediaFolder:    mediaFolder,
		Files:          []string{archive, nfo},
		LeftoverAction: ActionCopy,
	})

	target := filepath.Join(from, "Movie")
	assert.Equal(t, from, result.Folder)
	assert.Equal(t, target, result.MediaFolder)
	assert.ElementsMatch(t, []string{
		filepath.Join(target, "movie.mkv"),
		filepath.Join(target, "movie.nfo"),
	}, result.Files)
	assert.FileExists(t, nfo)
	assert.FileExists(t, filepath.Join(target, "movie.nfo"))
	assert.FileExists(t, MarkerPath(archive, TagExtracted))
}
