package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	calls chan renamer.Request
}

func (f *fakeScanner) ScanAsync(_ context.Context, req renamer.Request) bool {
	f.calls <- req
	return true
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startWatcher(t *testing.T, root string, scanner Scanner) {
	t.Helper()

	w, err := New(root, 50*time.Millisecond, scanner, newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give Run time to register the folders
	time.Sleep(100 * time.Millisecond)
}

func TestWatcherDebouncesChanges(t *testing.T) {
	root := t.TempDir()
	scanner := &fakeScanner{calls: make(chan renamer.Request, 10)}
	startWatcher(t, root, scanner)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "Movie.2020.mkv"), []byte("data"), 0o644))
	}

	select {
	case req := <-scanner.calls:
		assert.Equal(t, renamer.Request{}, req)
	case <-time.After(3 * time.Second):
		t.Fatal("scan was not triggered")
	}

	select {
	case <-scanner.calls:
		t.Fatal("burst of changes triggered more than one scan")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherFollowsNewFolders(t *testing.T) {
	root := t.TempDir()
	scanner := &fakeScanner{calls: make(chan renamer.Request, 10)}
	startWatcher(t, root, scanner)

	dir := filepath.Join(root, "Movie.2020")
	require.NoError(t, os.Mkdir(dir, 0o755))
	<-scanner.calls

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("data"), 0o644))

	select {
	case <-scanner.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("change in new folder was not seen")
	}
}

func TestWatcherIgnoresMarkers(t *testing.T) {
	root := t.TempDir()
	scanner := &fakeScanner{calls: make(chan renamer.Request, 10)}
	startWatcher(t, root, scanner)

	require.NoError(t, os.WriteFile(filepath.Join(root, "movie.downloading.ignore"), []byte("x"), 0o644))

	select {
	case <-scanner.calls:
		t.Fatal("marker file triggered a scan")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIgnoredName(t *testing.T) {
	assert.True(t, ignoredName("movie.renamed_already.ignore"))
	assert.True(t, ignoredName(".hidden"))
	assert.True(t, ignoredName("movie.mkv.part"))
	assert.True(t, ignoredName("movie.mkv.!qB"))
	assert.False(t, ignoredName("movie.mkv"))
}

func TestRunFailsOnMissingRoot(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), time.Second, &fakeScanner{}, newTestLogger())
	require.NoError(t, err)

	assert.Error(t, w.Run(context.Background()))
}
