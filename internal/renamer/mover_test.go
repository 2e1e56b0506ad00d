package renamer

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestMover() *Mover {
	return NewMover(0o644, 0o755, newTestLogger())
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, ActionMove, ParseAction("move"))
	assert.Equal(t, ActionLink, ParseAction("link"))
	assert.Equal(t, ActionSymlinkReversed, ParseAction("symlink_reversed"))
	assert.Equal(t, ActionMove, ParseAction("bogus"))
	assert.False(t, ActionMove.KeepsSource())
	assert.True(t, ActionCopy.KeepsSource())
}

func TestMoveRenamesFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "src", "movie.mkv"), "data")
	dst := filepath.Join(dir, "dst", "Movie.mkv")
	require.NoError(t, newTestMover().MakeDir(filepath.Dir(dst)))

	require.NoError(t, newTestMover().Move(src, dst, ActionMove))

	assert.NoFileExists(t, src)
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestMoveCopyKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "movie.mkv"), "data")
	old := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(src, old, old))
	dst := filepath.Join(dir, "Movie.mkv")

	require.NoError(t, newTestMover().Move(src, dst, ActionCopy))

	assert.FileExists(t, src)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestMoveLinkHardlinks(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "movie.mkv"), "data")
	dst := filepath.Join(dir, "Movie.mkv")

	require.NoError(t, newTestMover().Move(src, dst, ActionLink))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestMoveSymlinkReversed(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "movie.mkv"), "data")
	dst := filepath.Join(dir, "Movie.mkv")

	require.NoError(t, newTestMover().Move(src, dst, ActionSymlinkReversed))

	target, err := os.Readlink(src)
	require.NoError(t, err)
	assert.Equal(t, dst, target)

	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestMoveRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "movie.mkv"), "new")
	dst := writeFile(t, filepath.Join(dir, "Movie.mkv"), "old")

	for _, action := range []Action{ActionMove, ActionCopy, ActionLink, ActionSymlinkReversed} {
		err := newTestMover().Move(src, dst, action)
		assert.ErrorIs(t, err, ErrDestinationExists, action)
	}

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))
	assert.FileExists(t, src)
}

func TestMoveMissingSource(t *testing.T) {
	dir := t.TempDir()

	err := newTestMover().Move(filepath.Join(dir, "gone.mkv"), filepath.Join(dir, "Movie.mkv"), ActionMove)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "Movie.mkv"))
}

func TestMoveWarnsWhenPermissionsFail(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	m := NewMover(0o644, 0o755, logger)
	dir := t.TempDir()
	// a dangling symlink moves fine but cannot be chmodded
	src := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.mkv"), src))
	dst := filepath.Join(dir, "library", "movie.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	require.NoError(t, m.Move(src, dst, ActionMove))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Failed setting permissions for file", entry.Message)
	assert.Contains(t, entry.Data, logrus.ErrorKey)
}
