package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/gomovarr/internal/config"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		FromFolder:        t.TempDir(),
		ToFolder:          t.TempDir(),
		FolderName:        "<namethe> (<year>)",
		FileName:          "<thename><cd>.<ext>",
		DefaultFileAction: "move",
		FileAction:        "link",
		RunEveryMinutes:   1,
		MaxWorkers:        2,
		FilePermission:    0o644,
		FolderPermission:  0o755,
		NextOnFailed:      true,
		FFProbePath:       "ffprobe",
		DatabaseFile:      filepath.Join(dir, "gomovarr.db"),
		QualitiesFile:     filepath.Join(dir, "qualities.yaml"),
		IgnoreFile:        filepath.Join(dir, "ignore.txt"),
	}
}

func TestNewAppWithoutBackends(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(cfg, newTestLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.renamer)
	assert.NotNil(t, a.tracker)

	assert.True(t, a.renamer.Scan(context.Background(), renamer.Request{}))
	assert.True(t, a.tracker.CheckSnatched(context.Background()))

	counts, err := a.db.CountReleasesByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestNewAppWithBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.QBittorrentHost = "http://127.0.0.1:1"
	cfg.QBittorrentUsername = "admin"
	cfg.TorBoxAPIKey = "key"
	cfg.TraktClientID = "client"
	cfg.NewznabURL = "http://127.0.0.1:1"
	cfg.NewznabKey = "key"

	a, err := newApp(cfg, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestNewAppBadQualitiesFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.QualitiesFile, []byte("qualities: []\n"), 0o644))

	_, err := newApp(cfg, newTestLogger())
	assert.Error(t, err)

	// the database was released
	db, err := models.NewDatabase(cfg.DatabaseFile)
	require.NoError(t, err)
	db.Close()
}

func TestCommands(t *testing.T) {
	cmd := newRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["scan"])
	assert.True(t, names["check"])
}

func TestScanCommand(t *testing.T) {
	viper.Reset()
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("RENAMER_FROM", t.TempDir())
	t.Setenv("RENAMER_TO", t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"scan"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	assert.NoError(t, cmd.ExecuteContext(context.Background()))
}
