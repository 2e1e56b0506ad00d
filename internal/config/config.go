package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Renamer
	FromFolder        string
	ToFolder          string
	FolderName        string
	FileName          string
	NFOName           string
	TrailerName       string
	Separator         string
	FolderSeparator   string
	ReplaceDoubles    bool
	DefaultFileAction string // action for non-torrent downloads (default: move)
	FileAction        string // action for torrent downloads (default: link)
	Unrar             bool
	UnrarCleanup      bool
	UnrarModifyDate   bool
	Cleanup           bool // delete emptied source folders
	NextOnFailed      bool
	IgnoredInPath     []string
	FilePermission    os.FileMode
	FolderPermission  os.FileMode
	Watch             bool

	// Scheduling
	RunEveryMinutes int // check_snatched interval (default: 1)
	ForceEveryHours int // forced full scan interval (default: 2)

	// Scanner
	FileChangeWindow time.Duration // groups touched within this window are deferred (default: 60s)
	MissingGrace     time.Duration // missing releases become ignored after this (default: 7 days)
	MaxWorkers       int
	FFProbePath      string

	// qBittorrent
	QBittorrentHost           string
	QBittorrentUsername       string
	QBittorrentPassword       string
	QBittorrentRemoveComplete bool
	QBittorrentDeleteFiles    bool

	// TorBox
	TorBoxAPIKey string

	// Trakt
	TraktClientID string

	// Newznab
	NewznabURL string
	NewznabKey string

	// Server
	ServerPort string

	// Paths
	DatabaseFile  string // $CONFIG_DIR/gomovarr.db
	QualitiesFile string // $CONFIG_DIR/qualities.yaml
	IgnoreFile    string // $CONFIG_DIR/ignore.txt

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()

	configDir, err := resolveConfigDir(viper.GetString("CONFIG_DIR"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	fileMode, err := parseMode(viper.GetString("RENAMER_FILE_PERMISSION"))
	if err != nil {
		return nil, fmt.Errorf("invalid RENAMER_FILE_PERMISSION: %w", err)
	}
	folderMode, err := parseMode(viper.GetString("RENAMER_FOLDER_PERMISSION"))
	if err != nil {
		return nil, fmt.Errorf("invalid RENAMER_FOLDER_PERMISSION: %w", err)
	}

	config := &Config{
		// Renamer
		FromFolder:        viper.GetString("RENAMER_FROM"),
		ToFolder:          viper.GetString("RENAMER_TO"),
		FolderName:        viper.GetString("RENAMER_FOLDER_NAME"),
		FileName:          viper.GetString("RENAMER_FILE_NAME"),
		NFOName:           viper.GetString("RENAMER_NFO_NAME"),
		TrailerName:       viper.GetString("RENAMER_TRAILER_NAME"),
		Separator:         viper.GetString("RENAMER_SEPARATOR"),
		FolderSeparator:   viper.GetString("RENAMER_FOLDER_SEPARATOR"),
		ReplaceDoubles:    viper.GetBool("RENAMER_REPLACE_DOUBLES"),
		DefaultFileAction: viper.GetString("RENAMER_DEFAULT_FILE_ACTION"),
		FileAction:        viper.GetString("RENAMER_FILE_ACTION"),
		Unrar:             viper.GetBool("RENAMER_UNRAR"),
		UnrarCleanup:      viper.GetBool("RENAMER_UNRAR_CLEANUP"),
		UnrarModifyDate:   viper.GetBool("RENAMER_UNRAR_MODIFY_DATE"),
		Cleanup:           viper.GetBool("RENAMER_CLEANUP"),
		NextOnFailed:      viper.GetBool("RENAMER_NEXT_ON_FAILED"),
		IgnoredInPath:     splitList(viper.GetString("RENAMER_IGNORED_IN_PATH")),
		FilePermission:    fileMode,
		FolderPermission:  folderMode,
		Watch:             viper.GetBool("RENAMER_WATCH"),

		// Scheduling
		RunEveryMinutes: viper.GetInt("RENAMER_RUN_EVERY_MINUTES"),
		ForceEveryHours: viper.GetInt("RENAMER_FORCE_EVERY_HOURS"),

		// Scanner
		FileChangeWindow: viper.GetDuration("RENAMER_FILE_CHANGE_WINDOW"),
		MissingGrace:     viper.GetDuration("RENAMER_MISSING_GRACE"),
		MaxWorkers:       viper.GetInt("RENAMER_MAX_WORKERS"),
		FFProbePath:      viper.GetString("FFPROBE_PATH"),

		// qBittorrent
		QBittorrentHost:           viper.GetString("QBITTORRENT_HOST"),
		QBittorrentUsername:       viper.GetString("QBITTORRENT_USERNAME"),
		QBittorrentPassword:       viper.GetString("QBITTORRENT_PASSWORD"),
		QBittorrentRemoveComplete: viper.GetBool("QBITTORRENT_REMOVE_COMPLETE"),
		QBittorrentDeleteFiles:    viper.GetBool("QBITTORRENT_DELETE_FILES"),

		// TorBox
		TorBoxAPIKey: viper.GetString("TORBOX_API_KEY"),

		// Trakt
		TraktClientID: viper.GetString("TRAKT_CLIENT_ID"),

		// Newznab
		NewznabURL: viper.GetString("NEWZNAB_URL"),
		NewznabKey: viper.GetString("NEWZNAB_KEY"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		DatabaseFile:  filepath.Join(configDir, "gomovarr.db"),
		QualitiesFile: filepath.Join(configDir, "qualities.yaml"),
		IgnoreFile:    filepath.Join(configDir, "ignore.txt"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
		LogFile:  viper.GetString("LOG_FILE"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("RENAMER_FOLDER_NAME", "<namethe> (<year>)")
	viper.SetDefault("RENAMER_FILE_NAME", "<thename><cd>.<ext>")
	viper.SetDefault("RENAMER_NFO_NAME", "<filename>.orig.<ext>")
	viper.SetDefault("RENAMER_TRAILER_NAME", "<filename>-trailer.<ext>")
	viper.SetDefault("RENAMER_SEPARATOR", "")
	viper.SetDefault("RENAMER_FOLDER_SEPARATOR", "")
	viper.SetDefault("RENAMER_REPLACE_DOUBLES", true)
	viper.SetDefault("RENAMER_DEFAULT_FILE_ACTION", "move")
	viper.SetDefault("RENAMER_FILE_ACTION", "link")
	viper.SetDefault("RENAMER_UNRAR", false)
	viper.SetDefault("RENAMER_UNRAR_CLEANUP", false)
	viper.SetDefault("RENAMER_UNRAR_MODIFY_DATE", false)
	viper.SetDefault("RENAMER_CLEANUP", false)
	viper.SetDefault("RENAMER_NEXT_ON_FAILED", true)
	viper.SetDefault("RENAMER_RUN_EVERY_MINUTES", 1)
	viper.SetDefault("RENAMER_FORCE_EVERY_HOURS", 2)
	viper.SetDefault("RENAMER_FILE_CHANGE_WINDOW", "60s")
	viper.SetDefault("RENAMER_MISSING_GRACE", "168h")
	viper.SetDefault("RENAMER_MAX_WORKERS", 100)
	viper.SetDefault("RENAMER_FILE_PERMISSION", "0644")
	viper.SetDefault("RENAMER_FOLDER_PERMISSION", "0755")
	viper.SetDefault("RENAMER_WATCH", false)
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
}

func resolveConfigDir(configDir string) (string, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", "gomovarr"), nil
	}

	// Convert relative path to absolute path
	absPath, err := filepath.Abs(configDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
	}
	return absPath, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.FromFolder == "" {
		return fmt.Errorf("RENAMER_FROM is required")
	}
	if c.ToFolder == "" {
		return fmt.Errorf("RENAMER_TO is required")
	}
	for _, action := range []string{c.DefaultFileAction, c.FileAction} {
		switch action {
		case "move", "copy", "link", "symlink_reversed":
		default:
			return fmt.Errorf("unknown file action %q", action)
		}
	}
	if c.RunEveryMinutes <= 0 {
		return fmt.Errorf("RENAMER_RUN_EVERY_MINUTES must be positive")
	}
	if c.QBittorrentHost != "" && c.QBittorrentUsername == "" {
		return fmt.Errorf("QBITTORRENT_USERNAME is required when QBITTORRENT_HOST is set")
	}
	if (c.NewznabURL == "") != (c.NewznabKey == "") {
		return fmt.Errorf("NEWZNAB_URL and NEWZNAB_KEY must be set together")
	}
	return nil
}

// HasDownloaders reports whether at least one downloader back-end is configured
func (c *Config) HasDownloaders() bool {
	return c.QBittorrentHost != "" || c.TorBoxAPIKey != ""
}

func parseMode(value string) (os.FileMode, error) {
	var mode uint32
	if _, err := fmt.Sscanf(value, "%o", &mode); err != nil {
		return 0, err
	}
	return os.FileMode(mode), nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ":") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
