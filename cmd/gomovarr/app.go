package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/amaumene/gomovarr/internal/config"
	"github.com/amaumene/gomovarr/internal/controllers"
	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/amaumene/gomovarr/internal/scanner"
	"github.com/amaumene/gomovarr/internal/services/catalog"
	"github.com/amaumene/gomovarr/internal/services/downloader"
	"github.com/amaumene/gomovarr/internal/services/newznab"
	"github.com/amaumene/gomovarr/internal/services/qbittorrent"
	"github.com/amaumene/gomovarr/internal/services/torbox"
	"github.com/amaumene/gomovarr/internal/services/trakt"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// watchSettle is added to the change window before a watcher-triggered scan
const watchSettle = 5 * time.Second

type app struct {
	db       *models.Database
	renamer  *renamer.Renamer
	tracker  *controllers.ReleaseStatusTracker
	registry *prometheus.Registry
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// Database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")

	a, err := wire(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, db *models.Database, logger *logrus.Logger) (*app, error) {
	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// Qualities and ignore list
	defs, err := quality.LoadDefinitions(cfg.QualitiesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load qualities: %w", err)
	}
	scorer := quality.NewScorer(defs, logger)

	ignore, err := utils.LoadIgnoreList(cfg.IgnoreFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ignore list, continuing without it")
		ignore = utils.NewIgnoreList()
	}
	ignore.Add(cfg.IgnoredInPath...)

	// Catalog
	var searcher catalog.Searcher
	if cfg.TraktClientID != "" {
		traktClient, err := trakt.NewClient(cfg.TraktClientID, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Trakt client: %w", err)
		}
		searcher = traktClient
		logger.Info("Trakt client initialized")
	} else {
		logger.Warn("TRAKT_CLIENT_ID not set, movies can only be identified by IMDb id")
	}
	movies := catalog.NewService(db, searcher, logger)

	// Scanner
	classifier := scanner.NewClassifier(ignore, logger)
	ids := scanner.NewIdentifierBuilder()
	folderScanner := scanner.NewFolderScanner(
		scanner.Settings{
			FileChangeWindow: cfg.FileChangeWindow,
			MaxWorkers:       cfg.MaxWorkers,
		},
		classifier,
		ids,
		scorer,
		scanner.NewMetadataExtractor(classifier, scanner.NewFFProbe(cfg.FFProbePath), scorer, logger),
		scanner.NewMediaResolver(movies, ids, logger),
		logger,
	)

	// Renamer
	tagger := renamer.NewTagger(logger)
	mover := renamer.NewMover(cfg.FilePermission, cfg.FolderPermission, logger)
	extractor := renamer.NewExtractor(
		renamer.ExtractorSettings{
			FromFolder:       cfg.FromFolder,
			ModifyDate:       cfg.UnrarModifyDate,
			FileChangeWindow: cfg.FileChangeWindow,
		},
		renamer.NewRarUnpacker(),
		tagger,
		mover,
		m,
		logger,
	)
	ren := renamer.NewRenamer(
		renamer.Settings{
			FromFolder:        cfg.FromFolder,
			ToFolder:          cfg.ToFolder,
			FolderName:        cfg.FolderName,
			FileName:          cfg.FileName,
			NFOName:           cfg.NFOName,
			TrailerName:       cfg.TrailerName,
			DefaultFileAction: renamer.ParseAction(cfg.DefaultFileAction),
			FileAction:        renamer.ParseAction(cfg.FileAction),
			Unrar:             cfg.Unrar,
			UnrarCleanup:      cfg.UnrarCleanup,
			Cleanup:           cfg.Cleanup,
		},
		folderScanner,
		classifier,
		renamer.NewNamer(cfg.Separator, cfg.FolderSeparator, cfg.ReplaceDoubles),
		mover,
		tagger,
		extractor,
		db,
		m,
		logger,
	)

	// Downloaders
	var clients []downloader.Client
	if cfg.QBittorrentHost != "" {
		clients = append(clients, qbittorrent.NewClient(qbittorrent.Settings{
			Host:           cfg.QBittorrentHost,
			Username:       cfg.QBittorrentUsername,
			Password:       cfg.QBittorrentPassword,
			RemoveComplete: cfg.QBittorrentRemoveComplete,
			DeleteFiles:    cfg.QBittorrentDeleteFiles,
		}, logger))
		logger.Info("qBittorrent client initialized")
	}

	var torboxClient *torbox.Client
	if cfg.TorBoxAPIKey != "" {
		torboxClient, err = torbox.NewClient(cfg.TorBoxAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TorBox client: %w", err)
		}
		clients = append(clients, torboxClient)
		logger.Info("TorBox client initialized")
	}
	if !cfg.HasDownloaders() {
		logger.Warn("No downloader configured, only folder scans will rename movies")
	}

	// Next release on failure
	var next controllers.NextReleaser
	if cfg.NextOnFailed && cfg.NewznabURL != "" && torboxClient != nil {
		newznabClient, err := newznab.NewClient(cfg.NewznabURL, cfg.NewznabKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Newznab client: %w", err)
		}
		next = controllers.NewNextReleaseController(db, newznabClient, torboxClient, scorer, logger)
		logger.Info("Newznab client initialized")
	}

	tracker := controllers.NewReleaseStatusTracker(
		controllers.TrackerSettings{
			FromFolder:   cfg.FromFolder,
			FileAction:   renamer.ParseAction(cfg.FileAction),
			NextOnFailed: cfg.NextOnFailed,
			MissingGrace: cfg.MissingGrace,
		},
		db,
		downloader.NewMulti(logger, clients...),
		ren,
		tagger,
		next,
		m,
		logger,
	)
	logger.Info("Controllers initialized")

	return &app{
		db:       db,
		renamer:  ren,
		tracker:  tracker,
		registry: registry,
	}, nil
}

// Close releases the database
func (a *app) Close() error {
	return a.db.Close()
}
