package controllers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
	"github.com/amaumene/gomovarr/internal/services/newznab"
	"github.com/amaumene/gomovarr/internal/services/torbox"
	"github.com/amaumene/gomovarr/internal/utils"
)

// ErrNoCandidates is returned when the indexer has nothing left to try
var ErrNoCandidates = errors.New("no untried release found")

// Indexer searches releases of a movie
type Indexer interface {
	SearchMovie(ctx context.Context, imdbID string) ([]newznab.SearchResult, error)
	DownloadNZB(ctx context.Context, url string) ([]byte, error)
}

// NZBSender hands an NZB to a usenet downloader
type NZBSender interface {
	CreateDownloadJob(ctx context.Context, nzbData []byte, filename, name string) (string, *torbox.CreateDownloadJobResponse, error)
}

// MovieReleaseStore is the bookkeeping needed to pick and record a new release
type MovieReleaseStore interface {
	GetMovieByID(id uint64) (*models.Movie, error)
	GetReleasesByMovieID(movieID uint64) ([]*models.Release, error)
	CreateRelease(release *models.Release) error
}

type candidate struct {
	result  newznab.SearchResult
	quality *quality.Result
}

// NextReleaseController snatches the best release of a movie that was not tried yet
type NextReleaseController struct {
	store   MovieReleaseStore
	indexer Indexer
	sender  NZBSender
	scorer  *quality.Scorer
	logger  *logrus.Logger
}

// NewNextReleaseController creates a new next release controller
func NewNextReleaseController(store MovieReleaseStore, indexer Indexer, sender NZBSender, scorer *quality.Scorer, logger *logrus.Logger) *NextReleaseController {
	return &NextReleaseController{
		store:   store,
		indexer: indexer,
		sender:  sender,
		scorer:  scorer,
		logger:  logger,
	}
}

// TryNextRelease searches the indexer for movieID and sends the best
// release not tried before to the downloader
func (c *NextReleaseController) TryNextRelease(ctx context.Context, movieID uint64) error {
	movie, err := c.store.GetMovieByID(movieID)
	if err != nil {
		return fmt.Errorf("failed to get movie %d: %w", movieID, err)
	}
	if movie.Status == models.MovieStatusDone {
		c.logger.WithField("title", movie.Title).Debug("Movie already done, not trying another release")
		return nil
	}
	if movie.IMDBId == "" {
		return fmt.Errorf("movie %d has no IMDb id", movieID)
	}

	log := c.logger.WithFields(logrus.Fields{
		"imdb_id": movie.IMDBId,
		"title":   movie.Title,
	})

	releases, err := c.store.GetReleasesByMovieID(movieID)
	if err != nil {
		return fmt.Errorf("failed to get releases: %w", err)
	}
	tried := make(map[string]bool, len(releases))
	for _, rel := range releases {
		tried[utils.SimplifyString(rel.Name)] = true
	}

	results, err := c.indexer.SearchMovie(ctx, movie.IMDBId)
	if err != nil {
		return err
	}

	candidates := c.rank(results, tried)
	if len(candidates) == 0 {
		log.WithField("results", len(results)).Info("No other release found")
		return ErrNoCandidates
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.snatch(ctx, movie, cand); err != nil {
			log.WithError(err).WithField("release", cand.result.Title).Warn("Failed snatching release, trying next")
			continue
		}
		return nil
	}
	return fmt.Errorf("every candidate failed for %s", movie.IMDBId)
}

// rank drops tried and unrecognised results and orders the rest by quality
// order, score and size
func (c *NextReleaseController) rank(results []newznab.SearchResult, tried map[string]bool) []candidate {
	var candidates []candidate
	for _, r := range results {
		if tried[utils.SimplifyString(r.Title)] {
			continue
		}
		q := c.scorer.Guess([]string{r.Title}, float64(r.Size)/(1<<20), quality.Hints{})
		if q == nil {
			continue
		}
		candidates = append(candidates, candidate{result: r, quality: q})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if oa, ob := c.scorer.Order(a.quality.Identifier), c.scorer.Order(b.quality.Identifier); oa != ob {
			return oa < ob
		}
		if a.quality.Score != b.quality.Score {
			return a.quality.Score > b.quality.Score
		}
		return a.result.Size > b.result.Size
	})
	return candidates
}

func (c *NextReleaseController) snatch(ctx context.Context, movie *models.Movie, cand candidate) error {
	nzb, err := c.indexer.DownloadNZB(ctx, cand.result.Link)
	if err != nil {
		return err
	}

	name := utils.NZBName(cand.result.Title, movie.IMDBId)
	jobID, _, err := c.sender.CreateDownloadJob(ctx, nzb, name+".nzb", name)
	if err != nil {
		return err
	}

	release := &models.Release{
		MovieID:  movie.ID,
		Name:     cand.result.Title,
		Quality:  cand.quality.Identifier,
		Is3D:     cand.quality.Is3D,
		Protocol: models.ProtocolNZB,
		Link:     cand.result.Link,
		Size:     cand.result.Size,
		DownloadInfo: &models.DownloadInfo{
			Downloader:    torbox.Name,
			ID:            jobID,
			StatusSupport: true,
		},
		Status: models.ReleaseStatusSnatched,
	}
	if err := c.store.CreateRelease(release); err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"imdb_id": movie.IMDBId,
		"release": cand.result.Title,
		"quality": cand.quality.Identifier,
		"job_id":  jobID,
	}).Info("Snatched next release")
	return nil
}
