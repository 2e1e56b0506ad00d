package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/models"
)

// Store persists catalog records
type Store interface {
	GetMovieByIMDBID(imdbID string) (*models.Movie, error)
	CreateMovie(movie *models.Movie) error
	UpdateMovie(movie *models.Movie) error
}

// Searcher finds movies in a remote catalog
type Searcher interface {
	SearchMovies(ctx context.Context, query string, limit int) ([]*models.Movie, error)
	LookupByIMDB(ctx context.Context, imdbID string) (*models.Movie, error)
}

// Service resolves IMDb ids against the library first and the remote
// catalog second. Remote hits are saved to the library.
type Service struct {
	store    Store
	searcher Searcher
	logger   *logrus.Logger
}

// NewService creates a catalog service. searcher may be nil, in which case
// only the library is consulted.
func NewService(store Store, searcher Searcher, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		searcher: searcher,
		logger:   logger,
	}
}

// LookupByID returns the movie with imdbID, or models.ErrNotFound
func (s *Service) LookupByID(ctx context.Context, imdbID string) (*models.Movie, error) {
	movie, err := s.store.GetMovieByIMDBID(imdbID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get movie %s: %w", imdbID, err)
	}
	if movie != nil && movie.Title != "" {
		return movie, nil
	}
	if s.searcher == nil {
		if movie != nil {
			return movie, nil
		}
		return nil, models.ErrNotFound
	}

	remote, err := s.searcher.LookupByIMDB(ctx, imdbID)
	if err != nil {
		if movie != nil {
			return movie, nil
		}
		return nil, err
	}

	if movie == nil {
		movie = &models.Movie{IMDBId: imdbID, Status: models.MovieStatusActive}
		movie.Title, movie.Year, movie.Titles = remote.Title, remote.Year, remote.Titles
		if err := s.store.CreateMovie(movie); err != nil {
			return nil, fmt.Errorf("failed to save movie %s: %w", imdbID, err)
		}
	} else {
		movie.Title, movie.Year, movie.Titles = remote.Title, remote.Year, remote.Titles
		if err := s.store.UpdateMovie(movie); err != nil {
			return nil, fmt.Errorf("failed to update movie %s: %w", imdbID, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"imdb_id": imdbID,
		"title":   movie.Title,
		"year":    movie.Year,
	}).Info("Added movie to library")
	return movie, nil
}

// CreateStub saves a movie that only carries its IMDb id
func (s *Service) CreateStub(ctx context.Context, imdbID string) (*models.Movie, error) {
	if movie, err := s.store.GetMovieByIMDBID(imdbID); err == nil {
		return movie, nil
	}

	movie := &models.Movie{IMDBId: imdbID, Status: models.MovieStatusActive}
	if err := s.store.CreateMovie(movie); err != nil {
		return nil, fmt.Errorf("failed to save movie %s: %w", imdbID, err)
	}
	s.logger.WithField("imdb_id", imdbID).Warn("Added movie without details to library")
	return movie, nil
}

// Search looks up movies by free text in the remote catalog
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.Movie, error) {
	if s.searcher == nil {
		return nil, nil
	}
	return s.searcher.SearchMovies(ctx, query, limit)
}
