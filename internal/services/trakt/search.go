package trakt

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gomovarr/internal/models"
)

// traktMovie is a movie as returned by the search endpoints
type traktMovie struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   struct {
		Trakt int    `json:"trakt"`
		Slug  string `json:"slug"`
		IMDB  string `json:"imdb"`
	} `json:"ids"`
}

type searchResult struct {
	Type  string      `json:"type"`
	Score float64     `json:"score"`
	Movie *traktMovie `json:"movie"`
}

type alias struct {
	Title   string `json:"title"`
	Country string `json:"country"`
}

// SearchMovies searches movies by free text
func (c *Client) SearchMovies(ctx context.Context, query string, limit int) ([]*models.Movie, error) {
	key := "search:" + strconv.Itoa(limit) + ":" + strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]*models.Movie), nil
	}

	params := url.Values{}
	params.Set("query", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var results []searchResult
	if err := c.doRequest(ctx, "/search/movie?"+params.Encode(), &results); err != nil {
		return nil, fmt.Errorf("failed to search movies: %w", err)
	}

	movies := toMovies(results)
	c.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(movies),
	}).Debug("Searched Trakt")
	c.cache.Set(key, movies, cache.DefaultExpiration)
	return movies, nil
}

// LookupByIMDB returns the movie behind an IMDb id, with its aliases as
// alternative titles. It returns models.ErrNotFound when Trakt has no match.
func (c *Client) LookupByIMDB(ctx context.Context, imdbID string) (*models.Movie, error) {
	key := "imdb:" + imdbID
	if cached, ok := c.cache.Get(key); ok {
		movie := *cached.(*models.Movie)
		return &movie, nil
	}

	var results []searchResult
	if err := c.doRequest(ctx, "/search/imdb/"+url.PathEscape(imdbID)+"?type=movie", &results); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", imdbID, err)
	}
	movies := toMovies(results)
	if len(movies) == 0 {
		return nil, models.ErrNotFound
	}
	movie := movies[0]

	var aliases []alias
	if err := c.doRequest(ctx, "/movies/"+url.PathEscape(imdbID)+"/aliases", &aliases); err != nil {
		c.logger.WithError(err).WithField("imdb_id", imdbID).Debug("Failed to get aliases")
	}
	for _, a := range aliases {
		if a.Title != "" && a.Title != movie.Title {
			movie.Titles = append(movie.Titles, a.Title)
		}
	}

	cached := *movie
	c.cache.Set(key, &cached, cache.DefaultExpiration)
	return movie, nil
}

func toMovies(results []searchResult) []*models.Movie {
	var movies []*models.Movie
	for _, r := range results {
		if r.Movie == nil || r.Movie.IDs.IMDB == "" {
			continue
		}
		movies = append(movies, &models.Movie{
			IMDBId: r.Movie.IDs.IMDB,
			Title:  r.Movie.Title,
			Year:   r.Movie.Year,
		})
	}
	return movies
}
