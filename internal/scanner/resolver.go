package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/amaumene/gomovarr/internal/matcher"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrNoMedia is returned when no catalog entry could be found for a group
var ErrNoMedia = errors.New("no media found")

// Catalog resolves catalog identifiers and title searches to movies
type Catalog interface {
	LookupByID(ctx context.Context, imdbID string) (*models.Movie, error)
	CreateStub(ctx context.Context, imdbID string) (*models.Movie, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Movie, error)
}

// MediaResolver links groups to catalog entries
type MediaResolver struct {
	catalog Catalog
	ids     *IdentifierBuilder
	logger  *logrus.Logger
}

// NewMediaResolver creates a resolver backed by catalog
func NewMediaResolver(catalog Catalog, ids *IdentifierBuilder, logger *logrus.Logger) *MediaResolver {
	return &MediaResolver{
		catalog: catalog,
		ids:     ids,
		logger:  logger,
	}
}

// Resolve sets the group's IMDb id and media. The id is taken, in order,
// from the download, a .cp() tag, an NFO, any file name, and finally a
// title and year search.
func (r *MediaResolver) Resolve(ctx context.Context, group *Group, download *models.ReleaseDownload) error {
	imdbID := r.findIMDBID(ctx, group, download)
	if imdbID == "" {
		r.logger.WithFields(logrus.Fields{
			"identifiers": group.Identifiers,
		}).Error("No imdb_id found. Add a NFO file with IMDB id or add the year to the filename")
		return ErrNoMedia
	}
	group.IMDBId = imdbID

	movie, err := r.catalog.LookupByID(ctx, imdbID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		r.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Catalog lookup failed, creating stub")
	}
	if movie == nil {
		movie, err = r.catalog.CreateStub(ctx, imdbID)
		if err != nil {
			return fmt.Errorf("failed to add %s to catalog: %w", imdbID, err)
		}
	}
	group.Media = movie
	return nil
}

func (r *MediaResolver) findIMDBID(ctx context.Context, group *Group, download *models.ReleaseDownload) string {
	if download != nil && download.IMDBId != "" {
		return download.IMDBId
	}

	files := group.MovieFiles()
	for _, f := range files {
		if id := r.ids.CPTag(f); id != "" {
			r.logger.WithFields(logrus.Fields{"imdb_id": id, "file": filepath.Base(f)}).Debug("Found movie via CP tag")
			return id
		}
	}

	for _, nfo := range group.Files[CategoryNFO] {
		id, err := utils.GetIMDBIDFromFile(nfo)
		if err != nil {
			r.logger.WithError(err).WithField("file", nfo).Debug("Failed reading NFO")
			continue
		}
		if id != "" {
			r.logger.WithFields(logrus.Fields{"imdb_id": id, "file": filepath.Base(nfo)}).Debug("Found movie via NFO file")
			return id
		}
	}

	for _, f := range group.AllFiles() {
		if id := utils.GetIMDBID(f); id != "" {
			r.logger.WithFields(logrus.Fields{"imdb_id": id, "file": filepath.Base(f)}).Debug("Found movie via imdb id in filename")
			return id
		}
	}

	return r.search(ctx, group, files)
}

// search tries each identifier as a title and year query
func (r *MediaResolver) search(ctx context.Context, group *Group, files []string) string {
	fileName := ""
	if !group.IsDVD && len(files) > 0 {
		fileName = files[0]
	}

	for _, identifier := range group.Identifiers {
		if len(identifier) <= 2 {
			continue
		}
		if ctx.Err() != nil {
			return ""
		}

		guess := GuessNameYear(identifier, fileName)
		candidates := []NameYear{guess}
		if guess.Other != nil && guess.Other.Valid() && guess.Other.Query() != guess.Query() {
			candidates = append(candidates, *guess.Other)
		}

		for _, candidate := range candidates {
			if !candidate.Valid() {
				continue
			}
			if id := r.searchOne(ctx, candidate); id != "" {
				r.logger.WithFields(logrus.Fields{"imdb_id": id, "query": candidate.Query()}).Debug("Found movie via search")
				return id
			}
		}
	}
	return ""
}

func (r *MediaResolver) searchOne(ctx context.Context, guess NameYear) string {
	hits, err := r.catalog.Search(ctx, guess.Query(), 1)
	if err != nil {
		r.logger.WithError(err).WithField("query", guess.Query()).Warn("Catalog search failed")
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	hit := hits[0]
	if hit.IMDBId == "" {
		return ""
	}
	for _, title := range append([]string{hit.Title}, hit.Titles...) {
		if matcher.Matches(guess.Name, title) {
			return hit.IMDBId
		}
	}
	r.logger.WithFields(logrus.Fields{
		"query": guess.Query(),
		"title": hit.Title,
	}).Debug("Search result does not match release name")
	return ""
}
