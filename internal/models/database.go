package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Movie operations

// CreateMovie creates a new movie record
func (db *Database) CreateMovie(movie *Movie) error {
	movie.CreatedAt = time.Now()
	movie.UpdatedAt = time.Now()
	if movie.Status == "" {
		movie.Status = MovieStatusActive
	}
	return db.store.Insert(bolthold.NextSequence(), movie)
}

// UpdateMovie updates an existing movie record
func (db *Database) UpdateMovie(movie *Movie) error {
	movie.UpdatedAt = time.Now()
	return db.store.Update(movie.ID, movie)
}

// GetMovieByID retrieves a movie by ID
func (db *Database) GetMovieByID(id uint64) (*Movie, error) {
	var movie Movie
	err := db.store.Get(id, &movie)
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetMovieByIMDBID retrieves a movie by IMDb id
func (db *Database) GetMovieByIMDBID(imdbID string) (*Movie, error) {
	var movie Movie
	err := db.store.FindOne(&movie, bolthold.Where("IMDBId").Eq(imdbID))
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetAllMovies retrieves all movies
func (db *Database) GetAllMovies() ([]*Movie, error) {
	var movies []*Movie
	err := db.store.Find(&movies, nil)
	return movies, err
}

// MarkMovieDone sets a movie's status to done
func (db *Database) MarkMovieDone(id uint64) error {
	movie, err := db.GetMovieByID(id)
	if err != nil {
		return err
	}
	now := time.Now()
	movie.Status = MovieStatusDone
	movie.DoneAt = &now
	return db.UpdateMovie(movie)
}

// Release operations

// CreateRelease creates a new release record
func (db *Database) CreateRelease(release *Release) error {
	release.CreatedAt = time.Now()
	release.UpdatedAt = time.Now()
	release.DownloadKey = downloadKey(release)
	return db.store.Insert(bolthold.NextSequence(), release)
}

// UpdateRelease updates an existing release record
func (db *Database) UpdateRelease(release *Release) error {
	release.UpdatedAt = time.Now()
	release.DownloadKey = downloadKey(release)
	return db.store.Update(release.ID, release)
}

// GetReleaseByID retrieves a release by ID
func (db *Database) GetReleaseByID(id uint64) (*Release, error) {
	var release Release
	err := db.store.Get(id, &release)
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// GetReleasesWithStatus retrieves all releases whose status is one of statuses
func (db *Database) GetReleasesWithStatus(statuses ...ReleaseStatus) ([]*Release, error) {
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = s
	}

	var releases []*Release
	err := db.store.Find(&releases, bolthold.Where("Status").In(values...))
	return releases, err
}

// GetReleasesByMovieID retrieves all releases of a movie
func (db *Database) GetReleasesByMovieID(movieID uint64) ([]*Release, error) {
	var releases []*Release
	err := db.store.Find(&releases, bolthold.Where("MovieID").Eq(movieID))
	return releases, err
}

// GetAllReleases retrieves all releases
func (db *Database) GetAllReleases() ([]*Release, error) {
	var releases []*Release
	err := db.store.Find(&releases, nil)
	return releases, err
}

// GetReleaseByDownload retrieves the release a downloader item belongs to
func (db *Database) GetReleaseByDownload(downloader, id string) (*Release, error) {
	key := DownloadKeyFor(downloader, id)
	if key == "" {
		return nil, ErrNotFound
	}

	var release Release
	err := db.store.FindOne(&release, bolthold.Where("DownloadKey").Eq(key))
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// UpdateReleaseStatus sets a release's status and stamps the edit time
func (db *Database) UpdateReleaseStatus(id uint64, status ReleaseStatus) error {
	release, err := db.GetReleaseByID(id)
	if err != nil {
		return err
	}
	release.Status = status
	return db.UpdateRelease(release)
}

// MarkProcessComplete stamps the release behind a finished download as processed
func (db *Database) MarkProcessComplete(downloader, id string) error {
	release, err := db.GetReleaseByDownload(downloader, id)
	if err != nil {
		return err
	}
	now := time.Now()
	release.ProcessCompletedAt = &now
	return db.UpdateRelease(release)
}

// CountReleasesByStatus returns the number of releases per status
func (db *Database) CountReleasesByStatus() (map[ReleaseStatus]int, error) {
	releases, err := db.GetAllReleases()
	if err != nil {
		return nil, err
	}

	counts := make(map[ReleaseStatus]int)
	for _, release := range releases {
		counts[release.Status]++
	}
	return counts, nil
}

func downloadKey(release *Release) string {
	if release.DownloadInfo == nil {
		return ""
	}
	return DownloadKeyFor(release.DownloadInfo.Downloader, release.DownloadInfo.ID)
}
