package newznab

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SearchResult represents a movie release offered by the indexer
type SearchResult struct {
	Title   string
	Link    string // NZB download URL
	GUID    string
	Size    int64 // bytes
	PubDate time.Time
}

// SearchMovie searches for releases of a movie by IMDb id
func (c *Client) SearchMovie(ctx context.Context, imdbID string) ([]SearchResult, error) {
	c.logger.WithField("imdb_id", imdbID).Debug("Searching for movie by IMDB ID")

	items, err := c.search(ctx, "movie", url.Values{
		"imdbid": {strings.TrimPrefix(imdbID, "tt")},
	})
	if err != nil {
		return nil, fmt.Errorf("movie search failed: %w", err)
	}
	return convertResults(items), nil
}

// convertResults converts Newznab Items to SearchResults. Items without a
// download URL are dropped.
func convertResults(items []Item) []SearchResult {
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		if item.Enclosure.URL == "" {
			continue
		}
		result := SearchResult{
			Title: item.Title,
			Link:  item.Enclosure.URL,
			GUID:  item.GUID,
			Size:  GetAttributeInt64(item, "size"),
		}
		if result.Size == 0 {
			result.Size = item.Enclosure.Length
		}
		if pub, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			result.PubDate = pub
		}
		results = append(results, result)
	}
	return results
}
