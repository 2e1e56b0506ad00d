package newznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	userAgent  = "gomovarr/1.0"
	maxNZBSize = 15 * 1024 * 1024
	maxRetries = 2
)

// Feed is the RSS document returned by the Newznab API
type Feed struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel holds the items of a feed
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item represents a single search result
type Item struct {
	Title      string      `xml:"title"`
	Link       string      `xml:"link"` // details page
	GUID       string      `xml:"guid"`
	PubDate    string      `xml:"pubDate"`
	Enclosure  Enclosure   `xml:"enclosure"`
	Attributes []Attribute `xml:"attr"`
}

// Enclosure holds the NZB download URL
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Attribute is a newznab:attr element (size, category, imdb)
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// APIError is the <error code=".." description=".."/> document indexers
// answer with instead of a feed
type APIError struct {
	Code        int    `xml:"code,attr"`
	Description string `xml:"description,attr"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("newznab error %d: %s", e.Code, e.Description)
}

// Client queries a Newznab indexer
type Client struct {
	apiURL     *url.URL
	apiKey     string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a new Newznab client. A base URL without a path gets /api.
func NewClient(baseURL, apiKey string, logger *logrus.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("newznab URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("newznab API key is required")
	}

	apiURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid newznab URL: %w", err)
	}
	if apiURL.Path == "" || apiURL.Path == "/" {
		apiURL.Path = "/api"
	}

	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger,
	}, nil
}

// search runs an API call of type searchType with extra query params
func (c *Client) search(ctx context.Context, searchType string, extra url.Values) ([]Item, error) {
	params := url.Values{}
	for k, v := range extra {
		params[k] = v
	}
	params.Set("t", searchType)
	params.Set("apikey", c.apiKey)

	u := *c.apiURL
	u.RawQuery = params.Encode()

	c.logger.WithFields(logrus.Fields{
		"search_type": searchType,
		"params":      extra.Encode(),
	}).Debug("Performing Newznab search")

	data, err := c.get(ctx, u.String(), 0)
	if err != nil {
		return nil, err
	}

	feed, err := parseFeed(data)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("count", len(feed.Channel.Items)).Debug("Newznab search completed")
	return feed.Channel.Items, nil
}

func parseFeed(data []byte) (*Feed, error) {
	var feed Feed
	err := xml.Unmarshal(data, &feed)
	if err == nil {
		return &feed, nil
	}

	var apiErr APIError
	if xml.Unmarshal(data, &apiErr) == nil && apiErr.Description != "" {
		return nil, &apiErr
	}
	return nil, fmt.Errorf("failed to parse XML response: %w", err)
}

// get fetches rawURL, retrying network errors and 5xx answers. limit caps
// the body size when positive.
func (c *Client) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("newznab request failed: %w", err)
		}
		defer resp.Body.Close()

		var reader io.Reader = resp.Body
		if limit > 0 {
			reader = io.LimitReader(resp.Body, limit)
		}
		body, err = io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		err = fmt.Errorf("newznab returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= http.StatusInternalServerError {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithField("retry_in", wait).Warn("Newznab request failed, retrying")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// GetAttributeValue extracts an attribute value by name from an Item
func GetAttributeValue(item Item, attrName string) string {
	for _, attr := range item.Attributes {
		if attr.Name == attrName {
			return attr.Value
		}
	}
	return ""
}

// GetAttributeInt64 extracts an attribute value as int64
func GetAttributeInt64(item Item, attrName string) int64 {
	value, err := strconv.ParseInt(GetAttributeValue(item, attrName), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// DownloadNZB downloads the NZB file behind an enclosure URL
func (c *Client) DownloadNZB(ctx context.Context, enclosureURL string) ([]byte, error) {
	c.logger.WithField("url", enclosureURL).Debug("Downloading NZB file")

	data, err := c.get(ctx, enclosureURL, maxNZBSize)
	if err != nil {
		return nil, fmt.Errorf("failed to download NZB: %w", err)
	}

	c.logger.WithField("size_kb", len(data)/1024).Debug("NZB file downloaded")
	return data, nil
}
