package torbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.torbox.app/v1/api"

// Client talks to the TorBox usenet API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a new TorBox client
func NewClient(apiKey string, logger *logrus.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TorBox API key is required")
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = time.Minute
			return b
		},
		logger: logger,
	}, nil
}

// do sends the request built by newReq, retrying network errors and 5xx
// answers. The request is rebuilt for every attempt.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req = req.WithContext(ctx)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return backoff.Permanent(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), 3), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return body, nil
}
