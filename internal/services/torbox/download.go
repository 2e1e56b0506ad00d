package torbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// CreateDownloadJobResponse represents the response from creating a download job
type CreateDownloadJobResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Detail  string  `json:"detail"` // e.g. "Found cached usenet download. Using cached download."
	Data    struct {
		Hash             string `json:"hash"`
		UsenetDownloadID int    `json:"usenetdownload_id"`
		AuthID           string `json:"auth_id"`
	} `json:"data"`
}

// UsenetDownloadFile represents a file within a usenet download
type UsenetDownloadFile struct {
	ID        int    `json:"id"`
	Hash      string `json:"hash"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimetype"`
	ShortName string `json:"short_name"`
}

// UsenetDownload represents a usenet download from TorBox
type UsenetDownload struct {
	ID               int                  `json:"id"`
	CreatedAt        string               `json:"created_at"`
	UpdatedAt        string               `json:"updated_at"`
	Name             string               `json:"name"`
	Hash             string               `json:"hash"`
	DownloadState    string               `json:"download_state"`
	ETA              int                  `json:"eta"`
	Progress         float64              `json:"progress"`
	Size             int64                `json:"size"`
	Files            []UsenetDownloadFile `json:"files"`
	Active           bool                 `json:"active"`
	Cached           bool                 `json:"cached"`
	DownloadPresent  bool                 `json:"download_present"`
	DownloadFinished bool                 `json:"download_finished"`
}

// UsenetListResponse represents the response from listing usenet downloads
type UsenetListResponse struct {
	Success bool             `json:"success"`
	Error   *string          `json:"error"`
	Detail  string           `json:"detail"`
	Data    []UsenetDownload `json:"data"`
}

type controlResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// CreateDownloadJob uploads an NZB and returns the usenet download id
func (c *Client) CreateDownloadJob(ctx context.Context, nzbData []byte, filename, name string) (string, *CreateDownloadJobResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(nzbData); err != nil {
		return "", nil, fmt.Errorf("failed to write NZB data: %w", err)
	}
	// name identifies the download in webhooks
	if name != "" {
		if err := writer.WriteField("name", name); err != nil {
			return "", nil, fmt.Errorf("failed to add name field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"name":     name,
		"filename": filename,
		"size_kb":  len(nzbData) / 1024,
	}).Debug("Uploading NZB file to TorBox API")

	form := buf.Bytes()
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/usenet/createusenetdownload", bytes.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", nil, err
	}

	var result CreateDownloadJobResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return "", nil, fmt.Errorf("job creation failed: %s", result.Detail)
	}

	jobID := strconv.Itoa(result.Data.UsenetDownloadID)
	c.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"detail": result.Detail,
	}).Info("Created TorBox download job")
	return jobID, &result, nil
}

// ControlUsenetDownload controls a usenet download (delete, pause, resume)
func (c *Client) ControlUsenetDownload(ctx context.Context, usenetID int, operation string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"usenet_id": usenetID,
		"operation": operation,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/usenet/controlusenetdownload", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var result controlResponse
	if err := json.Unmarshal(body, &result); err == nil && !result.Success {
		return fmt.Errorf("%s failed: %s", operation, result.Detail)
	}

	c.logger.WithFields(logrus.Fields{
		"usenet_id": usenetID,
		"operation": operation,
	}).Info("Controlled TorBox usenet download")
	return nil
}

// DeleteJob deletes a download job by ID
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	usenetID, err := strconv.Atoi(jobID)
	if err != nil {
		return fmt.Errorf("invalid job ID: %w", err)
	}
	return c.ControlUsenetDownload(ctx, usenetID, "delete")
}

// ListUsenetDownloads retrieves all usenet downloads from TorBox
func (c *Client) ListUsenetDownloads(ctx context.Context) ([]UsenetDownload, error) {
	body, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/usenet/mylist?bypass_cache=true", nil)
	})
	if err != nil {
		return nil, err
	}

	var result UsenetListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to list downloads: %s", result.Detail)
	}
	return result.Data, nil
}
