package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amaumene/gomovarr/internal/api/handlers"
	"github.com/amaumene/gomovarr/internal/metrics"
	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	counts map[models.ReleaseStatus]int
	err    error
}

func (f *fakeStore) CountReleasesByStatus() (map[models.ReleaseStatus]int, error) {
	return f.counts, f.err
}

type fakeRenamer struct {
	busy     bool
	requests []renamer.Request
}

func (f *fakeRenamer) ScanAsync(_ context.Context, req renamer.Request) bool {
	if f.busy {
		return false
	}
	f.requests = append(f.requests, req)
	return true
}

func (f *fakeRenamer) Running() (bool, time.Time) {
	if f.busy {
		return true, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	return false, time.Time{}
}

type fakeTracker struct {
	checks int
}

func (f *fakeTracker) CheckSnatchedAsync(context.Context) bool {
	f.checks++
	return true
}

func (f *fakeTracker) Running() (bool, time.Time) {
	return false, time.Time{}
}

type routerFixture struct {
	store   *fakeStore
	renamer *fakeRenamer
	tracker *fakeTracker
	router  http.Handler
}

func newRouterFixture() *routerFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.Transition("done")

	f := &routerFixture{
		store: &fakeStore{counts: map[models.ReleaseStatus]int{
			models.ReleaseStatusSnatched: 2,
			models.ReleaseStatusDone:     3,
		}},
		renamer: &fakeRenamer{},
		tracker: &fakeTracker{},
	}
	f.router = NewRouter(Deps{
		Store:    f.store,
		Renamer:  f.renamer,
		Tracker:  f.tracker,
		Gatherer: reg,
	}, logger)
	return f
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestHealth(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = f.do(http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newRouterFixture()
	f.renamer.busy = true

	rec := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.TotalReleases)
	assert.Equal(t, 2, resp.Releases["snatched"])
	assert.Equal(t, 3, resp.Releases["done"])
	assert.True(t, resp.Renamer.Running)
	require.NotNil(t, resp.Renamer.Since)
	assert.False(t, resp.Tracker.Running)
	assert.Nil(t, resp.Tracker.Since)
}

func TestStatusStoreError(t *testing.T) {
	f := newRouterFixture()
	f.store.err = errors.New("boom")

	rec := f.do(http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScanWithoutBody(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/scan", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"triggered":true}`, rec.Body.String())
	require.Len(t, f.renamer.requests, 1)
	assert.Equal(t, renamer.Request{}, f.renamer.requests[0])
}

func TestScanForDownload(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/scan", `{
		"folder": "/downloads",
		"media_folder": "/downloads/Movie.2020",
		"downloader": "qbittorrent",
		"download_id": "abc",
		"status": "completed"
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.renamer.requests, 1)

	req := f.renamer.requests[0]
	assert.Equal(t, "/downloads", req.BaseFolder)
	assert.Equal(t, "/downloads/Movie.2020", req.MediaFolder)
	require.NotNil(t, req.Download)
	assert.Equal(t, "abc", req.Download.ID)
	assert.Equal(t, "qbittorrent", req.Download.Downloader)
	assert.Equal(t, models.DownloadStatusCompleted, req.Download.Status)
	assert.Equal(t, "/downloads/Movie.2020", req.Download.Folder)
}

func TestScanBusy(t *testing.T) {
	f := newRouterFixture()
	f.renamer.busy = true

	rec := f.do(http.MethodPost, "/scan", "{}")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"triggered":false}`, rec.Body.String())
}

func TestScanInvalidBody(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/scan", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.renamer.requests)
}

func TestCheckSnatched(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/check_snatched", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, f.tracker.checks)

	rec = f.do(http.MethodGet, "/check_snatched", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1, f.tracker.checks)
}

func TestTorBoxWebhook(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		message string
		checks  int
	}{
		{
			name:    "completed",
			title:   "Usenet Download Completed",
			message: "Your download Movie.2020.1080p has completed.",
			checks:  1,
		},
		{
			name:    "failed by hash",
			title:   "Usenet Download Failed",
			message: "The NZB with hash 5048ac7b66712696b0c2d06b3e14066a failed to download",
			checks:  1,
		},
		{
			name:    "other notification",
			title:   "Usenet Download Started",
			message: "Your download Movie.2020.1080p has started.",
			checks:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			body, err := json.Marshal(map[string]any{
				"type":      "notification",
				"timestamp": "2024-01-02T03:04:05Z",
				"data":      map[string]string{"title": tt.title, "message": tt.message},
			})
			require.NoError(t, err)

			rec := f.do(http.MethodPost, "/api/webhook/torbox", string(body))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.checks, f.tracker.checks)
		})
	}
}

func TestTorBoxWebhookInvalid(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/api/webhook/torbox", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.tracker.checks)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gomovarr_release_transitions_total")
}
