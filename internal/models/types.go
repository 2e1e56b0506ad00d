package models

import (
	"time"

	"github.com/timshannon/bolthold"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = bolthold.ErrNotFound

// MovieStatus represents the library state of a movie
type MovieStatus string

const (
	MovieStatusActive MovieStatus = "active"
	MovieStatusDone   MovieStatus = "done"
)

// ReleaseStatus represents the lifecycle state of a release
type ReleaseStatus string

const (
	ReleaseStatusAvailable  ReleaseStatus = "available" // found by the indexer, not sent yet
	ReleaseStatusSnatched   ReleaseStatus = "snatched"
	ReleaseStatusSeeding    ReleaseStatus = "seeding"
	ReleaseStatusMissing    ReleaseStatus = "missing"
	ReleaseStatusDownloaded ReleaseStatus = "downloaded"
	ReleaseStatusDone       ReleaseStatus = "done"
	ReleaseStatusIgnored    ReleaseStatus = "ignored"
	ReleaseStatusFailed     ReleaseStatus = "failed"
)

// Protocol represents how a release is downloaded
type Protocol string

const (
	ProtocolNZB           Protocol = "nzb"
	ProtocolTorrent       Protocol = "torrent"
	ProtocolTorrentMagnet Protocol = "torrent_magnet"
)

// DownloadStatus is the state a downloader reports for one item
type DownloadStatus string

const (
	DownloadStatusBusy      DownloadStatus = "busy"
	DownloadStatusSeeding   DownloadStatus = "seeding"
	DownloadStatusCompleted DownloadStatus = "completed"
	DownloadStatusFailed    DownloadStatus = "failed"
)

// DownloadReport is a downloader's view of one in-flight item
type DownloadReport struct {
	ID         string
	Downloader string
	Name       string
	Status     DownloadStatus
	Folder     string
	Files      []string
	TimeLeft   time.Duration // negative when unknown
	SeedRatio  float64
}

// StatusInfoComplete reports whether the report carries id, downloader and folder
func (r *DownloadReport) StatusInfoComplete() bool {
	return r != nil && r.ID != "" && r.Downloader != "" && r.Folder != ""
}

// ReleaseDownload is a download report extended with what the store knows
// about the release behind it.
type ReleaseDownload struct {
	DownloadReport

	IMDBId    string
	Quality   string
	Is3D      bool
	Protocol  Protocol
	ReleaseID uint64
}

// IsTorrent reports whether the download came from a torrent back-end
func (d *ReleaseDownload) IsTorrent() bool {
	return d != nil && d.Protocol.IsTorrent()
}
