package models

import "time"

// Release represents one download attempt of a movie
type Release struct {
	ID      uint64 `boltholdKey:"ID"`
	MovieID uint64 `boltholdIndex:"MovieID"`

	// Release details
	Name       string // release name as sent to the downloader
	Identifier string
	Quality    string // quality definition identifier
	Is3D       bool
	Protocol   Protocol
	Link       string
	Size       int64 // bytes

	// Download tracking
	DownloadInfo *DownloadInfo
	DownloadKey  string        `boltholdIndex:"DownloadKey"` // "<downloader>-<id>"
	Status       ReleaseStatus `boltholdIndex:"Status"`

	// Metadata
	CreatedAt          time.Time
	UpdatedAt          time.Time // last status edit, drives the missing grace period
	ProcessCompletedAt *time.Time
}

// DownloadInfo identifies a release inside a downloader back-end
type DownloadInfo struct {
	Downloader    string
	ID            string
	StatusSupport bool
}

// DownloadKeyFor builds the lookup key of a download inside a downloader
func DownloadKeyFor(downloader, id string) string {
	if downloader == "" || id == "" {
		return ""
	}
	return downloader + "-" + id
}

// HasDownloadID reports whether the release can be correlated by downloader id
func (r *Release) HasDownloadID() bool {
	return r.DownloadInfo != nil && r.DownloadInfo.ID != "" && r.DownloadInfo.Downloader != ""
}

// IsTorrent reports whether the release was fetched over a torrent protocol
func (p Protocol) IsTorrent() bool {
	return p == ProtocolTorrent || p == ProtocolTorrentMagnet
}
