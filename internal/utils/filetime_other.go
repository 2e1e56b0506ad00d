//go:build !linux

package utils

import (
	"os"
	"time"
)

// ChangedAt returns the modification time of info
func ChangedAt(info os.FileInfo) time.Time {
	return info.ModTime()
}
