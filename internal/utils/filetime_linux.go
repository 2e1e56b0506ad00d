//go:build linux

package utils

import (
	"os"
	"syscall"
	"time"
)

// ChangedAt returns the later of the modification and inode change times of info
func ChangedAt(info os.FileInfo) time.Time {
	mtime := info.ModTime()
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return mtime
	}
	ctime := time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	if ctime.After(mtime) {
		return ctime
	}
	return mtime
}
