//go:build linux

package ops

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime returns the inode change time. Linux has no portable birth
// time, and a freshly written screenshot's ctime is its write time.
func creationTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Unix())
	}
	return info.ModTime()
}
