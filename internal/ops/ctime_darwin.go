//go:build darwin

package ops

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime returns the file's birth time.
func creationTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Unix())
	}
	return info.ModTime()
}
