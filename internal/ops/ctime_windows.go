//go:build windows

package ops

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime returns the file's creation time.
func creationTime(info fs.FileInfo) time.Time {
	if d, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, d.CreationTime.Nanoseconds())
	}
	return info.ModTime()
}
