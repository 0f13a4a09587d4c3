//go:build linux

package summarize

import (
	"os"
	"syscall"
	"time"
)

// createdAt reports the inode change time; Linux has no portable birth time.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return localTime(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
