package summarize

import (
	"fmt"
	"os"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Metadata describes a file's path, size and timestamps in the bracketed
// form stored in front of every description. If the file cannot be stat'ed
// the bracket says so instead.
func Metadata(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("[path: %s, metadata unavailable]", path)
	}
	return fmt.Sprintf("[path: %s, size: %d bytes, created: %s, modified: %s]",
		path, info.Size(), createdAt(info).Format(timeLayout), info.ModTime().Format(timeLayout))
}

func localTime(sec, nsec int64) time.Time {
	return time.Unix(sec, nsec)
}
