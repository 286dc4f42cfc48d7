package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrorEntry is one failed candidate.
type ErrorEntry struct {
	Time    time.Time
	ID      int
	Message string
}

// ErrorLog appends failure lines of the form "<time>: Pin <id> - <error>".
type ErrorLog struct {
	fs   afero.Fs
	path string
}

// NewErrorLog returns an ErrorLog at path on fs.
func NewErrorLog(fs afero.Fs, path string) *ErrorLog {
	return &ErrorLog{fs: fs, path: path}
}

// Append writes entries in one call.
func (l *ErrorLog) Append(entries []ErrorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: Pin %d - %s\n", e.Time.Format("2006-01-02 15:04:05.000000"), e.ID, e.Message)
	}
	if dir := filepath.Dir(l.path); dir != "." && dir != "" {
		if err := l.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create error log dir: %w", err)
		}
	}
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append error log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close error log: %w", err)
	}
	return nil
}
