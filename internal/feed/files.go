package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	replaceRetries = 3
	replaceBackoff = 200 * time.Millisecond
)

// SafeReplace atomically replaces path with data: write to a temp file in
// the same directory, then rename over the target. A rename blocked by
// another process holding the target is retried a few times; after that the
// data is kept under a timestamp-suffixed alternate name instead of being
// lost. Returns the path actually written.
func SafeReplace(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	var renameErr error
	for attempt := 0; attempt < replaceRetries; attempt++ {
		if renameErr = os.Rename(tmpName, path); renameErr == nil {
			return path, nil
		}
		time.Sleep(replaceBackoff)
	}

	alt := timestampedName(path, time.Now())
	slog.Warn("file replace blocked, using alternate name", "path", path, "alternate", alt, "error", renameErr)
	if err := os.Rename(tmpName, alt); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write alternate file: %w", err)
	}
	return alt, nil
}

// timestampedName inserts a timestamp before the extension:
// report.txt -> report.20260102-150405.txt.
func timestampedName(path string, at time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, at.Format("20060102-150405"), ext)
}
