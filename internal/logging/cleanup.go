package logging

import (
	"os"
	"path/filepath"
	"time"
)

const (
	retentionDays = 30
	cleanupPeriod = 24 * time.Hour
	logFileGlob   = "clankers-*.jsonl"
)

// CleanupOldLogs removes rotated log files in dir older than the
// retention window, judged by modification time. Subdirectories and
// files that do not match the rotation pattern are left alone. Returns
// the number of files removed.
func CleanupOldLogs(dir string, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(logFileGlob, entry.Name()); !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// StartCleanupJob sweeps dir immediately and then every 24 hours until
// the returned stop function is called.
func StartCleanupJob(dir string, logger *Logger) (stop func()) {
	done := make(chan struct{})

	go func() {
		sweep := func() {
			removed, err := CleanupOldLogs(dir, time.Now())
			if err != nil {
				logger.Warnf("daemon", "log cleanup failed: %v", err)
			} else if removed > 0 {
				logger.Infof("daemon", "log cleanup removed %d expired file(s)", removed)
			}
		}

		sweep()

		ticker := time.NewTicker(cleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
