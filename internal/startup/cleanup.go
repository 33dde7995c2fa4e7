// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
)

// TempDirPrefix marks generation temp directories owned by chanarr.
const TempDirPrefix = "chanarr-proxy-"

// DefaultCleanupAge is how old an orphaned temp directory must be before
// startup cleanup removes it.
const DefaultCleanupAge = 1 * time.Hour

// CleanupOrphanedTempDirs removes "chanarr-proxy-*" directories under
// baseDir whose modification time is older than maxAge. These are left
// behind when a generation run dies without cleaning up after itself.
// Returns how many directories were removed.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("base directory does not exist, skipping cleanup", "path", baseDir)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup", "path", baseDir, "error", err)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}
		if removeIfStale(logger, filepath.Join(baseDir, entry.Name()), entry, cutoff) {
			removed++
		}
	}
	return removed, nil
}

// removeIfStale deletes dirPath when its mtime is at or before cutoff.
func removeIfStale(logger *slog.Logger, dirPath string, entry os.DirEntry, cutoff time.Time) bool {
	info, err := entry.Info()
	if err != nil {
		logger.Warn("failed to get directory info", "path", dirPath, "error", err)
		return false
	}
	age := time.Since(info.ModTime()).Round(time.Second)
	if info.ModTime().After(cutoff) {
		logger.Debug("preserving recent temp directory", "path", dirPath, "age", age)
		return false
	}
	if err := os.RemoveAll(dirPath); err != nil {
		logger.Warn("failed to remove orphaned temp directory", "path", dirPath, "error", err)
		return false
	}
	logger.Info("removed orphaned temp directory", "path", dirPath, "age", age)
	return true
}

// CleanupSystemTempDirs runs CleanupOrphanedTempDirs against the system
// temp directory with the default age.
func CleanupSystemTempDirs(logger *slog.Logger) (int, error) {
	return CleanupOrphanedTempDirs(logger, os.TempDir(), DefaultCleanupAge)
}

// RecoverStaleProxyStatuses flips proxies stuck in "generating" back to
// "failed". After a crash or restart the in-memory pipeline state is gone,
// so any proxy still marked generating in the database can never finish.
// Returns how many proxies were recovered.
func RecoverStaleProxyStatuses(ctx context.Context, logger *slog.Logger, proxyRepo repository.ProxyRepository) (int, error) {
	proxies, err := proxyRepo.GetAll(ctx)
	if err != nil {
		logger.Error("failed to get proxies for stale status recovery", "error", err)
		return 0, err
	}

	recovered := 0
	for _, proxy := range proxies {
		if proxy.Status != models.ProxyStatusGenerating {
			continue
		}
		logger.Warn("recovering stale proxy status",
			"proxy_id", proxy.ID.String(), "proxy_name", proxy.Name, "status", proxy.Status)

		err := proxyRepo.UpdateStatus(ctx, proxy.ID, models.ProxyStatusFailed, "interrupted by server restart")
		if err != nil {
			logger.Error("failed to recover stale proxy status",
				"proxy_id", proxy.ID.String(), "proxy_name", proxy.Name, "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}
