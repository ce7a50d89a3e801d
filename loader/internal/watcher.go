package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taxrag/types"
)

// Watcher polls a drop folder and emits files that have been stable for
// the configured monitoring window, so half-copied files are not picked
// up mid-transfer.
type Watcher struct {
	cfg    types.Config
	logger *slog.Logger

	mu              sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewWatcher(cfg types.Config) *Watcher {
	createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir)
	return &Watcher{
		cfg:             cfg,
		logger:          slog.Default(),
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}
}

func (w *Watcher) Watch(ctx context.Context, fileChan chan<- string) {
	w.logger.Info("start monitoring folder", "dir", w.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer w.logger.Info("file watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx, fileChan)
		}
	}
}

func (w *Watcher) scan(ctx context.Context, fileChan chan<- string) {
	files, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("error while reading source directory", "error", err)
		return
	}

	currentFiles := make(map[string]bool)

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		filePath := filepath.Join(w.cfg.SourceDir, file.Name())
		currentFiles[filePath] = true

		w.mu.Lock()
		if w.filesProcessing[filePath] {
			w.mu.Unlock()
			continue
		}
		firstSeen, exists := w.fileFirstSeen[filePath]
		if !exists {
			w.fileFirstSeen[filePath] = time.Now()
			w.logger.Info("new file detected", "file", filePath)
			w.mu.Unlock()
			continue
		}
		w.mu.Unlock()

		if time.Since(firstSeen) > w.cfg.MonitoringTime {
			w.mu.Lock()
			w.filesProcessing[filePath] = true
			w.mu.Unlock()

			select {
			case fileChan <- filePath:
			case <-ctx.Done():
				return
			}
		}
	}

	// Drop tracking for files that disappeared from the folder.
	w.mu.Lock()
	for filePath := range w.fileFirstSeen {
		if !currentFiles[filePath] {
			delete(w.fileFirstSeen, filePath)
			delete(w.filesProcessing, filePath)
		}
	}
	w.mu.Unlock()
}

// MoveToArchive relocates a processed file; ok=false sends it to the bad
// folder instead.
func (w *Watcher) MoveToArchive(filePath string, ok bool) {
	targetDir := w.cfg.ArchiveDir
	if !ok {
		targetDir = w.cfg.BadDir
	}
	target := filepath.Join(targetDir, fmt.Sprintf("%s_%s",
		time.Now().Format("20060102T150405"), filepath.Base(filePath)))
	if err := os.Rename(filePath, target); err != nil {
		w.logger.Error("failed to move processed file", "file", filePath, "error", err)
	}
}

func createDirectories(dirs ...string) {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
		}
	}
}
