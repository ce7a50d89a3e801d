package service

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"taxrag/ingest"
	"taxrag/loader/internal"
	"taxrag/types"
)

// Service is the batch ingestion side of the system: it watches a drop
// folder and pushes files through the same pipeline the upload endpoint
// uses. Long-running ingests never block queries; the store publishes each
// document atomically once its chunk set is complete.
type Service struct {
	logger   *slog.Logger
	pipeline *ingest.Pipeline
	watcher  *internal.Watcher
	cfg      types.Config
}

func New(pipeline *ingest.Pipeline, cfg types.Config) *Service {
	return &Service{
		logger:   slog.Default(),
		pipeline: pipeline,
		watcher:  internal.NewWatcher(cfg),
		cfg:      cfg,
	}
}

func (s *Service) Stop() {
	s.logger.Info("Loader Service stopped")
}

func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.Watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processFiles(ctx, fileChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)
	close(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}

	s.Stop()
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}
			s.ingestFile(ctx, filePath)
		}
	}
}

func (s *Service) ingestFile(ctx context.Context, filePath string) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		s.logger.Error("failed to read file", "file", filePath, "error", err)
		s.watcher.MoveToArchive(filePath, false)
		return
	}

	result, err := s.pipeline.Ingest(ctx, filePath, data)
	if err != nil {
		s.logger.Error("ingest failed", "file", filePath, "error", err)
		s.watcher.MoveToArchive(filePath, false)
		return
	}

	s.logger.Info("document ingested",
		"file", filePath,
		"collection", result.Collection,
		"chunks", result.ChunksGenerated,
		"failed", result.ChunksFailed)
	s.watcher.MoveToArchive(filePath, true)
}
