package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/async"
	"github.com/joseph-ayodele/menuocr/internal/common"
)

// FSIngestor reads from the local filesystem and enqueues images. A file whose
// content hash was already queued by this process is skipped.
type FSIngestor struct {
	queue  async.Queue
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

var _ Ingestor = (*FSIngestor)(nil)

func NewFSIngestor(queue async.Queue, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{queue: queue, logger: logger, seen: map[string]struct{}{}}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	if !constants.IsAllowedImage(abs) {
		return out, common.InvalidInput(fmt.Sprintf("unsupported or missing extension: %q", filepath.Ext(abs)))
	}

	sum, size, err := hashFile(abs)
	if err != nil {
		i.logger.Error("ingest.hash.failed", "path", abs, "error", err)
		return out, err
	}
	out.HashHex, out.Size = sum, size
	if size == 0 {
		return out, common.InvalidInput("empty file")
	}
	if size > constants.MaxImageBytes {
		return out, common.InvalidInput(fmt.Sprintf("file is %d bytes, limit is %d", size, constants.MaxImageBytes))
	}

	i.mu.Lock()
	_, dup := i.seen[sum]
	if !dup {
		i.seen[sum] = struct{}{}
	}
	i.mu.Unlock()
	if dup {
		out.Deduplicated = true
		i.logger.Info("ingest.skip.duplicate", "path", abs, "hash", sum)
		return out, nil
	}

	out.QueuedAt = time.Now()
	if err := i.queue.Enqueue(ctx, async.Job{Source: abs, HashHex: sum, SubmittedAt: out.QueuedAt}); err != nil {
		i.forget(sum)
		return out, err
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each image. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowedImage(path) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}

		results = append(results, r)
		if r.Deduplicated {
			stats.Deduplicated++
		} else {
			stats.Queued++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.ok",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"queued", stats.Queued,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

func (i *FSIngestor) forget(sum string) {
	i.mu.Lock()
	delete(i.seen, sum)
	i.mu.Unlock()
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
