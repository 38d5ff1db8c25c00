package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/menuocr/internal/async"
	"github.com/joseph-ayodele/menuocr/internal/common"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lunch.jpg"), "lunch")
	writeFile(t, filepath.Join(root, "nested", "dinner.PNG"), "dinner")
	writeFile(t, filepath.Join(root, "nested", "copy.jpeg"), "lunch")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignore me")
	writeFile(t, filepath.Join(root, ".cache", "hidden.jpg"), "hidden")
	writeFile(t, filepath.Join(root, "empty.png"), "")

	q := &recordingQueue{}
	ing := NewFSIngestor(q, quietLogger())

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Matched)
	assert.EqualValues(t, 2, stats.Queued)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Len(t, results, 4)
	require.Len(t, q.jobs, 2)
	for _, j := range q.jobs {
		assert.NotEmpty(t, j.HashHex)
		assert.True(t, filepath.IsAbs(j.Source))
	}
}

func TestIngestPath_RejectsUnsupported(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "menu.pdf")
	writeFile(t, p, "%PDF")

	_, err := NewFSIngestor(&recordingQueue{}, quietLogger()).IngestPath(context.Background(), p)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIngestPath_QueueFailureAllowsRetry(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "menu.jpg")
	writeFile(t, p, "menu")

	q := &recordingQueue{err: async.ErrQueueClosed}
	ing := NewFSIngestor(q, quietLogger())
	_, err := ing.IngestPath(context.Background(), p)
	assert.ErrorIs(t, err, async.ErrQueueClosed)

	q.err = nil
	r, err := ing.IngestPath(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
	assert.Len(t, q.jobs, 1)
}

func TestStartWatcher_EmitsNewImages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.jpg"), "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "existing.jpg"), <-events)

	writeFile(t, filepath.Join(root, "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "fresh.png"), "new")

	select {
	case got := <-events:
		assert.Equal(t, filepath.Join(root, "fresh.png"), got)
	case <-time.After(3 * time.Second):
		t.Fatal("no event for new image")
	}

	cancel()
	for range events {
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
