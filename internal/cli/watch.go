package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/async"
	"github.com/joseph-ayodele/menuocr/internal/ingest"
)

var watchNoScan bool

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Process images as they appear in a directory",
	Long: `Watches the directory recursively and queues every new or rewritten image
for the pipeline. Existing images are processed first unless --no-scan is
given. Defaults to INBOX_DIR. Stops on interrupt after draining the queue.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "skip images already present")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		dir := a.Config.Inbox.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return errors.New("no directory given and INBOX_DIR is not set")
		}
		return RunInbox(commandContext(cmd), a, dir, !watchNoScan)
	})
}

// RunInbox feeds images under dir through the worker queue until ctx ends.
func RunInbox(ctx context.Context, a *app.App, dir string, initialScan bool) error {
	cfg := a.Config.Inbox
	queue := async.NewProcessorQueue(a.JobHandler(), a.Logger,
		async.WithWorkers(cfg.Workers),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.JobTimeout),
	)
	defer queue.Shutdown(context.WithoutCancel(ctx))

	ingestor := ingest.NewFSIngestor(queue, a.Logger)
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:    []string{dir},
		Debounce: cfg.Debounce,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	// scan after the watcher is up so nothing written in between is missed;
	// the ingestor drops duplicates by content hash
	if initialScan {
		if _, _, err := ingestor.IngestDirectory(ctx, dir, true); err != nil {
			a.Logger.Warn("ingest.directory.failed", "root", dir, "error", err)
		}
	}

	for {
		select {
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := ingestor.IngestPath(ctx, path); err != nil {
				a.Logger.Warn("ingest.path.failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.Logger.Warn("watcher.error", "error", err)
		}
	}
}
