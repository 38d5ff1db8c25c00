package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/ingest"
)

var (
	batchConcurrency int
	batchOut         string
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Process every image under a directory",
	Long: `Walks the directory (hidden entries skipped), processes each image with a
bounded number of concurrent pipelines and writes one JSON line per image.
The command fails when any image ended with decision RETRY.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 2, "images processed at once")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "JSON lines file (default stdout)")
	rootCmd.AddCommand(batchCmd)
}

// BatchLine is one image's outcome in the batch output.
type BatchLine struct {
	Source     string             `json:"source"`
	RunID      string             `json:"runId,omitempty"`
	Decision   constants.Decision `json:"decision,omitempty"`
	IsMenu     bool               `json:"isMenu"`
	Confidence float64            `json:"confidence"`
	Fallback   bool               `json:"fallback"`
	Error      string             `json:"error,omitempty"`
	ElapsedMs  int64              `json:"elapsedMs"`
}

// collectImages lists the supported images under root in lexical order.
func collectImages(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && ingest.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && constants.IsAllowedImage(path) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func runBatch(cmd *cobra.Command, args []string) error {
	images, err := collectImages(args[0])
	if err != nil {
		return fmt.Errorf("scan %s: %w", args[0], err)
	}
	if len(images) == 0 {
		cmd.PrintErrln("no images found")
		return nil
	}

	var w io.Writer = cmd.OutOrStdout()
	if batchOut != "" {
		f, err := os.Create(batchOut)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	return withApp(cmd, func(a *app.App) error {
		var (
			mu     sync.Mutex
			counts = map[constants.Decision]int{}
			failed int
			enc    = json.NewEncoder(w)
		)

		g, ctx := errgroup.WithContext(commandContext(cmd))
		g.SetLimit(max(1, batchConcurrency))
		for _, path := range images {
			path := path
			g.Go(func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				start := time.Now()
				line := BatchLine{Source: path}
				out, err := a.LocalMenus.Process(ctx, path)
				line.ElapsedMs = time.Since(start).Milliseconds()
				line.Decision = out.Decision
				if out.Decision != "" {
					line.RunID = out.RunID.String()
				}
				if err != nil {
					line.Error = err.Error()
				} else {
					line.IsMenu = out.Verdict.IsMenu
					line.Confidence = out.Verdict.Confidence
					line.Fallback = out.CombinedResult.Fallback
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
				}
				if line.Decision != "" {
					counts[line.Decision]++
				}
				return enc.Encode(line)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		a.Logger.Info("batch.done",
			"images", len(images),
			"accepted", counts[constants.DecisionAccepted],
			"review", counts[constants.DecisionReview],
			"rejected", counts[constants.DecisionRejected],
			"retry", counts[constants.DecisionRetry],
			"failed", failed,
		)
		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, len(images))
		}
		return nil
	})
}
