package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mhollis/skiff/internal/collect"
	"github.com/mhollis/skiff/internal/conflict"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/queue"
)

var (
	putDest       string
	putOnConflict string
	putNoRootDir  bool
)

var putCmd = &cobra.Command{
	Use:   "put <file|dir>...",
	Short: "Upload files or directories",
	Long: `Put uploads local files and directory trees to a remote directory.

Directory arguments are walked recursively and recreated under the
destination. When an upload collides with an existing remote file the
--on-conflict strategy decides: rename (default) stores it under a
unique " (2)" suffix, replace overwrites, skip drops it.`,
	Example: `  skiff put report.csv --dest /reports
  skiff put ./photos --dest /albums --on-conflict replace`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVarP(&putDest, "dest", "d", "/",
		"Remote destination directory")
	putCmd.Flags().StringVar(&putOnConflict, "on-conflict", string(conflict.Rename),
		"Conflict strategy: rename, replace or skip")
	putCmd.Flags().BoolVar(&putNoRootDir, "no-root-dir", false,
		"Upload a directory's contents without the directory itself")
}

func runPut(cmd *cobra.Command, args []string) error {
	if err := requireBackend(); err != nil {
		return err
	}

	strategy := conflict.Strategy(putOnConflict)
	if !strategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", putOnConflict)
	}

	ctx := cmd.Context()
	collector := collect.NewCollector(logger)
	if err := collectLocal(ctx, collector, args, !putNoRootDir); err != nil {
		return err
	}

	candidates := collector.Candidates()
	if len(candidates) == 0 {
		return errors.New("nothing to upload")
	}

	existing := core.Listing.List(ctx, putDest, "").FileNames()
	resolutions := conflict.Resolve(putDest, candidates, existing, strategy)
	if len(resolutions) == 0 {
		fmt.Println("All uploads skipped.")
		return nil
	}

	items := core.Queue.EnqueueResolutions(resolutions, "")
	go reportProgress(core.Queue)

	if err := core.Queue.Wait(ctx); err != nil {
		return err
	}
	return summarize(items)
}

// collectLocal gathers the named files and directory trees. Directory
// arguments keep their own name as the remote prefix unless
// includeRootDir is false.
func collectLocal(ctx context.Context, collector *collect.Collector, args []string, includeRootDir bool) error {
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}

		if info.IsDir() {
			dir, err := collect.OSDir(arg)
			if err != nil {
				return err
			}
			base := ""
			if includeRootDir {
				base = filepath.Base(arg)
			}
			if err := collector.AddTree(ctx, dir, base); err != nil {
				return fmt.Errorf("collect %s: %w", arg, err)
			}
			continue
		}

		payload, err := collect.NewFilePayload(arg)
		if err != nil {
			return err
		}
		collector.AddFlat(payload)
	}
	return nil
}

// reportProgress prints terminal state changes from the queue's event
// stream until the stream goes quiet.
func reportProgress(q *queue.Queue) {
	okStyle := color.New(color.FgGreen)
	errStyle := color.New(color.FgRed)

	for ev := range q.Events() {
		switch ev.Type {
		case queue.EventComplete:
			okStyle.Printf("done  %s (%s)\n", ev.Item.TargetPath, humanSize(ev.Item.Size))
		case queue.EventError:
			errStyle.Printf("fail  %s: %s\n", ev.Item.TargetPath, ev.Item.Error)
		}
	}
}

// summarize reads final states back from the queue and sets the exit
// status.
func summarize(enqueued []models.TransferItem) error {
	finals := make(map[string]models.TransferItem)
	for _, item := range core.Queue.Snapshot() {
		finals[item.ID] = item
	}

	failed := 0
	for _, item := range enqueued {
		if final, ok := finals[item.ID]; ok && final.Status == models.StatusError {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(enqueued))
	}
	fmt.Printf("%d uploads complete.\n", len(enqueued))
	return nil
}
