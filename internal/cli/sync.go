package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"kbsearch/internal/adapter/source"
)

var syncQuiet bool

var syncCmd = &cobra.Command{
	Use:   "sync [path...]",
	Short: "Ingest articles and rebuild the index",
	Long: `Load article exports (JSON arrays of {article_id, title, content, url,
last_updated}, or objects with a "results" array), store them, compute their
embeddings and rebuild the vector index.

Directories are searched with the source.includes / source.excludes patterns.

Examples:
  kbsearch sync                    # Ingest every matching file under --dir
  kbsearch sync export/faq.json    # Ingest one file`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncQuiet, "quiet", false, "hide the progress bar")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()
	ctx := cmd.Context()

	paths := args
	if len(paths) == 0 {
		paths = []string{dir}
	}

	walker := source.NewWalker(cfg.Source.Includes, cfg.Source.Excludes)
	var files []string
	for _, p := range paths {
		found, err := walker.Walk(p)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no article files found in %v", paths)
	}

	loaded, err := source.NewLoader(cfg.Source.StripHTML).LoadFiles(files)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}
	fmt.Printf("Loaded %d articles from %d files\n", len(loaded.Articles), len(files))

	eng, err := openEngine(ctx, cfg, dir, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if eng.migration.ClearEmbeddings {
		fmt.Printf("Embeddings cleared: %s\n", eng.migration.Reason)
	}

	var progress func(done, total int)
	if !syncQuiet {
		progress = newSyncProgress()
	}

	result, err := eng.sync.Sync(ctx, loaded.Articles, progress)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("\nSync complete:\n")
	fmt.Printf("  Received:   %d\n", result.Received+len(loaded.Skipped))
	fmt.Printf("  Synced:     %d\n", result.Synced)
	fmt.Printf("  Embedded:   %d\n", result.Embedded)
	fmt.Printf("  Skipped:    %d\n", result.Skipped+len(loaded.Skipped))
	fmt.Printf("  Generation: %d\n", result.Generation)

	warnings := append(append([]string{}, loaded.Skipped...), result.Errors...)
	if len(warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Printf("\nsync partially failed: %d/%d articles embedded\n",
			result.Embedded, result.Received+len(loaded.Skipped))
	}

	fmt.Printf("\nStore: %s\n", filepath.Clean(cfg.StoreDBPath(dir)))
	return nil
}

// newSyncProgress returns a callback that draws a progress bar once the
// total is known.
func newSyncProgress() func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if total == 0 {
			return
		}
		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 && done < total {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
