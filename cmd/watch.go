package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/morler/repomuse/code_analyzer"
	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep a project's caches fresh while it is edited",
	Long: `The 'watch' command follows file-system changes below path (the current
directory by default). Every settled batch of changes drops the project's cached
digest and the metadata of the touched files. With --rescan a lazy scan runs after
each batch so the cache is warm again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rescan, _ := cmd.Flags().GetBool("rescan")
		debounce, _ := cmd.Flags().GetDuration("debounce")

		deps := handleRootCommand(cmd, nil)
		if deps == nil {
			return fmt.Errorf("initialization failed")
		}
		defer deps.Close()

		root := deps.Cwd
		if len(args) == 1 {
			root = args[0]
		}
		root, err := code_analyzer.NormalizeRoot(root)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		rescans := make(chan struct{}, 1)
		opts := watcher.Options{
			Debounce: debounce,
			Digests:  deps.Digests,
			OnChange: func(changes []watcher.Change) {
				for _, c := range changes {
					rel, _ := filepath.Rel(root, c.Path)
					pterm.Info.Printfln("%s %s", c.Op, rel)
				}
				if rescan {
					select {
					case rescans <- struct{}{}:
					default:
					}
				}
			},
		}
		if deps.Caches != nil {
			opts.Metadata = deps.Caches.FileMetadata
		}

		w, err := watcher.New(root, opts)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		fmt.Println(lipgloss.Info.Render(fmt.Sprintf("Watching %s (%d directories). Press Ctrl+C to stop.", root, w.Watched())))

		for {
			select {
			case <-ctx.Done():
				fmt.Println(lipgloss.Yellow.Render("\n🔄 Exiting..."))
				return nil
			case <-rescans:
				started := time.Now()
				d, err := deps.Analyzer.Scan(ctx, root, models.ScanOptions{Lazy: true})
				if err != nil {
					pterm.Error.Printfln("rescan failed: %v", err)
					continue
				}
				pterm.Success.Printfln("rescanned %d files in %s", d.Metrics.TotalFiles, time.Since(started).Round(time.Millisecond))
			}
		}
	},
}

func init() {
	watchCmd.Flags().Bool("rescan", false, "Run a lazy scan after every batch of changes")
	watchCmd.Flags().Duration("debounce", watcher.DefaultDebounce, "Quiet period before a batch of changes is handled")
	rootCmd.AddCommand(watchCmd)
}
