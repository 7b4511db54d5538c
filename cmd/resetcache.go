package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/utils"
)

type resetCacheFlags struct {
	force      bool
	stats      bool
	prune      bool
	dryRun     bool
	maxAge     time.Duration
	maxEntries int
}

// resetCacheCmd represents the reset-cache command
var resetCacheCmd = &cobra.Command{
	Use:   "reset-cache",
	Short: "Reset or prune the scan caches",
	Long: `The 'reset-cache' command removes every cached digest, file metadata entry and
directory metadata entry. Use --stats to only inspect the caches, or --prune to
drop expired digests and old file metadata while keeping the rest.`,
	Run: func(cmd *cobra.Command, args []string) {
		var f resetCacheFlags

		// Parse flags
		f.force, _ = cmd.Flags().GetBool("force")
		f.stats, _ = cmd.Flags().GetBool("stats")
		f.prune, _ = cmd.Flags().GetBool("prune")
		f.dryRun, _ = cmd.Flags().GetBool("dry-run")
		f.maxAge, _ = cmd.Flags().GetDuration("max-age")
		f.maxEntries, _ = cmd.Flags().GetInt("max-entries")

		handleResetCacheCommand(f, cmd)
	},
}

func init() {
	// Define command-specific flags
	resetCacheCmd.Flags().BoolP("force", "f", false, "Force cache reset without confirmation")
	resetCacheCmd.Flags().BoolP("stats", "s", false, "Show cache statistics and exit")
	resetCacheCmd.Flags().BoolP("prune", "p", false, "Only drop expired digests and old file metadata")
	resetCacheCmd.Flags().Bool("dry-run", false, "With --prune, report what would be removed")
	resetCacheCmd.Flags().Duration("max-age", 7*24*time.Hour, "With --prune, drop file metadata cached longer ago")
	resetCacheCmd.Flags().Int("max-entries", 50_000, "With --prune, keep at most this many file metadata entries")

	// Add the reset-cache command to the root command
	rootCmd.AddCommand(resetCacheCmd)
}

func handleResetCacheCommand(f resetCacheFlags, cmd *cobra.Command) {
	rootDependencies := handleRootCommand(cmd, nil)
	if rootDependencies == nil {
		return
	}
	defer rootDependencies.Close()
	ctx := context.Background()

	if f.stats {
		printCacheStats(ctx, rootDependencies)
		return
	}

	if rootDependencies.Caches == nil && rootDependencies.Digests == nil {
		fmt.Println(lipgloss.Yellow.Render("Cache is disabled. No cache to reset."))
		return
	}

	if f.prune {
		pruneCache(ctx, rootDependencies, f)
		return
	}

	// Confirm reset for full cache reset (if not forced)
	if !f.force {
		ok, err := utils.ConfirmPrompt(ctx, bufio.NewReader(os.Stdin), "Are you sure you want to reset every scan cache?")
		if err != nil || !ok {
			fmt.Println(lipgloss.Yellow.Render("Cache reset cancelled."))
			return
		}
	}

	spinner := pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgCyan)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)

	spinnerInstance, _ := spinner.Start("Resetting scan caches...")

	err := rootDependencies.Analyzer.ClearCache(ctx)
	spinnerInstance.Stop()
	fmt.Print("\r")
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error resetting cache: %v", err)))
		return
	}
	fmt.Println(lipgloss.Green.Render("✓ Scan caches have been successfully reset!"))
}

func pruneCache(ctx context.Context, deps *RootDependencies, f resetCacheFlags) {
	if deps.Caches != nil {
		result, err := deps.Caches.SmartCleanupCache(ctx, cache_store.CacheCleanupOptions{
			MaxAge:     f.maxAge,
			MaxEntries: f.maxEntries,
			DryRun:     f.dryRun,
		})
		if err != nil {
			fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error pruning file metadata: %v", err)))
			return
		}
		verb := "Removed"
		if f.dryRun {
			verb = "Would remove"
		}
		fmt.Printf("  %s %v of %v file metadata entries (%v by age, %v by count)\n", verb,
			result["entries_marked_for_delete"], result["entries_before_cleanup"],
			result["deleted_by_age"], result["deleted_by_count"])
	}

	if deps.Store != nil && !f.dryRun {
		n, err := deps.Store.ClearExpiredCache(ctx)
		if err != nil {
			fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error pruning digests: %v", err)))
			return
		}
		fmt.Printf("  Removed %d expired digests\n", n)
	}
	fmt.Println(lipgloss.Green.Render("✓ Prune finished"))
}

func printCacheStats(ctx context.Context, deps *RootDependencies) {
	fmt.Println(lipgloss.Info.Render("Cache Statistics:"))
	if !deps.Config.Cache.Enabled {
		fmt.Println("  Cache is disabled")
		return
	}

	cacheStats, err := deps.Analyzer.GetCacheStats(ctx)
	if err != nil {
		fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("Warning: Could not show statistics: %v", err)))
		return
	}

	if dir, ok := cacheStats["cache_dir"].(string); ok {
		fmt.Printf("  Cache Directory: %s\n", dir)
	}
	if files, ok := cacheStats["cache_files"].(int); ok {
		fmt.Printf("  Cache Blobs: %d\n", files)
	}
	if size, ok := cacheStats["total_human"].(string); ok {
		fmt.Printf("  Total Size: %s\n", size)
	}
	if entries, ok := cacheStats["entries"].(map[string]int); ok {
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  Entries (%s): %d\n", name, entries[name])
		}
	}
	if perf, ok := cacheStats["performance"].(map[string]interface{}); ok {
		names := make([]string, 0, len(perf))
		for name := range perf {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if p, ok := perf[name].(map[string]interface{}); ok {
				fmt.Printf("  Hit Rate (%s): %.1f%% of %v requests\n", name, p["hit_rate_percent"], p["total_requests"])
			}
		}
	}

	if deps.Store != nil {
		if st, err := deps.Store.Statistics(ctx); err == nil {
			fmt.Printf("  Known Projects: %d\n", st.ProjectCount)
			fmt.Printf("  Cached Digests (sqlite): %d\n", st.CachedDigests)
		}
	}
}
