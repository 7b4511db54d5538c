package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/utils"
)

type scanFlags struct {
	force bool
	lazy  bool
	full  bool
	json  bool
	show  bool
	quiet bool
}

var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Scan one or more project trees into digests",
	Long: `The 'scan' command walks each given directory (the current one by default),
samples a bounded set of files and prints the resulting digest. Lazy scans stop
after the initial scan limit and prefer files changed since the last scan; use
--full to analyse every eligible file. Press Ctrl+C to cancel: the partial
digest is still printed but never cached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var f scanFlags
		f.force, _ = cmd.Flags().GetBool("force")
		f.lazy, _ = cmd.Flags().GetBool("lazy")
		f.full, _ = cmd.Flags().GetBool("full")
		f.json, _ = cmd.Flags().GetBool("json")
		f.show, _ = cmd.Flags().GetBool("show")
		f.quiet, _ = cmd.Flags().GetBool("quiet")
		return handleScanCommand(cmd, args, f)
	},
}

func init() {
	scanCmd.Flags().BoolP("force", "f", false, "Ignore cached digests and rescan")
	scanCmd.Flags().BoolP("lazy", "l", true, "Bound the scan by the initial scan limit")
	scanCmd.Flags().Bool("full", false, "Force a complete scan, even when a lazy digest is cached")
	scanCmd.Flags().Bool("json", false, "Print the digest as JSON")
	scanCmd.Flags().Bool("show", false, "Print the sampled file contents with syntax highlighting")
	scanCmd.Flags().BoolP("quiet", "q", false, "Do not draw progress")

	rootCmd.AddCommand(scanCmd)
}

func handleScanCommand(cmd *cobra.Command, args []string, f scanFlags) error {
	var renderer *progressRenderer
	if !f.quiet && !f.json {
		renderer = newProgressRenderer()
	}

	var deps *RootDependencies
	if renderer != nil {
		deps = handleRootCommand(cmd, renderer)
	} else {
		deps = handleRootCommand(cmd, nil)
	}
	if deps == nil {
		return fmt.Errorf("initialization failed")
	}
	defer deps.Close()

	// Ctrl+C cancels the running scan through its context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	roots := args
	if len(roots) == 0 {
		roots = []string{deps.Cwd}
	}
	opts := models.ScanOptions{Force: f.force, Lazy: f.lazy, ForceFullRescan: f.full}

	var digests []*models.RepoAnalysis
	if len(roots) == 1 {
		digest, err := deps.Analyzer.Scan(ctx, roots[0], opts)
		if renderer != nil {
			renderer.Stop()
		}
		if err != nil {
			return err
		}
		digests = append(digests, digest)
	} else {
		digests = deps.Analyzer.ScanMany(ctx, roots, opts)
		if renderer != nil {
			renderer.Stop()
		}
		if len(digests) < len(roots) {
			pterm.Warning.Printfln("%d of %d scans failed, see the log for details", len(roots)-len(digests), len(roots))
		}
	}

	if f.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(digests) == 1 {
			return enc.Encode(digests[0])
		}
		return enc.Encode(digests)
	}

	for _, d := range digests {
		printDigest(d)
		if f.show {
			if err := utils.RenderSampledFiles(ctx, os.Stdout, d.Files, deps.Config.Theme); err != nil {
				return err
			}
		}
	}
	return nil
}

func printDigest(d *models.RepoAnalysis) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Root)
	fmt.Fprintf(&b, "Files: %d   Lines (sampled): %d   Sampled: %d\n",
		d.Metrics.TotalFiles, d.Metrics.TotalLines, d.Metrics.AnalyzedFiles)
	fmt.Fprintf(&b, "Size: %s   Sampled size: %s\n",
		humanize.Bytes(uint64(d.SizeMetrics.TotalSizeBytes)), humanize.Bytes(uint64(d.SizeMetrics.AnalyzedSizeBytes)))
	if len(d.Technologies) > 0 {
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(d.Technologies, ", "))
	}
	source := "fresh scan"
	if d.FromCache {
		source = "cached " + humanize.Time(d.GeneratedAt)
	}
	fmt.Fprintf(&b, "Digest: %s", source)
	if p := d.ScanProgress; p != nil {
		state := "partial"
		if p.IsComplete {
			state = "complete"
		}
		fmt.Fprintf(&b, "\nLazy scan: %d of limit %d files (%s)", p.FilesScanned, p.ScanLimit, state)
		if p.EstimatedTotalFiles != nil {
			fmt.Fprintf(&b, ", about %d in total", *p.EstimatedTotalFiles)
		}
	}
	fmt.Println(lipgloss.BoxStyle.Render(b.String()))

	if len(d.SizeMetrics.LargestFiles) > 0 {
		data := pterm.TableData{{"Largest files", "Language", "Size"}}
		for _, f := range d.SizeMetrics.LargestFiles {
			data = append(data, []string{f.Path, f.Language, humanize.Bytes(uint64(f.SizeBytes))})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	if len(d.SizeMetrics.SizeByLanguage) > 0 {
		langs := make([]string, 0, len(d.SizeMetrics.SizeByLanguage))
		for l := range d.SizeMetrics.SizeByLanguage {
			langs = append(langs, l)
		}
		sort.Slice(langs, func(i, j int) bool {
			return d.SizeMetrics.SizeByLanguage[langs[i]] > d.SizeMetrics.SizeByLanguage[langs[j]]
		})
		var parts []string
		for _, l := range langs {
			parts = append(parts, fmt.Sprintf("%s %s", l, humanize.Bytes(uint64(d.SizeMetrics.SizeByLanguage[l]))))
		}
		fmt.Println(lipgloss.Gray.Render("By language: " + strings.Join(parts, ", ")))
	}
}
