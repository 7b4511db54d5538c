package code_analyzer

import (
	"math"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/config"
)

const largestFilesCount = 10

type totals struct {
	files         int
	lines         int
	totalBytes    int64
	analyzedBytes int64
}

func (t totals) add(o totals) totals {
	return totals{
		files:         t.files + o.files,
		lines:         t.lines + o.lines,
		totalBytes:    t.totalBytes + o.totalBytes,
		analyzedBytes: t.analyzedBytes + o.analyzedBytes,
	}
}

// sumTotals reduces the counters over partitions in parallel
func sumTotals(results []models.FileSampleResult, workers int) totals {
	workers = config.ResolveWorkers(workers)
	if len(results) == 0 {
		return totals{}
	}
	size := (len(results) + workers - 1) / workers
	parts := make([]totals, workers)

	g := new(errgroup.Group)
	for p := 0; p < workers; p++ {
		lo := p * size
		if lo >= len(results) {
			break
		}
		hi := lo + size
		if hi > len(results) {
			hi = len(results)
		}
		p := p
		g.Go(func() error {
			var t totals
			for _, r := range results[lo:hi] {
				if r.Err != nil {
					continue
				}
				t.files++
				t.lines += r.LineCount
				t.totalBytes += r.Descriptor.SizeBytes
				if r.IncludedInDigest {
					t.analyzedBytes += r.Descriptor.SizeBytes
				}
			}
			parts[p] = t
			return nil
		})
	}
	_ = g.Wait()

	var out totals
	for _, t := range parts {
		out = out.add(t)
	}
	return out
}

// aggregate reduces per-file results into a digest. Errored results are left out.
func aggregate(root string, results []models.FileSampleResult, workers int) *models.RepoAnalysis {
	t := sumTotals(results, workers)

	files := make([]models.FileInfo, 0)
	structure := make(map[string][]string)
	languages := make(map[string]struct{})
	sizeByLanguage := make(map[string]int64)
	all := make([]models.FileSizeInfo, 0, len(results))

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		d := r.Descriptor
		if d.Language != UnknownLanguage {
			languages[d.Language] = struct{}{}
		}
		all = append(all, models.FileSizeInfo{
			Path:      d.Path,
			SizeBytes: d.SizeBytes,
			SizeKB:    toKB(d.SizeBytes),
			Language:  d.Language,
		})

		if !r.IncludedInDigest || r.Content == nil {
			continue
		}
		files = append(files, models.FileInfo{
			Path:      d.Path,
			Content:   *r.Content,
			Language:  d.Language,
			Size:      d.SizeBytes,
			Truncated: r.WasTruncated,
		})
		structure[d.ParentDir] = append(structure[d.ParentDir], filepath.Base(d.Path))
		if d.Language != UnknownLanguage {
			sizeByLanguage[d.Language] += d.SizeBytes
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].SizeBytes > all[j].SizeBytes })
	if len(all) > largestFilesCount {
		all = all[:largestFilesCount]
	}

	technologies := make([]string, 0, len(languages))
	for l := range languages {
		technologies = append(technologies, l)
	}
	sort.Strings(technologies)

	return &models.RepoAnalysis{
		Root:         root,
		Files:        files,
		Structure:    structure,
		Technologies: technologies,
		Metrics: models.Metrics{
			TotalFiles:    t.files,
			TotalLines:    t.lines,
			AnalyzedFiles: len(files),
		},
		SizeMetrics: models.SizeMetrics{
			TotalSizeBytes:    t.totalBytes,
			TotalSizeKB:       toKB(t.totalBytes),
			TotalSizeMB:       toMB(t.totalBytes),
			AnalyzedSizeBytes: t.analyzedBytes,
			AnalyzedSizeKB:    toKB(t.analyzedBytes),
			AnalyzedSizeMB:    toMB(t.analyzedBytes),
			LargestFiles:      all,
			SizeByLanguage:    sizeByLanguage,
		},
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func toKB(b int64) float64 { return round2(float64(b) / 1024) }

func toMB(b int64) float64 { return round2(float64(b) / (1024 * 1024)) }
