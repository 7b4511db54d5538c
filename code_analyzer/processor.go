package code_analyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/src-d/enry/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/metrics"
	"github.com/morler/repomuse/progress_tracker"
)

const truncatedSuffix = "...(truncated)"

// processorOptions are the sampling budgets of one scan
type processorOptions struct {
	MaxContentSize int64
	ContentPrefix  int
	// SampleLimit of zero or less samples every eligible file
	SampleLimit int
	ChunkSize   int
	Workers     int
}

// sampleSlots hands out at most limit sampling slots across workers
type sampleSlots struct {
	limit int64
	taken atomic.Int64
}

func (s *sampleSlots) reserve() bool {
	if s.limit <= 0 {
		return true
	}
	for {
		n := s.taken.Load()
		if n >= s.limit {
			return false
		}
		if s.taken.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *sampleSlots) release() {
	if s.limit > 0 {
		s.taken.Add(-1)
	}
}

// processFiles samples descriptors chunk by chunk. Results keep the order of
// files. When stop reports true at a chunk boundary the results gathered so
// far are returned with cancelled=true.
func processFiles(ctx context.Context, files []models.FileDescriptor, opts processorOptions,
	tracker *progress_tracker.Tracker, m *metrics.Metrics, stop func() bool) ([]models.FileSampleResult, bool) {

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}
	slots := &sampleSlots{limit: int64(opts.SampleLimit)}
	results := make([]models.FileSampleResult, len(files))

	for start := 0; start < len(files); start += chunkSize {
		if stop() || ctx.Err() != nil {
			return results[:start], true
		}
		end := start + chunkSize
		if end > len(files) {
			end = len(files)
		}

		g := new(errgroup.Group)
		g.SetLimit(config.ResolveWorkers(opts.Workers))
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = sampleFile(files[i], opts, slots)
				tracker.MarkProcessed(files[i].Path)
				tracker.AddBytesProcessed(files[i].SizeBytes)
				if results[i].Content != nil {
					m.FileProcessed(len(*results[i].Content))
				} else {
					m.FileProcessed(0)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return results, false
}

// sampleFile decides whether d gets a content sample and reads it
func sampleFile(d models.FileDescriptor, opts processorOptions, slots *sampleSlots) models.FileSampleResult {
	res := models.FileSampleResult{Descriptor: d}
	if d.SizeBytes >= opts.MaxContentSize || !slots.reserve() {
		return res
	}

	content, truncated, err := readTextPrefix(d.Path, opts.ContentPrefix)
	if err != nil {
		slots.release()
		res.Err = err
		return res
	}

	res.LineCount = countLines(content)
	res.WasTruncated = truncated
	res.IncludedInDigest = true
	res.ShortHash = fmt.Sprintf("%016x", xxh3.HashString(content))
	if truncated {
		content += truncatedSuffix
	}
	res.Content = &content
	return res
}

// readTextPrefix reads at most limit bytes of path as text. One extra byte is
// probed to tell whether the file was cut.
func readTextPrefix(path string, limit int) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, app_errors.Wrap(err, app_errors.ErrorCodeIo, "processor.read", "cannot open file")
	}
	defer f.Close()

	buf := make([]byte, limit+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", false, app_errors.Wrap(err, app_errors.ErrorCodeIo, "processor.read", "cannot read file")
	}

	truncated := n > limit
	if truncated {
		n = limit
	}
	data := buf[:n]

	if bytes.IndexByte(data, 0) >= 0 || enry.IsBinary(data) {
		return "", false, app_errors.Newf(app_errors.ErrorCodeIo, "processor.read", "%s is not a text file", path)
	}

	data = trimPartialRune(data)
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), truncated, nil
}

// trimPartialRune drops a multi-byte sequence cut short by the prefix limit
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		return b
	}
	return b
}

// countLines counts lines the way a line iterator does: a final line without
// a newline still counts, an empty string has none
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
