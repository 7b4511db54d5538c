// Package progress_tracker keeps the live counters of a running scan and
// pushes periodic snapshots of them to a sink.
package progress_tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/morler/repomuse/code_analyzer/models"
)

// Tracker holds the counters of one scan. Counters are atomic so workers can
// bump them while the emitter reads them.
type Tracker struct {
	scanID     string
	folderPath string
	favorite   bool
	startedAt  time.Time

	filesDiscovered atomic.Int64
	filesProcessed  atomic.Int64
	bytesProcessed  atomic.Int64
	dirsSeen        atomic.Int64
	skippedFiltered atomic.Int64
	totalFiles      atomic.Int64
	totalBytes      atomic.Int64

	mu          sync.Mutex
	phase       models.Phase
	currentFile string
}

// New starts a tracker in the discovery phase
func New(folderPath string, favorite bool) *Tracker {
	return &Tracker{
		scanID:     uuid.NewString(),
		folderPath: folderPath,
		favorite:   favorite,
		startedAt:  time.Now(),
		phase:      models.PhaseDiscovery,
	}
}

// ScanID returns the unique id of this scan
func (t *Tracker) ScanID() string { return t.scanID }

func (t *Tracker) IncrementDiscovered()      { t.filesDiscovered.Add(1) }
func (t *Tracker) IncrementDirs()            { t.dirsSeen.Add(1) }
func (t *Tracker) IncrementSkipped()         { t.skippedFiltered.Add(1) }
func (t *Tracker) AddBytesProcessed(n int64) { t.bytesProcessed.Add(n) }

// SetTotals fixes the denominator once discovery is over
func (t *Tracker) SetTotals(files, bytes int64) {
	t.totalFiles.Store(files)
	t.totalBytes.Store(bytes)
}

// MarkProcessed counts a processed file and records it as the current one
func (t *Tracker) MarkProcessed(path string) {
	t.filesProcessed.Add(1)
	t.mu.Lock()
	t.currentFile = path
	t.mu.Unlock()
}

// SetPhase moves the tracker forward. Terminal phases are sticky.
func (t *Tracker) SetPhase(p models.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.IsTerminal() {
		return
	}
	t.phase = p
	if p.IsTerminal() {
		t.currentFile = ""
	}
}

// Phase returns the current phase
func (t *Tracker) Phase() models.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Snapshot copies the counters and derives percentage and ETA
func (t *Tracker) Snapshot() models.ProgressSnapshot {
	t.mu.Lock()
	phase := t.phase
	current := t.currentFile
	t.mu.Unlock()

	elapsed := time.Since(t.startedAt)
	discovered := t.filesDiscovered.Load()
	processed := t.filesProcessed.Load()
	total := t.totalFiles.Load()

	s := models.ProgressSnapshot{
		ScanID:          t.scanID,
		FolderPath:      t.folderPath,
		Phase:           phase,
		FilesDiscovered: discovered,
		FilesProcessed:  processed,
		TotalFiles:      total,
		CurrentFile:     current,
		IsComplete:      phase.IsTerminal(),
		IsFavorite:      t.favorite,
		ElapsedMs:       elapsed.Milliseconds(),
		BytesProcessed:  t.bytesProcessed.Load(),
		TotalBytes:      t.totalBytes.Load(),
		SkippedFiltered: t.skippedFiltered.Load(),
		DirsSeen:        t.dirsSeen.Load(),
	}

	switch {
	case phase == models.PhaseComplete || phase == models.PhaseCached:
		s.Percentage = 100
	case total > 0:
		s.Percentage = percent(processed, total)
	case discovered > 0:
		s.Percentage = percent(processed, discovered)
	}

	if total > 0 && processed > 0 && processed < total && !phase.IsTerminal() {
		perFile := float64(elapsed.Milliseconds()) / float64(processed)
		eta := int64(perFile * float64(total-processed))
		s.EstimatedRemainingMs = &eta
	}
	return s
}

func percent(n, d int64) float64 {
	p := float64(n) / float64(d) * 100
	if p > 100 {
		return 100
	}
	return p
}
