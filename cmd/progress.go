package cmd

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pterm/pterm"

	"github.com/morler/repomuse/code_analyzer/contracts"
	"github.com/morler/repomuse/code_analyzer/models"
)

// progressRenderer draws scan progress as a pterm progress bar, one bar per scan
type progressRenderer struct {
	mu     sync.Mutex
	bar    *pterm.ProgressbarPrinter
	scanID string
}

var _ contracts.IProgressSink = (*progressRenderer)(nil)

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{}
}

// PublishProgress implements contracts.IProgressSink
func (r *progressRenderer) PublishProgress(s models.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Phase == models.PhaseCached {
		r.stopLocked()
		pterm.Info.Printfln("%s served from cache", s.FolderPath)
		return
	}

	if r.bar == nil || r.scanID != s.ScanID {
		r.stopLocked()
		bar, err := pterm.DefaultProgressbar.
			WithTotal(100).
			WithTitle(progressTitle(s)).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			return
		}
		r.bar, r.scanID = bar, s.ScanID
	}

	r.bar.UpdateTitle(progressTitle(s))
	if target := int(s.Percentage); target > r.bar.Current {
		r.bar.Add(target - r.bar.Current)
	}

	if s.Phase.IsTerminal() {
		r.stopLocked()
		if s.Phase == models.PhaseCancelled {
			pterm.Warning.Printfln("scan of %s cancelled after %d files", s.FolderPath, s.FilesProcessed)
		}
	}
}

// PublishBatch implements contracts.IProgressSink
func (r *progressRenderer) PublishBatch(b models.BatchProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	pterm.Info.Printfln("[%d/%d] %s", b.Current, b.Total, b.CurrentProject)
}

// Stop removes a bar that never saw a terminal phase
func (r *progressRenderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *progressRenderer) stopLocked() {
	if r.bar != nil {
		_, _ = r.bar.Stop()
		r.bar = nil
		r.scanID = ""
	}
}

func progressTitle(s models.ProgressSnapshot) string {
	switch s.Phase {
	case models.PhaseDiscovery:
		return fmt.Sprintf("Discovering %s (%d files)", filepath.Base(s.FolderPath), s.FilesDiscovered)
	default:
		title := fmt.Sprintf("Sampling %d/%d", s.FilesProcessed, s.TotalFiles)
		if s.CurrentFile != "" {
			title += " " + filepath.Base(s.CurrentFile)
		}
		return title
	}
}
