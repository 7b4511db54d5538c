package models

// Phase is the lifecycle stage of a scan
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseProcessing Phase = "processing"
	PhaseComplete   Phase = "complete"
	PhaseCancelled  Phase = "cancelled"
	PhaseCached     Phase = "cached"
)

// IsTerminal reports whether no further transitions follow
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseCancelled || p == PhaseCached
}

// ProgressSnapshot is a point-in-time copy of a scan's counters
type ProgressSnapshot struct {
	ScanID               string  `json:"scan_id"`
	FolderPath           string  `json:"folder_path"`
	Phase                Phase   `json:"phase"`
	FilesDiscovered      int64   `json:"files_discovered"`
	FilesProcessed       int64   `json:"files_processed"`
	TotalFiles           int64   `json:"total_files"`
	Percentage           float64 `json:"percentage"`
	CurrentFile          string  `json:"current_file,omitempty"`
	IsComplete           bool    `json:"is_complete"`
	IsFavorite           bool    `json:"is_favorite"`
	ElapsedMs            int64   `json:"elapsed_ms"`
	EstimatedRemainingMs *int64  `json:"estimated_remaining_ms,omitempty"`
	BytesProcessed       int64   `json:"bytes_processed"`
	TotalBytes           int64   `json:"total_bytes"`
	SkippedFiltered      int64   `json:"skipped_filtered"`
	DirsSeen             int64   `json:"dirs_seen"`
}

// BatchProgress reports the position of a multi-root scan
type BatchProgress struct {
	Current        int    `json:"current"`
	Total          int    `json:"total"`
	CurrentProject string `json:"current_project"`
}
