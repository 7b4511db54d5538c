package models

import "time"

// FileDescriptor is one eligible file found during discovery
type FileDescriptor struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Language  string    `json:"language"`
	ParentDir string    `json:"parent_dir"`
	ModTime   time.Time `json:"mod_time"`
}

// FileSampleResult is the outcome of processing one descriptor
type FileSampleResult struct {
	Descriptor       FileDescriptor
	Content          *string
	LineCount        int
	WasTruncated     bool
	IncludedInDigest bool
	// ShortHash is the xxh3 hash of the sampled prefix, empty when not sampled
	ShortHash string
	// Err marks an unreadable file; such results are left out of the digest
	Err error
}

// FileInfo is a sampled file as it appears in the digest
type FileInfo struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated"`
}

// FileSizeInfo is an entry of the largest-files list
type FileSizeInfo struct {
	Path      string  `json:"path"`
	SizeBytes int64   `json:"size_bytes"`
	SizeKB    float64 `json:"size_kb"`
	Language  string  `json:"language"`
}

// Metrics are the digest counters
type Metrics struct {
	TotalFiles    int `json:"total_files"`
	TotalLines    int `json:"total_lines"`
	AnalyzedFiles int `json:"analyzed_files"`
}

// SizeMetrics summarizes byte counts of the scanned tree
type SizeMetrics struct {
	TotalSizeBytes    int64          `json:"total_size_bytes"`
	TotalSizeKB       float64        `json:"total_size_kb"`
	TotalSizeMB       float64        `json:"total_size_mb"`
	AnalyzedSizeBytes int64          `json:"analyzed_size_bytes"`
	AnalyzedSizeKB    float64        `json:"analyzed_size_kb"`
	AnalyzedSizeMB    float64        `json:"analyzed_size_mb"`
	LargestFiles      []FileSizeInfo `json:"largest_files"`
	// SizeByLanguage sums the bytes of sampled files per language. Files of
	// language Unknown are left out, so the values add up to AnalyzedSizeBytes
	// only when no sampled file is Unknown.
	SizeByLanguage map[string]int64 `json:"size_by_language"`
}

// ScanProgress describes how much of the tree a lazy or interrupted scan covered
type ScanProgress struct {
	// FilesScanned is the number of files that went through sampling
	FilesScanned int `json:"files_scanned"`
	// ScanLimit is the configured lazy limit, zero for an unbounded scan
	ScanLimit           int  `json:"scan_limit"`
	IsComplete          bool `json:"is_complete"`
	EstimatedTotalFiles *int `json:"estimated_total_files,omitempty"`
	// EstimateIsLowerBound is set when the walk stopped before the end of the
	// tree, so the real total may be larger
	EstimateIsLowerBound bool `json:"estimate_is_lower_bound,omitempty"`
}

// RepoAnalysis is the digest of one scanned tree
type RepoAnalysis struct {
	Root         string              `json:"root"`
	Files        []FileInfo          `json:"files"`
	Structure    map[string][]string `json:"structure"`
	Technologies []string            `json:"technologies"`
	Metrics      Metrics             `json:"metrics"`
	SizeMetrics  SizeMetrics         `json:"size_metrics"`
	GeneratedAt  time.Time           `json:"generated_at"`
	FromCache    bool                `json:"from_cache"`
	IsLazyScan   bool                `json:"is_lazy_scan"`
	ScanProgress *ScanProgress       `json:"scan_progress,omitempty"`
}

// ScanOptions select how a scan is served
type ScanOptions struct {
	// Force skips the whole-digest cache lookup
	Force bool `json:"force"`
	// Lazy stops discovery at the initial scan limit
	Lazy bool `json:"lazy"`
	// ForceFullRescan ignores the cache and runs a full scan even when Lazy is set
	ForceFullRescan bool `json:"force_full_rescan"`
}
