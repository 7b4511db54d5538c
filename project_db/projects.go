package project_db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/morler/repomuse/code_analyzer/models"
)

// Project is one row of the projects table
type Project struct {
	ID             int64      `json:"id"`
	Path           string     `json:"path"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	IsGitRepo      bool       `json:"is_git_repo"`
	IsFavorite     bool       `json:"is_favorite"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	FileCount      int64      `json:"file_count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Statistics summarizes every known project
type Statistics struct {
	ProjectCount   int64 `json:"project_count"`
	TotalFiles     int64 `json:"total_files"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
	CachedDigests  int64 `json:"cached_digests"`
}

const projectColumns = `id, path, name, COALESCE(description, ''), is_git_repo, is_favorite,
	last_analyzed_at, file_count, total_size_bytes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var analyzed sql.NullTime
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &p.Description, &p.IsGitRepo, &p.IsFavorite,
		&analyzed, &p.FileCount, &p.TotalSizeBytes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if analyzed.Valid {
		t := analyzed.Time
		p.LastAnalyzedAt = &t
	}
	return &p, nil
}

// UpsertProject inserts a project or refreshes its name, description and git flag
func (s *Store) UpsertProject(ctx context.Context, path, name, description string, isGitRepo bool) (int64, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (path, name, description, is_git_repo, updated_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(path) DO UPDATE SET
		     name = excluded.name,
		     description = COALESCE(excluded.description, projects.description),
		     is_git_repo = excluded.is_git_repo,
		     updated_at = CURRENT_TIMESTAMP`,
		path, name, description, isGitRepo)
	if err != nil {
		return 0, fmt.Errorf("upsert project: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup project id: %w", err)
	}
	return id, nil
}

// GetProjectByPath returns nil, nil when the project is unknown
func (s *Store) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE path = ?`, path)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns favorites first, then most recently updated
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY is_favorite DESC, updated_at DESC, path`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetFavorite marks a project, creating it when unknown
func (s *Store) SetFavorite(ctx context.Context, path string, favorite bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (path, name, is_favorite) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		     is_favorite = excluded.is_favorite,
		     updated_at = CURRENT_TIMESTAMP`,
		path, filepath.Base(path), favorite)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

// IsFavorite implements contracts.IProjectStore
func (s *Store) IsFavorite(ctx context.Context, path string) (bool, error) {
	var fav bool
	err := s.db.QueryRowContext(ctx, `SELECT is_favorite FROM projects WHERE path = ?`, path).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is favorite: %w", err)
	}
	return fav, nil
}

// Favorites returns the paths of favorite projects
func (s *Store) Favorites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM projects WHERE is_favorite = TRUE ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProjectStats records the counts of the latest scan
func (s *Store) UpdateProjectStats(ctx context.Context, path string, fileCount, totalSize int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET file_count = ?, total_size_bytes = ?, last_analyzed_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE path = ?`, fileCount, totalSize, time.Now().UTC(), path)
	if err != nil {
		return fmt.Errorf("update project stats: %w", err)
	}
	return nil
}

// TouchProject implements contracts.IProjectStore
func (s *Store) TouchProject(ctx context.Context, path string, isGitRepo bool) error {
	_, err := s.UpsertProject(ctx, path, "", "", isGitRepo)
	return err
}

// RecordScan implements contracts.IProjectStore
func (s *Store) RecordScan(ctx context.Context, path string, digest *models.RepoAnalysis) error {
	if digest == nil {
		return nil
	}
	return s.UpdateProjectStats(ctx, path, int64(digest.Metrics.TotalFiles), digest.SizeMetrics.TotalSizeBytes)
}

// ClearExpiredCache deletes expired digests and returns how many were removed
func (s *Store) ClearExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE expires_at < ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("clear expired cache: %w", err)
	}
	return res.RowsAffected()
}

// Statistics returns project and digest counts
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	var st Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_count), 0), COALESCE(SUM(total_size_bytes), 0) FROM projects`).
		Scan(&st.ProjectCount, &st.TotalFiles, &st.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("project statistics: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_cache`).Scan(&st.CachedDigests); err != nil {
		return nil, fmt.Errorf("digest statistics: %w", err)
	}
	return &st, nil
}
