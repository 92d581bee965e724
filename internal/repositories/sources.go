package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/georgescold/epsbot1/pkg/errors"
	"github.com/georgescold/epsbot1/pkg/postgres"

	"github.com/jackc/pgx/v5"
)

// Source represents an uploaded study document
type Source struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	Title       *string    `json:"title,omitempty"`
	Author      *string    `json:"author,omitempty"`
	Year        *int       `json:"year,omitempty"`
	FilePath    string     `json:"file_path"`
	Fingerprint string     `json:"fingerprint"`
	IsAnalyzed  bool       `json:"is_analyzed"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
}

// SourceRepository handles source database operations
type SourceRepository struct {
	db *postgres.DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *postgres.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// CreateSchema creates the sources table if it doesn't exist
func (r *SourceRepository) CreateSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sources (
			id BIGSERIAL PRIMARY KEY,
			filename VARCHAR(512) NOT NULL,
			title VARCHAR(512),
			author VARCHAR(256),
			year INT,
			file_path VARCHAR(1024) NOT NULL,
			fingerprint CHAR(64) NOT NULL UNIQUE,
			is_analyzed BOOLEAN DEFAULT FALSE NOT NULL,
			uploaded_at TIMESTAMP DEFAULT NOW() NOT NULL,
			analyzed_at TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sources_filename ON sources(filename);
		CREATE INDEX IF NOT EXISTS idx_sources_fingerprint ON sources(fingerprint);
	`

	_, err := r.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create sources schema: %w", err)
	}

	return nil
}

// Create inserts a new source and returns its id
func (r *SourceRepository) Create(ctx context.Context, source *Source) (int64, error) {
	query := `
		INSERT INTO sources (filename, title, author, year, file_path, fingerprint, is_analyzed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uploaded_at
	`

	err := r.db.QueryRow(ctx, query,
		source.Filename,
		source.Title,
		source.Author,
		source.Year,
		source.FilePath,
		source.Fingerprint,
		source.IsAnalyzed,
	).Scan(&source.ID, &source.UploadedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create source: %w", err)
	}

	return source.ID, nil
}

// GetByID retrieves a source by its id
func (r *SourceRepository) GetByID(ctx context.Context, id int64) (*Source, error) {
	query := `
		SELECT id, filename, title, author, year, file_path, fingerprint, is_analyzed, uploaded_at, analyzed_at
		FROM sources
		WHERE id = $1
	`

	source := &Source{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&source.ID,
		&source.Filename,
		&source.Title,
		&source.Author,
		&source.Year,
		&source.FilePath,
		&source.Fingerprint,
		&source.IsAnalyzed,
		&source.UploadedAt,
		&source.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source %d: %w", id, err)
	}

	return source, nil
}

// GetByFingerprint retrieves a source by its content fingerprint
func (r *SourceRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*Source, error) {
	query := `
		SELECT id, filename, title, author, year, file_path, fingerprint, is_analyzed, uploaded_at, analyzed_at
		FROM sources
		WHERE fingerprint = $1
	`

	source := &Source{}
	err := r.db.QueryRow(ctx, query, fingerprint).Scan(
		&source.ID,
		&source.Filename,
		&source.Title,
		&source.Author,
		&source.Year,
		&source.FilePath,
		&source.Fingerprint,
		&source.IsAnalyzed,
		&source.UploadedAt,
		&source.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source by fingerprint: %w", err)
	}

	return source, nil
}

// List retrieves all sources in upload order
func (r *SourceRepository) List(ctx context.Context) ([]*Source, error) {
	query := `
		SELECT id, filename, title, author, year, file_path, fingerprint, is_analyzed, uploaded_at, analyzed_at
		FROM sources
		ORDER BY uploaded_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source := &Source{}
		err := rows.Scan(
			&source.ID,
			&source.Filename,
			&source.Title,
			&source.Author,
			&source.Year,
			&source.FilePath,
			&source.Fingerprint,
			&source.IsAnalyzed,
			&source.UploadedAt,
			&source.AnalyzedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}

	return sources, rows.Err()
}

// SetUnanalyzed resets the analyzed flag before a reanalysis attempt
func (r *SourceRepository) SetUnanalyzed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE sources SET is_analyzed = FALSE, analyzed_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset source %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a source row
func (r *SourceRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
