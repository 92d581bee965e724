package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/georgescold/epsbot1/internal/analyzer"
	"github.com/georgescold/epsbot1/pkg/postgres"
)

// ArgumentRecord is one stored argument with its proofs and flashcards
type ArgumentRecord struct {
	ID         int64             `json:"id"`
	SourceID   int64             `json:"source_id"`
	Theme      string            `json:"theme"`
	Period     string            `json:"period"`
	Content    string            `json:"content"`
	Proofs     []ProofRecord     `json:"proofs"`
	Flashcards []FlashcardRecord `json:"flashcards"`
}

// ProofRecord is one stored proof
type ProofRecord struct {
	ID         int64   `json:"id"`
	ArgumentID int64   `json:"argument_id"`
	Content    string  `json:"content"`
	Year       *string `json:"year,omitempty"`
	Complement *string `json:"complement,omitempty"`
	IsNuance   bool    `json:"is_nuance"`
}

// FlashcardRecord is one stored flashcard
type FlashcardRecord struct {
	ID         int64  `json:"id"`
	ArgumentID int64  `json:"argument_id"`
	Front      string `json:"front"`
	Back       string `json:"back"`
}

// ExtractionRepository stores the structured analysis output of a source
type ExtractionRepository struct {
	db *postgres.DB
}

// NewExtractionRepository creates a new extraction repository
func NewExtractionRepository(db *postgres.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

// CreateSchema creates the arguments, proofs and flashcards tables
func (r *ExtractionRepository) CreateSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS arguments (
			id BIGSERIAL PRIMARY KEY,
			source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			theme VARCHAR(256) NOT NULL,
			chronology_period VARCHAR(128),
			content TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS proofs (
			id BIGSERIAL PRIMARY KEY,
			argument_id BIGINT NOT NULL REFERENCES arguments(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			specific_year VARCHAR(32),
			citation_complement TEXT,
			is_nuance BOOLEAN DEFAULT FALSE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS flashcards (
			id BIGSERIAL PRIMARY KEY,
			argument_id BIGINT NOT NULL REFERENCES arguments(id) ON DELETE CASCADE,
			front TEXT NOT NULL,
			back TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_arguments_source_id ON arguments(source_id);
		CREATE INDEX IF NOT EXISTS idx_proofs_argument_id ON proofs(argument_id);
		CREATE INDEX IF NOT EXISTS idx_flashcards_argument_id ON flashcards(argument_id);
	`

	_, err := r.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create extractions schema: %w", err)
	}

	return nil
}

// ReplaceForSource commits a full analysis result for a source in one
// transaction: prior extractions are dropped, the new ones inserted, and the
// source marked analyzed. A reader never observes a half-written analysis.
func (r *ExtractionRepository) ReplaceForSource(ctx context.Context, sourceID int64, result *analyzer.Result) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM arguments WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("failed to clear prior analysis for source %d: %w", sourceID, err)
	}

	for _, arg := range result.Arguments {
		var argID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO arguments (source_id, theme, chronology_period, content)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			sourceID, arg.Theme, arg.Period, arg.Content,
		).Scan(&argID)
		if err != nil {
			return fmt.Errorf("failed to insert argument: %w", err)
		}

		for _, proof := range arg.Proofs {
			_, err := tx.Exec(ctx,
				`INSERT INTO proofs (argument_id, content, specific_year, citation_complement, is_nuance)
				 VALUES ($1, $2, $3, $4, $5)`,
				argID, proof.Content, nullable(proof.Year), nullable(proof.Complement), proof.IsNuance,
			)
			if err != nil {
				return fmt.Errorf("failed to insert proof: %w", err)
			}
		}

		for _, card := range arg.Flashcards {
			_, err := tx.Exec(ctx,
				`INSERT INTO flashcards (argument_id, front, back) VALUES ($1, $2, $3)`,
				argID, card.Front, card.Back,
			)
			if err != nil {
				return fmt.Errorf("failed to insert flashcard: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE sources SET is_analyzed = TRUE, analyzed_at = $2 WHERE id = $1`,
		sourceID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark source %d analyzed: %w", sourceID, err)
	}

	return tx.Commit(ctx)
}

// ListBySource retrieves the stored analysis of a source
func (r *ExtractionRepository) ListBySource(ctx context.Context, sourceID int64) ([]*ArgumentRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_id, theme, chronology_period, content
		 FROM arguments WHERE source_id = $1 ORDER BY id ASC`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list arguments for source %d: %w", sourceID, err)
	}
	defer rows.Close()

	var args []*ArgumentRecord
	for rows.Next() {
		arg := &ArgumentRecord{}
		var period *string
		if err := rows.Scan(&arg.ID, &arg.SourceID, &arg.Theme, &period, &arg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan argument: %w", err)
		}
		if period != nil {
			arg.Period = *period
		}
		args = append(args, arg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, arg := range args {
		if err := r.loadProofs(ctx, arg); err != nil {
			return nil, err
		}
		if err := r.loadFlashcards(ctx, arg); err != nil {
			return nil, err
		}
	}

	return args, nil
}

func (r *ExtractionRepository) loadProofs(ctx context.Context, arg *ArgumentRecord) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, argument_id, content, specific_year, citation_complement, is_nuance
		 FROM proofs WHERE argument_id = $1 ORDER BY id ASC`,
		arg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list proofs for argument %d: %w", arg.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		p := ProofRecord{}
		if err := rows.Scan(&p.ID, &p.ArgumentID, &p.Content, &p.Year, &p.Complement, &p.IsNuance); err != nil {
			return fmt.Errorf("failed to scan proof: %w", err)
		}
		arg.Proofs = append(arg.Proofs, p)
	}
	return rows.Err()
}

func (r *ExtractionRepository) loadFlashcards(ctx context.Context, arg *ArgumentRecord) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, argument_id, front, back
		 FROM flashcards WHERE argument_id = $1 ORDER BY id ASC`,
		arg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list flashcards for argument %d: %w", arg.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		c := FlashcardRecord{}
		if err := rows.Scan(&c.ID, &c.ArgumentID, &c.Front, &c.Back); err != nil {
			return fmt.Errorf("failed to scan flashcard: %w", err)
		}
		arg.Flashcards = append(arg.Flashcards, c)
	}
	return rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
