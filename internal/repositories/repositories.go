package repositories

import (
	"context"

	"github.com/georgescold/epsbot1/pkg/postgres"
)

// Repositories holds all repository instances
type Repositories struct {
	Source     *SourceRepository
	Extraction *ExtractionRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Source:     NewSourceRepository(db),
		Extraction: NewExtractionRepository(db),
	}
}

// InitSchema creates all tables if they don't exist
func (r *Repositories) InitSchema(ctx context.Context) error {
	if err := r.Source.CreateSchema(ctx); err != nil {
		return err
	}
	return r.Extraction.CreateSchema(ctx)
}
