package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/georgescold/epsbot1/cmd/defines"
	"github.com/georgescold/epsbot1/internal/repositories"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"
	"github.com/georgescold/epsbot1/pkg/memorydb"

	fylogger "github.com/FyersDev/trading-logger-go"
	"github.com/google/uuid"
)

// SourceStore is the document registry the engine collaborates with
type SourceStore interface {
	Create(ctx context.Context, source *repositories.Source) (int64, error)
	GetByID(ctx context.Context, id int64) (*repositories.Source, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*repositories.Source, error)
	List(ctx context.Context) ([]*repositories.Source, error)
	SetUnanalyzed(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// AnalysisReader serves the stored analysis of a source
type AnalysisReader interface {
	ListBySource(ctx context.Context, sourceID int64) ([]*repositories.ArgumentRecord, error)
}

const fingerprintCacheTTL = 24 * time.Hour

// DocumentService handles source document operations
type DocumentService struct {
	sources     SourceStore
	extractions AnalysisReader
	pool        *AnalysisWorkerPool
	store       *JobStore
	redis       *memorydb.RedisClient // optional fingerprint cache
	storagePath string
}

// NewDocumentService creates a new document service
func NewDocumentService(sources SourceStore, extractions AnalysisReader, pool *AnalysisWorkerPool, store *JobStore, redis *memorydb.RedisClient, storagePath string) *DocumentService {
	return &DocumentService{
		sources:     sources,
		extractions: extractions,
		pool:        pool,
		store:       store,
		redis:       redis,
		storagePath: storagePath,
	}
}

// UploadResult is the outcome of an upload: either a duplicate indicator for
// already-known content, or the created source and its ingestion job
type UploadResult struct {
	SourceID  int64  `json:"id"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	JobID     string `json:"job_id,omitempty"`
	Duplicate bool   `json:"-"`
}

// UploadDocument stores an uploaded file, creates its source record and
// submits an ingestion job. Content already known by fingerprint is reported
// as a duplicate, which is a no-op outcome, not a failure.
func (s *DocumentService) UploadDocument(ctx context.Context, filename string, content []byte) (*UploadResult, error) {
	fingerprint := Fingerprint(content)

	if existing, err := s.findByFingerprint(ctx, fingerprint); err == nil {
		fylogger.InfoLog(ctx, fmt.Sprintf("Duplicate detected: %s", filename), nil)
		return &UploadResult{
			SourceID:  existing.ID,
			Filename:  existing.Filename,
			Status:    "duplicate",
			Duplicate: true,
		}, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	diskName := fmt.Sprintf("%s_%s", uuid.New().String(), sanitizeFilename(filename))
	diskPath := filepath.Join(s.storagePath, diskName)

	if err := os.MkdirAll(s.storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(diskPath, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	source := &repositories.Source{
		Filename:    filename,
		FilePath:    diskPath,
		Fingerprint: fingerprint,
		IsAnalyzed:  false,
	}
	sourceID, err := s.sources.Create(ctx, source)
	if err != nil {
		os.Remove(diskPath)
		return nil, err
	}

	s.cacheFingerprint(ctx, fingerprint, sourceID)

	job, err := s.pool.Submit(WorkUnit{
		Kind:     defines.WorkUnitIngest,
		SourceID: sourceID,
		Filename: filename,
		FilePath: diskPath,
	})
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		SourceID: sourceID,
		Filename: filename,
		Status:   string(job.Status),
		JobID:    job.ID,
	}, nil
}

// RetrySource submits a reanalysis job for one source. A source that already
// has an active job is rejected with ErrAlreadyInProgress.
func (s *DocumentService) RetrySource(ctx context.Context, sourceID int64) (Job, error) {
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return Job{}, err
	}

	job, err := s.pool.Submit(WorkUnit{
		Kind:     defines.WorkUnitReanalyze,
		SourceID: source.ID,
		Filename: source.Filename,
		FilePath: source.FilePath,
	})
	if err != nil {
		return Job{}, err
	}

	if err := s.sources.SetUnanalyzed(ctx, source.ID); err != nil {
		fylogger.ErrorLog(ctx, fmt.Sprintf("Retry: failed to reset source %d", source.ID), err, nil)
	}

	return job, nil
}

// DeleteSource removes a source and its stored analysis. Deletion is
// rejected while the source has an active job.
func (s *DocumentService) DeleteSource(ctx context.Context, sourceID int64) error {
	if job, active := s.store.FindActiveByTarget(sourceID); active {
		return apperrors.WrapError(nil, apperrors.ErrConflict.Code,
			fmt.Sprintf("source has an active analysis job (%s); cancel it first", job.ID),
			apperrors.ErrConflict.Status)
	}

	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := s.sources.Delete(ctx, sourceID); err != nil {
		return err
	}

	s.uncacheFingerprint(ctx, source.Fingerprint)

	if source.FilePath != "" {
		if err := os.Remove(source.FilePath); err != nil && !os.IsNotExist(err) {
			fylogger.ErrorLog(ctx, fmt.Sprintf("Failed to remove file for source %d", sourceID), err, nil)
		}
	}

	return nil
}

// ListSources returns all known sources
func (s *DocumentService) ListSources(ctx context.Context) ([]*repositories.Source, error) {
	return s.sources.List(ctx)
}

// SourceDetail is a source with its stored analysis
type SourceDetail struct {
	Source    *repositories.Source          `json:"source"`
	Arguments []*repositories.ArgumentRecord `json:"arguments"`
}

// GetSource returns one source with its extracted arguments
func (s *DocumentService) GetSource(ctx context.Context, sourceID int64) (*SourceDetail, error) {
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	args, err := s.extractions.ListBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	return &SourceDetail{Source: source, Arguments: args}, nil
}

// findByFingerprint consults the redis cache first, then the registry
func (s *DocumentService) findByFingerprint(ctx context.Context, fingerprint string) (*repositories.Source, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, fingerprintKey(fingerprint)); err == nil {
			if id, err := strconv.ParseInt(cached, 10, 64); err == nil {
				if source, err := s.sources.GetByID(ctx, id); err == nil {
					return source, nil
				}
			}
		}
	}
	return s.sources.GetByFingerprint(ctx, fingerprint)
}

func (s *DocumentService) cacheFingerprint(ctx context.Context, fingerprint string, sourceID int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, fingerprintKey(fingerprint), strconv.FormatInt(sourceID, 10), fingerprintCacheTTL); err != nil {
		fylogger.ErrorLog(ctx, "Failed to cache fingerprint", err, nil)
	}
}

func (s *DocumentService) uncacheFingerprint(ctx context.Context, fingerprint string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, fingerprintKey(fingerprint)); err != nil {
		fylogger.ErrorLog(ctx, "Failed to drop cached fingerprint", err, nil)
	}
}

func fingerprintKey(fingerprint string) string {
	return "source:fp:" + fingerprint
}

// Fingerprint returns the hex-encoded sha-256 of the content
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	filename = strings.ReplaceAll(filename, "'", "")
	return filename
}
