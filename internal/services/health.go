package services

import (
	"context"
	"time"

	"github.com/georgescold/epsbot1/pkg/memorydb"
	"github.com/georgescold/epsbot1/pkg/postgres"
)

// HealthStatus represents the status of a service component
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// HealthService handles health check operations
type HealthService struct {
	db    *postgres.DB
	redis *memorydb.RedisClient
}

// NewHealthService creates a new health service
func NewHealthService(db *postgres.DB, redis *memorydb.RedisClient) *HealthService {
	return &HealthService{
		db:    db,
		redis: redis,
	}
}

// Check reports the status of each backing component
func (s *HealthService) Check(ctx context.Context) map[string]HealthStatus {
	result := make(map[string]HealthStatus)

	dbStatus := HealthStatus{Status: "ok", Timestamp: time.Now()}
	if s.db == nil {
		dbStatus.Status = "unavailable"
	} else if err := s.db.Ping(ctx); err != nil {
		dbStatus.Status = "down"
		dbStatus.Details = err.Error()
	}
	result["database"] = dbStatus

	redisStatus := HealthStatus{Status: "ok", Timestamp: time.Now()}
	if s.redis == nil {
		redisStatus.Status = "unavailable"
	} else if err := s.redis.Ping(ctx); err != nil {
		redisStatus.Status = "down"
		redisStatus.Details = err.Error()
	}
	result["redis"] = redisStatus

	return result
}
