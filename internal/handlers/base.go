package handlers

import (
	"github.com/georgescold/epsbot1/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Document *DocumentHandler
	Jobs     *JobHandler
	Health   *HealthHandler
}

// NewHandlers creates and returns all handler instances
func NewHandlers(svcs *services.Services) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(svcs),
		Jobs:     NewJobHandler(svcs),
		Health:   NewHealthHandler(svcs),
	}
}
