package handlers

import (
	"net/http"

	"github.com/georgescold/epsbot1/internal/services"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	Services *services.Services
}

func NewHealthHandler(services *services.Services) *HealthHandler {
	return &HealthHandler{Services: services}
}

// Health handles the GET /health endpoint
func (h *HealthHandler) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		components := h.Services.Health.Check(c.Request.Context())

		status := http.StatusOK
		for _, component := range components {
			if component.Status == "down" {
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, gin.H{
			"data": components,
			"code": status,
			"s":    "ok",
		})
	}
}
