package handlers

import (
	"net/http"
	"time"

	"github.com/georgescold/epsbot1/internal/services"

	fylogger "github.com/FyersDev/trading-logger-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type JobHandler struct {
	Services *services.Services
	upgrader websocket.Upgrader
}

func NewJobHandler(services *services.Services) *JobHandler {
	return &JobHandler{
		Services: services,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// GetJobStatus handles the GET /api/v1/jobs/:job_id endpoint. A 404 for a
// previously known job id means the job reached a terminal state and was
// evicted after its grace window.
func (h *JobHandler) GetJobStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")

		job, err := h.Services.Jobs.GetJob(jobID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    job,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Job status fetched successfully",
		})
	}
}

// GetActiveJobs handles the GET /api/v1/jobs endpoint
func (h *JobHandler) GetActiveJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs := h.Services.Jobs.ListActive()

		c.JSON(http.StatusOK, gin.H{
			"data":    jobs,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Jobs fetched successfully",
		})
	}
}

// CancelJob handles the POST /api/v1/jobs/:job_id/cancel endpoint. The call
// returns immediately; the actual stop happens at the worker's next
// cancellation checkpoint.
func (h *JobHandler) CancelJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")

		job, alreadyFinished, err := h.Services.Jobs.Cancel(jobID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}

		if alreadyFinished {
			c.JSON(http.StatusOK, gin.H{
				"data":    job,
				"code":    http.StatusOK,
				"s":       "ok",
				"message": "Job already finished",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    job,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Job cancellation requested",
		})
	}
}

// WatchJobs handles the GET /api/v1/jobs/watch endpoint: a websocket that
// pushes periodic active-job snapshots. Polling the REST endpoints remains
// the baseline contract; this is a convenience for live dashboards.
func (h *JobHandler) WatchJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		// reader goroutine detects client disconnects
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				jobs := h.Services.Jobs.ListActive()
				if err := conn.WriteJSON(jobs); err != nil {
					fylogger.InfoLog(c.Request.Context(), "Job watch connection closed", nil)
					return
				}
			}
		}
	}
}
