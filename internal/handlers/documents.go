package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/georgescold/epsbot1/internal/services"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	Services *services.Services
}

func NewDocumentHandler(services *services.Services) *DocumentHandler {
	return &DocumentHandler{Services: services}
}

// UploadDocument handles the POST /api/v1/documents endpoint
func (h *DocumentHandler) UploadDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "file is required",
			})
			return
		}

		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to read uploaded file",
			})
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to read uploaded file",
			})
			return
		}

		result, err := h.Services.Document.UploadDocument(c.Request.Context(), file.Filename, content)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}

		if result.Duplicate {
			c.JSON(http.StatusOK, gin.H{
				"data":    result,
				"code":    http.StatusOK,
				"s":       "ok",
				"message": fmt.Sprintf("File '%s' has already been analyzed", result.Filename),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    result,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Document uploaded, analysis started",
		})
	}
}

// GetDocuments handles the GET /api/v1/documents endpoint
func (h *DocumentHandler) GetDocuments() gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := h.Services.Document.ListSources(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    sources,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Documents fetched successfully",
		})
	}
}

// GetDocument handles the GET /api/v1/documents/:document_id endpoint
func (h *DocumentHandler) GetDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		detail, err := h.Services.Document.GetSource(c.Request.Context(), documentID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    detail,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Document fetched successfully",
		})
	}
}

// DeleteDocument handles the DELETE /api/v1/documents/:document_id endpoint.
// Deletion is rejected with a conflict while the document has an active job.
func (h *DocumentHandler) DeleteDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		if err := h.Services.Document.DeleteSource(c.Request.Context(), documentID); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"code":    http.StatusOK,
			"s":       "ok",
			"message": fmt.Sprintf("Document %d deleted successfully", documentID),
		})
	}
}

// RetryDocument handles the POST /api/v1/documents/:document_id/retry endpoint
func (h *DocumentHandler) RetryDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		job, err := h.Services.Document.RetrySource(c.Request.Context(), documentID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    job,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Retry started",
		})
	}
}

// RefreshAnalysis handles the POST /api/v1/documents/refresh endpoint,
// fanning a reanalysis out over the whole corpus
func (h *DocumentHandler) RefreshAnalysis() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := h.Services.Batch.ReprocessAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}

		refs := make([]gin.H, 0, len(jobs))
		for _, job := range jobs {
			refs = append(refs, gin.H{
				"job_id":   job.ID,
				"filename": job.Filename,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    gin.H{"jobs": refs},
			"code":    http.StatusOK,
			"s":       "ok",
			"message": fmt.Sprintf("Refresh started for %d source(s)", len(jobs)),
		})
	}
}

func parseDocumentID(c *gin.Context) (int64, bool) {
	documentIDStr := c.Param("document_id")
	documentID, err := strconv.ParseInt(documentIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid document_id format, expected integer",
		})
		return 0, false
	}
	return documentID, true
}

func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status, gin.H{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": err.Error(),
	})
}
