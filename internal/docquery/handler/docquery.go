// Package handler provides HTTP handlers for the document query service.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/pkg/extract"
)

// queryTimeout bounds a single query request end to end.
const queryTimeout = 60 * time.Second

// DocQueryHandler handles document query HTTP requests.
type DocQueryHandler struct {
	service biz.Service
}

// NewDocQueryHandler creates a new DocQueryHandler.
func NewDocQueryHandler(service biz.Service) *DocQueryHandler {
	return &DocQueryHandler{service: service}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError 将业务错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	var exErr *extract.ExtractionError
	switch {
	case biz.IsValidationError(err), errors.Is(err, biz.ErrNoContent), errors.As(err, &exErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
	}
}

// IngestTextRequest represents a raw text ingestion request.
type IngestTextRequest struct {
	Text     string            `json:"text" binding:"required"`
	Source   string            `json:"source" binding:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestText ingests raw text content.
func (h *DocQueryHandler) IngestText(c *gin.Context) {
	var req IngestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	result, err := h.service.IngestText(c.Request.Context(), req.Text, req.Source, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: result.Message, Data: result})
}

// IngestFile ingests an uploaded document file.
func (h *DocQueryHandler) IngestFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	source := c.PostForm("source")
	if source == "" {
		source = fileHeader.Filename
	}

	result, err := h.service.Ingest(c.Request.Context(), content, filepath.Ext(fileHeader.Filename), source, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: result.Message, Data: result})
}

// QueryRequest represents a query request.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k,omitempty"`
}

// Query answers a question using the indexed documents.
func (h *DocQueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, req.Question, req.TopK, nil)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Query timeout: the request took too long to process. Please try again or simplify your question.",
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// Count returns the number of indexed chunks.
func (h *DocQueryHandler) Count(c *gin.Context) {
	count, err := h.service.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{"chunk_count": count}})
}

// Documents lists indexed documents grouped by document ID.
func (h *DocQueryHandler) Documents(c *gin.Context) {
	docs, err := h.service.Documents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: docs})
}

// Stats returns index and cache statistics.
func (h *DocQueryHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Clear removes all indexed documents and cached query results.
func (h *DocQueryHandler) Clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Index cleared successfully"})
}

// Healthz is a liveness probe endpoint.
func (h *DocQueryHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
