package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-scheduler-api/internal/dto"
	"github.com/noah-isme/room-scheduler-api/internal/service"
	"github.com/noah-isme/room-scheduler-api/pkg/response"
)

type exportService interface {
	Request(ctx context.Context, roomID string, req dto.ScheduleExportRequest, actorID string) (*dto.ExportJobResponse, error)
	Status(ctx context.Context, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ScheduleDownload, error)
}

// ExportHandler serves asynchronous schedule exports.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Request godoc
// @Summary Queue a CSV or PDF export of a room's schedule
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body dto.ScheduleExportRequest true "Range and format"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /rooms/{id}/schedule/exports [post]
func (h *ExportHandler) Request(c *gin.Context) {
	var req dto.ScheduleExportRequest
	if !bindJSON(c, &req) {
		return
	}
	job, err := h.service.Request(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job progress
// @Tags Exports
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	response.Attachment(c, download.Filename, download.ContentType, download.File)
}
