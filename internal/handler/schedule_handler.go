package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-scheduler-api/internal/dto"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/service"
	"github.com/noah-isme/room-scheduler-api/pkg/response"
)

type reservationService interface {
	List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ReservationDetail, error)
	Today(ctx context.Context) ([]models.ReservationDetail, error)
	Create(ctx context.Context, req service.ReservationRequest, actorID string) (*models.ReservationDetail, error)
	Update(ctx context.Context, id string, req service.ReservationRequest) (*models.ReservationDetail, error)
	Patch(ctx context.Context, id string, req service.PatchReservationRequest) (*models.ReservationDetail, error)
	UpdateStatus(ctx context.Context, id string, req service.StatusUpdateRequest) (*models.ReservationDetail, error)
	BulkUpdateStatus(ctx context.Context, req service.BulkStatusRequest) (*service.BulkStatusResult, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleHandler serves room reservation (schedule) endpoints.
type ScheduleHandler struct {
	service reservationService
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(svc reservationService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param room query string false "Room ID"
// @Param date query string false "YYYY-MM-DD; ignored when malformed"
// @Param status query string false "scheduled, in_progress, completed or cancelled"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ReservationFilter{
		RoomID: strings.TrimSpace(c.Query("room")),
		Date:   optionalDate(c, "date"),
		Status: models.ReservationStatus(strings.TrimSpace(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)
	schedules, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Today godoc
// @Summary Active schedules for today across all rooms
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedules/today [get]
func (h *ScheduleHandler) Today(c *gin.Context) {
	schedules, err := h.service.Today(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Create godoc
// @Summary Book a room
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ReservationRequest true "Schedule"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "INVALID_INTERVAL, INVALID_STATUS or VALIDATION_ERROR"
// @Failure 409 {object} response.Envelope "SCHEDULE_OVERLAP"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.ReservationRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Update godoc
// @Summary Replace a schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.ReservationRequest true "Schedule"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.ReservationRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Patch godoc
// @Summary Partially update a schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.PatchReservationRequest true "Changed fields"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [patch]
func (h *ScheduleHandler) Patch(c *gin.Context) {
	var req service.PatchReservationRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.service.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// UpdateStatus godoc
// @Summary Change a schedule's status
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.StatusUpdateRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "INVALID_STATUS"
// @Router /schedules/{id}/status [post]
func (h *ScheduleHandler) UpdateStatus(c *gin.Context) {
	var req service.StatusUpdateRequest
	// a missing or empty status is reported as INVALID_STATUS by the service
	_ = c.ShouldBindJSON(&req)
	schedule, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StatusUpdateResponse{
		Message:  "status updated to " + string(schedule.Status),
		Schedule: schedule,
	}, nil)
}

// BulkUpdateStatus godoc
// @Summary Change the status of several schedules
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.BulkStatusRequest true "IDs and status"
// @Success 200 {object} response.Envelope
// @Router /schedules/status [post]
func (h *ScheduleHandler) BulkUpdateStatus(c *gin.Context) {
	var req service.BulkStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkUpdateStatus(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
