package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/service"
	"github.com/noah-isme/room-scheduler-api/pkg/response"
)

type roomService interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.RoomWithUpcoming, error)
	Create(ctx context.Context, req service.RoomRequest) (*models.RoomDetail, error)
	Update(ctx context.Context, id string, req service.RoomRequest) (*models.RoomDetail, error)
	Delete(ctx context.Context, id string) error
	Availability(ctx context.Context, id string) (*models.RoomAvailability, error)
	Schedule(ctx context.Context, id, startRaw, endRaw string) (*models.RoomSchedule, bool, error)
	QRCode(ctx context.Context, id string) ([]byte, error)
}

// RoomHandler serves room endpoints.
type RoomHandler struct {
	service roomService
}

// NewRoomHandler constructs the handler.
func NewRoomHandler(svc roomService) *RoomHandler {
	return &RoomHandler{service: svc}
}

// List godoc
// @Summary List active rooms
// @Tags Rooms
// @Produce json
// @Param department query string false "Department ID"
// @Param type query string false "Room type"
// @Param search query string false "Name, number or equipment contains"
// @Param sort query string false "name, number, capacity, floor or building"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	filter := models.RoomFilter{
		DepartmentID: strings.TrimSpace(c.Query("department")),
		RoomType:     models.RoomType(strings.TrimSpace(c.Query("type"))),
		Search:       strings.TrimSpace(c.Query("search")),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	rooms, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, pagination)
}

// Get godoc
// @Summary Room detail with QR code and the next seven days of schedules
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Create godoc
// @Summary Create room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body service.RoomRequest true "Room"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req service.RoomRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Update godoc
// @Summary Update room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body service.RoomRequest true "Room"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [put]
func (h *RoomHandler) Update(c *gin.Context) {
	var req service.RoomRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Delete godoc
// @Summary Delete room and its schedules
// @Tags Rooms
// @Param id path string true "Room ID"
// @Success 204
// @Router /rooms/{id} [delete]
func (h *RoomHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Availability godoc
// @Summary Current and next schedule of an active room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id}/availability [get]
func (h *RoomHandler) Availability(c *gin.Context) {
	availability, err := h.service.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// Schedule godoc
// @Summary Room schedules grouped by date
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Param start_date query string false "YYYY-MM-DD, defaults to this week's Monday"
// @Param end_date query string false "YYYY-MM-DD, defaults to start_date plus six days"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/schedule [get]
func (h *RoomHandler) Schedule(c *gin.Context) {
	schedule, cacheHit, err := h.service.Schedule(c.Request.Context(), c.Param("id"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil, withMeta(c, cacheHit))
}

// QRCode godoc
// @Summary PNG QR code linking to the room's public schedule page
// @Tags Rooms
// @Produce png
// @Param id path string true "Room ID"
// @Success 200 {file} binary
// @Router /rooms/{id}/qr-code [get]
func (h *RoomHandler) QRCode(c *gin.Context) {
	png, err := h.service.QRCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Image(c, "image/png", png, 3600)
}
