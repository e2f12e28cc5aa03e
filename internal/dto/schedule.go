package dto

import "github.com/noah-isme/room-scheduler-api/internal/models"

// StatusUpdateResponse is returned by the status-only update.
type StatusUpdateResponse struct {
	Message  string                    `json:"message"`
	Schedule *models.ReservationDetail `json:"schedule"`
}
